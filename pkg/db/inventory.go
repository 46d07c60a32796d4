/*
 * Copyright 2025 Clockhouse Systems Ltd.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

// ErrNotFound indicates a requested row does not exist.
var ErrNotFound = errors.New("not found")

const (
	selectDevicesSQL = `SELECT id, branch_id, name, ip, port,
		COALESCE(serial, ''), last_seen, created_at
		FROM devices`

	selectBranchSQL = `SELECT id, name, ip_range, created_at FROM branches WHERE id = $1`

	// Serial is permanent: the update only lands while it is unset.
	updateDeviceSerialSQL = `UPDATE devices SET serial = $2
		WHERE id = $1 AND (serial IS NULL OR serial = '')`

	touchDeviceLastSeenSQL = `UPDATE devices SET last_seen = $2 WHERE id = $1`
)

// InventoryStore reads and maintains the branch/device inventory.
type InventoryStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewInventoryStore creates an InventoryStore backed by the pool.
func NewInventoryStore(pool *pgxpool.Pool, log logger.Logger) *InventoryStore {
	return &InventoryStore{pool: pool, logger: log}
}

func scanDevices(rows pgx.Rows) ([]models.Device, error) {
	defer rows.Close()

	var devices []models.Device

	for rows.Next() {
		var (
			d        models.Device
			lastSeen sql.NullTime
		)

		if err := rows.Scan(&d.ID, &d.BranchID, &d.Name, &d.IP, &d.Port, &d.Serial, &lastSeen, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}

		if lastSeen.Valid {
			t := lastSeen.Time
			d.LastSeen = &t
		}

		devices = append(devices, d)
	}

	return devices, rows.Err()
}

// ListDevices returns every device in the inventory.
func (s *InventoryStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, selectDevicesSQL+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	return scanDevices(rows)
}

// ListDevicesByBranch returns the devices belonging to one branch.
func (s *InventoryStore) ListDevicesByBranch(ctx context.Context, branchID int64) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, selectDevicesSQL+" WHERE branch_id = $1 ORDER BY id", branchID)
	if err != nil {
		return nil, fmt.Errorf("list branch devices: %w", err)
	}

	return scanDevices(rows)
}

// GetBranch fetches one branch by id, or ErrNotFound.
func (s *InventoryStore) GetBranch(ctx context.Context, id int64) (*models.Branch, error) {
	var b models.Branch

	err := s.pool.QueryRow(ctx, selectBranchSQL, id).Scan(&b.ID, &b.Name, &b.IPRange, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get branch: %w", err)
	}

	return &b, nil
}

// UpdateDeviceSerial records a device's serial the first time it is
// learned. It reports whether the row changed; a device whose serial is
// already set is left untouched.
func (s *InventoryStore) UpdateDeviceSerial(ctx context.Context, deviceID int64, serial string) (bool, error) {
	if serial == "" {
		return false, nil
	}

	tag, err := s.pool.Exec(ctx, updateDeviceSerialSQL, deviceID, serial)
	if err != nil {
		return false, fmt.Errorf("update device serial: %w", err)
	}

	updated := tag.RowsAffected() > 0
	if updated && s.logger != nil {
		s.logger.Info().
			Int64("device_id", deviceID).
			Str("serial", serial).
			Msg("stored device serial")
	}

	return updated, nil
}

// TouchDeviceLastSeen stamps a successful contact with the device.
func (s *InventoryStore) TouchDeviceLastSeen(ctx context.Context, deviceID int64, at time.Time) error {
	if _, err := s.pool.Exec(ctx, touchDeviceLastSeenSQL, deviceID, at); err != nil {
		return fmt.Errorf("touch device last_seen: %w", err)
	}

	return nil
}
