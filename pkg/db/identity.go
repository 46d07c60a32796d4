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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

const (
	selectBadgeByNumberSQL = `SELECT id, user_id, badge_number, status, created_at
		FROM badges WHERE badge_number = $1`

	selectRefSQL = `SELECT id, device_userid, badge_number, COALESCE(name, ''), device_serial, source, updated_at
		FROM device_user_refs WHERE device_userid = $1 AND device_serial = $2`

	selectRefAnySerialSQL = `SELECT id, device_userid, badge_number, COALESCE(name, ''), device_serial, source, updated_at
		FROM device_user_refs WHERE device_userid = $1 ORDER BY updated_at DESC LIMIT 1`

	selectRefByBadgeSQL = `SELECT id, device_userid, badge_number, COALESCE(name, ''), device_serial, source, updated_at
		FROM device_user_refs WHERE badge_number = $1`

	// Only a real change bumps updated_at, so the roster upsert is
	// idempotent across polls.
	upsertRefSQL = `INSERT INTO device_user_refs (device_userid, badge_number, name, device_serial, source, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, now())
		ON CONFLICT (device_userid, device_serial) DO UPDATE
		SET badge_number = EXCLUDED.badge_number,
		    name = EXCLUDED.name,
		    source = EXCLUDED.source,
		    updated_at = now()
		WHERE device_user_refs.badge_number IS DISTINCT FROM EXCLUDED.badge_number
		   OR device_user_refs.name IS DISTINCT FROM EXCLUDED.name`

	deleteRefsNotInSQL = `DELETE FROM device_user_refs
		WHERE device_serial = $1 AND NOT (device_userid = ANY($2))`

	selectBadgeRefMapSQL = `SELECT badge_number, device_userid
		FROM device_user_refs WHERE device_serial = $1`

	insertUserSQL = `INSERT INTO users (branch_id, full_name, employee_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (employee_code) DO NOTHING`

	selectUserByCodeSQL = `SELECT id, branch_id, full_name, employee_code, created_at
		FROM users WHERE employee_code = $1`

	insertBadgeSQL = `INSERT INTO badges (user_id, badge_number, status)
		VALUES ($1, $2, 'active')
		ON CONFLICT (badge_number) DO NOTHING`

	insertUserDeviceMapSQL = `INSERT INTO user_device_map (user_id, device_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, device_id) DO NOTHING`
)

// IdentityStore persists badges, users, and the replicated device roster.
type IdentityStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewIdentityStore creates an IdentityStore backed by the pool.
func NewIdentityStore(pool *pgxpool.Pool, log logger.Logger) *IdentityStore {
	return &IdentityStore{pool: pool, logger: log}
}

// GetBadgeByNumber fetches a badge by its globally unique number, or
// ErrNotFound.
func (s *IdentityStore) GetBadgeByNumber(ctx context.Context, number string) (*models.Badge, error) {
	var b models.Badge

	err := s.pool.QueryRow(ctx, selectBadgeByNumberSQL, number).
		Scan(&b.ID, &b.UserID, &b.BadgeNumber, &b.Status, &b.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get badge: %w", err)
	}

	return &b, nil
}

func scanRef(row pgx.Row) (*models.DeviceUserRef, error) {
	var r models.DeviceUserRef

	err := row.Scan(&r.ID, &r.DeviceUserID, &r.BadgeNumber, &r.Name, &r.DeviceSerial, &r.Source, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get device user ref: %w", err)
	}

	return &r, nil
}

// GetDeviceUserRef fetches the roster entry for a device-local user id on
// a specific device serial.
func (s *IdentityStore) GetDeviceUserRef(ctx context.Context, deviceUserID, serial string) (*models.DeviceUserRef, error) {
	return scanRef(s.pool.QueryRow(ctx, selectRefSQL, deviceUserID, serial))
}

// GetDeviceUserRefAnySerial fetches the most recently updated roster entry
// for a device-local user id across all serials.
func (s *IdentityStore) GetDeviceUserRefAnySerial(ctx context.Context, deviceUserID string) (*models.DeviceUserRef, error) {
	return scanRef(s.pool.QueryRow(ctx, selectRefAnySerialSQL, deviceUserID))
}

// badgeNumberConstraint enforces that a badge number maps to at most
// one roster entry across all devices.
const badgeNumberConstraint = "device_user_refs_badge_number_key"

const uniqueViolationCode = "23505"

// isBadgeConflict reports whether err is a unique violation on the
// global badge_number constraint.
func isBadgeConflict(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) &&
		pgErr.Code == uniqueViolationCode &&
		pgErr.ConstraintName == badgeNumberConstraint
}

// UpsertDeviceUserRef inserts or refreshes a roster entry. Unchanged
// entries are left alone. A badge number already bound to a different
// device-local id keeps its existing binding: the statement rolls back,
// the holder is re-read for the log, and the poll continues.
func (s *IdentityStore) UpsertDeviceUserRef(ctx context.Context, ref *models.DeviceUserRef) error {
	source := ref.Source
	if source == "" {
		source = "device"
	}

	_, err := s.pool.Exec(ctx, upsertRefSQL,
		ref.DeviceUserID, ref.BadgeNumber, ref.Name, ref.DeviceSerial, source)
	if isBadgeConflict(err) {
		holder, rerr := scanRef(s.pool.QueryRow(ctx, selectRefByBadgeSQL, ref.BadgeNumber))
		if rerr != nil {
			return fmt.Errorf("re-read after badge conflict: %w", rerr)
		}

		s.logger.Warn().
			Str("badge_number", ref.BadgeNumber).
			Str("device_userid", ref.DeviceUserID).
			Str("device_serial", ref.DeviceSerial).
			Str("held_by", holder.DeviceUserID).
			Str("held_on", holder.DeviceSerial).
			Msg("badge number already mapped, keeping existing roster entry")

		return nil
	}

	if err != nil {
		return fmt.Errorf("upsert device user ref: %w", err)
	}

	return nil
}

// DeleteDeviceUserRefsNotIn prunes roster entries for a serial whose
// device_userid no longer appears on the device. It returns the number of
// rows removed.
func (s *IdentityStore) DeleteDeviceUserRefsNotIn(ctx context.Context, serial string, keep []string) (int64, error) {
	if len(keep) == 0 {
		// An empty roster usually means a truncated read, not a
		// wiped device. Never prune everything.
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, deleteRefsNotInSQL, serial, keep)
	if err != nil {
		return 0, fmt.Errorf("prune device user refs: %w", err)
	}

	return tag.RowsAffected(), nil
}

// BadgeToDeviceUserIDMap returns badge_number -> device_userid for every
// roster entry on a serial.
func (s *IdentityStore) BadgeToDeviceUserIDMap(ctx context.Context, serial string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, selectBadgeRefMapSQL, serial)
	if err != nil {
		return nil, fmt.Errorf("badge ref map: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)

	for rows.Next() {
		var badge, userID string

		if err := rows.Scan(&badge, &userID); err != nil {
			return nil, fmt.Errorf("scan badge ref: %w", err)
		}

		result[badge] = userID
	}

	return result, rows.Err()
}

// EnsureUser creates a user keyed by employee_code if absent and returns
// the stored row either way. An existing user is never renamed.
func (s *IdentityStore) EnsureUser(ctx context.Context, branchID int64, fullName, employeeCode string) (*models.User, error) {
	if _, err := s.pool.Exec(ctx, insertUserSQL, branchID, fullName, employeeCode); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}

	var u models.User

	err := s.pool.QueryRow(ctx, selectUserByCodeSQL, employeeCode).
		Scan(&u.ID, &u.BranchID, &u.FullName, &u.EmployeeCode, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure user select: %w", err)
	}

	return &u, nil
}

// EnsureBadge creates a badge for the user if the number is unissued and
// returns the stored badge. A badge number already bound to another user
// is returned as-is: numbers are never reassigned.
func (s *IdentityStore) EnsureBadge(ctx context.Context, userID int64, badgeNumber string) (*models.Badge, error) {
	if _, err := s.pool.Exec(ctx, insertBadgeSQL, userID, badgeNumber); err != nil {
		return nil, fmt.Errorf("ensure badge: %w", err)
	}

	return s.GetBadgeByNumber(ctx, badgeNumber)
}

// EnsureUserDeviceMap links a user to a device, idempotently.
func (s *IdentityStore) EnsureUserDeviceMap(ctx context.Context, userID, deviceID int64) error {
	if _, err := s.pool.Exec(ctx, insertUserDeviceMapSQL, userID, deviceID); err != nil {
		return fmt.Errorf("ensure user device map: %w", err)
	}

	return nil
}
