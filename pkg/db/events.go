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
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

const (
	selectRecordIDsSQL = `SELECT record_id FROM attendance_events WHERE device_id = $1`

	insertEventSQL = `INSERT INTO attendance_events
		(device_id, record_id, user_id, device_userid, badge_id, ts, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (device_id, record_id) DO NOTHING`

	insertRawEventSQL = `INSERT INTO raw_events
		(device_userid, ts, type, verify_code, sensor_id, memo, workcode, device_serial)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	selectUnexportedSQL = `SELECT id, device_id, record_id, user_id, device_userid, badge_id, ts, status
		FROM attendance_events
		WHERE NOT exported AND ts >= $1
		ORDER BY id
		LIMIT $2`

	markExportedSQL = `UPDATE attendance_events SET exported = TRUE, exported_at = $2
		WHERE id = ANY($1)`
)

// EventStore persists attendance events and their legacy replica rows.
type EventStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

// NewEventStore creates an EventStore backed by the pool.
func NewEventStore(pool *pgxpool.Pool, log logger.Logger) *EventStore {
	return &EventStore{pool: pool, logger: log}
}

// ExistingRecordIDs returns the set of device-assigned record ids already
// ingested for a device. The fetcher diffs against it before committing.
func (s *EventStore) ExistingRecordIDs(ctx context.Context, deviceID int64) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, selectRecordIDsSQL, deviceID)
	if err != nil {
		return nil, fmt.Errorf("existing record ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})

	for rows.Next() {
		var id int64

		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}

		ids[id] = struct{}{}
	}

	return ids, rows.Err()
}

// CommitBatch writes attendance events and their replica rows in one
// transaction. In degraded mode the caller passes an empty raws slice and
// only the canonical events land.
func (s *EventStore) CommitBatch(ctx context.Context, events []*models.AttendanceEvent, raws []*models.RawEvent) error {
	if len(events) == 0 && len(raws) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("commit batch begin: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}

	for _, ev := range events {
		batch.Queue(insertEventSQL,
			ev.DeviceID, ev.RecordID, ev.UserID, ev.DeviceUserID, ev.BadgeID, ev.Timestamp, ev.Status)
	}

	for _, raw := range raws {
		batch.Queue(insertRawEventSQL,
			raw.DeviceUserID, raw.Timestamp, raw.Type, raw.VerifyCode,
			raw.SensorID, raw.Memo, raw.WorkCode, raw.DeviceSerial)
	}

	if err := execBatch(ctx, tx, batch, "attendance commit"); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug().
			Int("events", len(events)).
			Int("raw_events", len(raws)).
			Msg("committed attendance batch")
	}

	return nil
}

// execBatch runs every queued statement inside the transaction. The
// first statement error wins; the batch is always closed before the
// transaction can be used again.
func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, op string) error {
	if batch.Len() == 0 {
		return nil
	}

	res := tx.SendBatch(ctx, batch)

	var execErr error

	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			execErr = fmt.Errorf("%s: statement %d: %w", op, i, err)
			break
		}
	}

	if err := res.Close(); err != nil && execErr == nil {
		execErr = fmt.Errorf("%s: close batch: %w", op, err)
	}

	return execErr
}

// SelectUnexported returns up to limit unexported events with a timestamp
// at or after since, in insertion (id) order.
func (s *EventStore) SelectUnexported(ctx context.Context, since time.Time, limit int) ([]models.AttendanceEvent, error) {
	rows, err := s.pool.Query(ctx, selectUnexportedSQL, since, limit)
	if err != nil {
		return nil, fmt.Errorf("select unexported: %w", err)
	}
	defer rows.Close()

	var events []models.AttendanceEvent

	for rows.Next() {
		var (
			ev      models.AttendanceEvent
			badgeID sql.NullInt64
		)

		if err := rows.Scan(&ev.ID, &ev.DeviceID, &ev.RecordID, &ev.UserID, &ev.DeviceUserID,
			&badgeID, &ev.Timestamp, &ev.Status); err != nil {
			return nil, fmt.Errorf("scan unexported event: %w", err)
		}

		if badgeID.Valid {
			v := badgeID.Int64
			ev.BadgeID = &v
		}

		events = append(events, ev)
	}

	return events, rows.Err()
}

// MarkExported flags events as accepted by the end store.
func (s *EventStore) MarkExported(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.pool.Exec(ctx, markExportedSQL, ids, at); err != nil {
		return fmt.Errorf("mark exported: %w", err)
	}

	return nil
}
