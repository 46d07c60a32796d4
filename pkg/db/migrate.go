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
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockhouse/attendsync/pkg/logger"
)

// schemaStatements creates the attendance schema. Statements are
// idempotent so Migrate can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS branches (
		id         BIGSERIAL PRIMARY KEY,
		name       TEXT NOT NULL UNIQUE,
		ip_range   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS devices (
		id         BIGSERIAL PRIMARY KEY,
		branch_id  BIGINT NOT NULL REFERENCES branches(id),
		name       TEXT NOT NULL,
		ip         TEXT NOT NULL,
		port       INTEGER NOT NULL DEFAULT 4370,
		serial     TEXT,
		last_seen  TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGSERIAL PRIMARY KEY,
		branch_id     BIGINT NOT NULL REFERENCES branches(id),
		full_name     TEXT NOT NULL,
		employee_code TEXT NOT NULL UNIQUE,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS badges (
		id           BIGSERIAL PRIMARY KEY,
		user_id      BIGINT NOT NULL REFERENCES users(id),
		badge_number TEXT NOT NULL UNIQUE,
		status       TEXT NOT NULL DEFAULT 'active',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS user_device_map (
		id        BIGSERIAL PRIMARY KEY,
		user_id   BIGINT NOT NULL REFERENCES users(id),
		device_id BIGINT NOT NULL REFERENCES devices(id),
		UNIQUE (user_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS device_user_refs (
		id            BIGSERIAL PRIMARY KEY,
		device_userid TEXT NOT NULL,
		badge_number  TEXT NOT NULL,
		name          TEXT,
		device_serial TEXT NOT NULL,
		source        TEXT NOT NULL DEFAULT 'device',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (device_userid, device_serial),
		CONSTRAINT device_user_refs_badge_number_key UNIQUE (badge_number)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_events (
		id            BIGSERIAL PRIMARY KEY,
		device_id     BIGINT NOT NULL REFERENCES devices(id),
		record_id     BIGINT NOT NULL,
		user_id       TEXT NOT NULL DEFAULT '',
		device_userid TEXT NOT NULL,
		badge_id      BIGINT REFERENCES badges(id),
		ts            TIMESTAMPTZ NOT NULL,
		status        TEXT NOT NULL DEFAULT '',
		exported      BOOLEAN NOT NULL DEFAULT FALSE,
		exported_at   TIMESTAMPTZ,
		UNIQUE (device_id, record_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_events_unexported
		ON attendance_events (ts) WHERE NOT exported`,
	`CREATE TABLE IF NOT EXISTS raw_events (
		id            BIGSERIAL PRIMARY KEY,
		device_userid TEXT NOT NULL,
		ts            TIMESTAMPTZ NOT NULL,
		type          TEXT NOT NULL DEFAULT '',
		verify_code   TEXT NOT NULL DEFAULT '',
		sensor_id     TEXT NOT NULL DEFAULT '',
		memo          TEXT NOT NULL DEFAULT '',
		workcode      TEXT NOT NULL DEFAULT '',
		device_serial TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_events_lookup
		ON raw_events (device_userid, ts, device_serial)`,
}

// Migrate applies the schema to the attendance database.
func Migrate(ctx context.Context, pool *pgxpool.Pool, log logger.Logger) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: migration failed: %w", err)
		}
	}

	if log != nil {
		log.Debug().Int("statements", len(schemaStatements)).Msg("schema migration complete")
	}

	return nil
}
