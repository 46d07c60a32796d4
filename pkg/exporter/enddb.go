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

package exporter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockhouse/attendsync/pkg/db"
	"github.com/clockhouse/attendsync/pkg/logger"
)

const defaultTargetTable = "att_raw_data_old"

// pgxEndStore writes to a Postgres end table through a pgx pool.
type pgxEndStore struct {
	pool      *pgxpool.Pool
	existsSQL string
	insertSQL string
}

func openPgxEndStore(log logger.Logger) OpenEndStore {
	return func(ctx context.Context, uri, table string) (EndStore, error) {
		if table == "" {
			table = defaultTargetTable
		}

		pool, err := db.NewPoolFromURI(ctx, uri, log)
		if err != nil {
			return nil, err
		}

		ident := pgx.Identifier{table}.Sanitize()

		return &pgxEndStore{
			pool: pool,
			existsSQL: fmt.Sprintf(
				`SELECT 1 FROM %s WHERE log_date = $1 AND badge = $2 AND log_time = $3 AND access_device = $4 LIMIT 1`,
				ident),
			insertSQL: fmt.Sprintf(
				`INSERT INTO %s (log_date, badge, badge_dup, placeholder, log_time, flag, access_door, batch, access_device)
				 VALUES ($1, $2, $2, '', $3, '0', $4, '', $5)`,
				ident),
		}, nil
	}
}

func (s *pgxEndStore) Exists(ctx context.Context, row *EndRow) (bool, error) {
	var one int

	err := s.pool.QueryRow(ctx, s.existsSQL, row.LogDate, row.Badge, row.LogTime, row.AccessDevice).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("end-db probe: %w", err)
	}

	return true, nil
}

func (s *pgxEndStore) Insert(ctx context.Context, row *EndRow) error {
	_, err := s.pool.Exec(ctx, s.insertSQL,
		row.LogDate, row.Badge, row.LogTime, row.AccessDoor, row.AccessDevice)
	if err != nil {
		return fmt.Errorf("end-db insert: %w", err)
	}

	return nil
}

func (s *pgxEndStore) Close() {
	s.pool.Close()
}
