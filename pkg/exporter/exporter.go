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

// Package exporter pushes attendance events into the end database in
// idempotent batches.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clockhouse/attendsync/pkg/bus"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

// ErrEndDBNotConfigured indicates export was requested without an end
// database URI. Exports fail fast rather than silently skipping.
var ErrEndDBNotConfigured = errors.New("end database URI is not configured")

// Config carries the exporter knobs. TimeOffset is added to each event
// timestamp before deriving log_date/log_time; legacy deployments set it
// to -10m, new ones leave it at 0.
type Config struct {
	EndDBURI     string
	TargetTable  string
	BatchSize    int
	LookbackDays int
	TimeOffset   time.Duration
}

// EndRow is one row bound for the end table. The tuple
// (LogDate, Badge, LogTime, AccessDevice) is the de-duplication key.
type EndRow struct {
	LogDate      string
	Badge        string
	LogTime      string
	AccessDoor   string
	AccessDevice string
}

// EndStore is the end-database surface.
type EndStore interface {
	Exists(ctx context.Context, row *EndRow) (bool, error)
	Insert(ctx context.Context, row *EndRow) error
	Close()
}

// OpenEndStore dials the end database. Swapped out in tests.
type OpenEndStore func(ctx context.Context, uri, table string) (EndStore, error)

// Source is the event-store surface the exporter drains.
type Source interface {
	SelectUnexported(ctx context.Context, since time.Time, limit int) ([]models.AttendanceEvent, error)
	MarkExported(ctx context.Context, ids []int64, at time.Time) error
}

// Inventory supplies device serials for door/device columns.
type Inventory interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
}

const unknownSerial = "UNKNOWN"

// accessDevicePrefix preserves the identifier the downstream reporting
// jobs already filter on.
const accessDevicePrefix = "ZKT-FLASK-"

// Exporter drains unexported events into the end table.
type Exporter struct {
	cfg       Config
	source    Source
	inventory Inventory
	open      OpenEndStore
	broker    *bus.Broker
	logger    logger.Logger
}

// New creates an Exporter. A nil open falls back to the pgx end store.
func New(cfg Config, source Source, inventory Inventory, open OpenEndStore, broker *bus.Broker, log logger.Logger) *Exporter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1500
	}

	if open == nil {
		open = openPgxEndStore(log)
	}

	return &Exporter{
		cfg:       cfg,
		source:    source,
		inventory: inventory,
		open:      open,
		broker:    broker,
		logger:    log.WithComponent("exporter"),
	}
}

// Run exports one batch. Rows already present in the end table are
// marked exported without re-sending; an end-DB insert failure aborts
// the rest of the batch (counted in Errors) and the next run picks the
// remainder up. Only configuration and read failures come back as
// errors.
func (e *Exporter) Run(ctx context.Context) (*models.ExportResult, error) {
	if e.cfg.EndDBURI == "" {
		return nil, ErrEndDBNotConfigured
	}

	start := time.Now()

	end, err := e.open(ctx, e.cfg.EndDBURI, e.cfg.TargetTable)
	if err != nil {
		return nil, fmt.Errorf("open end database: %w", err)
	}
	defer end.Close()

	var since time.Time
	if e.cfg.LookbackDays > 0 {
		since = time.Now().AddDate(0, 0, -e.cfg.LookbackDays)
	}

	events, err := e.source.SelectUnexported(ctx, since, e.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("select unexported events: %w", err)
	}

	serials, err := e.deviceSerials(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.ExportResult{}

	for i := range events {
		ev := &events[i]

		badge := ev.DeviceUserID
		if badge == "" {
			badge = ev.UserID
		}

		if badge == "" {
			result.SkippedEmptyUser++
			continue
		}

		serial, ok := serials[ev.DeviceID]
		if !ok || serial == "" {
			serial = unknownSerial
		}

		logDT := ev.Timestamp.Add(e.cfg.TimeOffset)
		row := &EndRow{
			LogDate:      logDT.Format("2006-01-02"),
			Badge:        badge,
			LogTime:      logDT.Format("15:04:05"),
			AccessDoor:   serial,
			AccessDevice: accessDevicePrefix + serial,
		}

		exists, err := end.Exists(ctx, row)
		if err != nil {
			result.Errors++

			e.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("end-db duplicate probe failed, aborting batch")

			break
		}

		if exists {
			result.SkippedExisting++
			e.markExported(ctx, ev.ID)

			continue
		}

		if err := end.Insert(ctx, row); err != nil {
			result.Errors++

			e.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("end-db insert failed, aborting batch")

			break
		}

		e.markExported(ctx, ev.ID)
		result.Exported++
	}

	elapsed := time.Since(start)

	e.logger.Info().
		Int("exported", result.Exported).
		Int("skipped_existing", result.SkippedExisting).
		Int("skipped_empty_user", result.SkippedEmptyUser).
		Int("errors", result.Errors).
		Dur("elapsed", elapsed).
		Msg("export batch complete")

	if e.broker != nil {
		e.broker.Publish(models.StreamEvent{
			Type:    models.StreamDBInsertTimes,
			Level:   models.LevelInfo,
			Message: fmt.Sprintf("export batch: %d rows in %s", result.Exported, elapsed.Round(time.Millisecond)),
			Extra: map[string]interface{}{
				"exported":         result.Exported,
				"skipped_existing": result.SkippedExisting,
				"errors":           result.Errors,
				"elapsed_ms":       elapsed.Milliseconds(),
			},
		})
	}

	return result, nil
}

// markExported stamps a single event. Per-row marking keeps a crash from
// leaving more than one row inconsistently flagged.
func (e *Exporter) markExported(ctx context.Context, id int64) {
	if err := e.source.MarkExported(ctx, []int64{id}, time.Now().UTC()); err != nil {
		e.logger.Warn().Err(err).Int64("event_id", id).Msg("mark exported failed")
	}
}

func (e *Exporter) deviceSerials(ctx context.Context) (map[int64]string, error) {
	devices, err := e.inventory.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	serials := make(map[int64]string, len(devices))
	for i := range devices {
		serials[devices[i].ID] = devices[i].Serial
	}

	return serials, nil
}
