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

// Package runner orchestrates one poll run: a bounded worker pool of
// device fetches with a run-scoped capture log and a JSON summary.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clockhouse/attendsync/pkg/bus"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

// DeviceFetcher runs the per-device pipeline.
type DeviceFetcher interface {
	FetchDevice(ctx context.Context, device *models.Device) (int, error)
}

// Config carries the runner knobs.
type Config struct {
	MaxWorkers      int
	LogDir          string
	ExportAfterPoll bool
}

// Runner executes poll runs.
type Runner struct {
	cfg     Config
	fetcher DeviceFetcher
	broker  *bus.Broker
	logger  logger.Logger

	// exportHook is fired (non-blocking) after a run when
	// ExportAfterPoll is set. The job manager wires it to an export job.
	exportHook func()
}

// New creates a Runner.
func New(cfg Config, fetcher DeviceFetcher, broker *bus.Broker, log logger.Logger) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}

	return &Runner{
		cfg:     cfg,
		fetcher: fetcher,
		broker:  broker,
		logger:  log.WithComponent("runner"),
	}
}

// SetExportHook attaches the post-run export trigger.
func (r *Runner) SetExportHook(hook func()) {
	r.exportHook = hook
}

// Run polls the given devices concurrently and returns the run summary.
// Per-device failures are recorded in the summary, never propagated: one
// dead device must not fail the run.
func (r *Runner) Run(ctx context.Context, devices []models.Device, progress func(models.DeviceResult)) (*models.RunSummary, error) {
	start := time.Now()

	rf, err := logger.StartRun(r.cfg.LogDir, start)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	defer func() { _ = rf.Close() }()

	// Workers log through a tee so the run file captures everything the
	// operator console sees.
	runLog := r.logger.Output(io.MultiWriter(os.Stderr, rf))
	runLog.Info().Int("devices", len(devices)).Int("workers", r.cfg.MaxWorkers).Msg("poll run started")
	r.broker.Log(models.LevelInfo, fmt.Sprintf("poll run started: %d devices", len(devices)))

	var (
		mu         sync.Mutex
		newEvents  int
		exceptions [][]string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.MaxWorkers)

	for i := range devices {
		device := devices[i]

		g.Go(func() error {
			fetched, ferr := r.fetcher.FetchDevice(gctx, &device)

			result := models.DeviceResult{
				DeviceID:  device.ID,
				Name:      device.Name,
				IP:        device.IP,
				Fetched:   fetched,
				Timestamp: time.Now().UTC(),
			}

			if ferr != nil {
				result.Error = ferr.Error()

				runLog.Error().Err(ferr).Str("device", device.Name).Msg("device poll failed")
			} else {
				runLog.Info().Str("device", device.Name).Int("fetched", fetched).Msg("device polled")
			}

			mu.Lock()
			newEvents += fetched

			if ferr != nil {
				exceptions = append(exceptions, []string{device.Name, ferr.Error()})
			}
			mu.Unlock()

			if progress != nil {
				progress(result)
			}

			return nil
		})
	}

	_ = g.Wait()

	end := time.Now()
	summary := &models.RunSummary{
		Start:          start.UTC(),
		End:            end.UTC(),
		DevicesPolled:  len(devices),
		NewEvents:      newEvents,
		ElapsedSeconds: end.Sub(start).Seconds(),
		Exceptions:     exceptions,
		Logfile:        rf.Path(),
	}

	if err := rf.WriteSummary(summary); err != nil {
		runLog.Warn().Err(err).Msg("write run summary failed")
	}

	runLog.Info().
		Int("new_events", newEvents).
		Int("failures", len(exceptions)).
		Float64("elapsed_s", summary.ElapsedSeconds).
		Msg("poll run finished")
	r.broker.Log(models.LevelInfo, fmt.Sprintf("poll run finished: %d new events, %d failures", newEvents, len(exceptions)))

	if r.cfg.ExportAfterPoll && r.exportHook != nil {
		go r.exportHook()
	}

	return summary, nil
}
