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

// Package jobs is the in-memory registry of background jobs plus the
// starters that spawn them.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

// ErrExportRunning is returned when an export is requested while another
// export holds the global export lock.
var ErrExportRunning = errors.New("Export already running")

// ErrBranchNotFound is returned for poll requests naming an unknown branch.
var ErrBranchNotFound = errors.New("branch not found")

const defaultListLimit = 50

// Inventory lists devices for poll jobs.
type Inventory interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	ListDevicesByBranch(ctx context.Context, branchID int64) ([]models.Device, error)
	GetBranch(ctx context.Context, id int64) (*models.Branch, error)
}

// PollRunner executes one poll run over a device set.
type PollRunner interface {
	Run(ctx context.Context, devices []models.Device, progress func(models.DeviceResult)) (*models.RunSummary, error)
}

// Scheduler is the recurring-poll singleton the start/stop jobs drive.
type Scheduler interface {
	Start(interval time.Duration) error
	Stop() error
	Running() bool
}

// ExportRunner drains one export batch.
type ExportRunner interface {
	Run(ctx context.Context) (*models.ExportResult, error)
}

// Manager owns the registry and the export lock.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*models.JobRecord

	exportMu sync.Mutex

	inventory Inventory
	runner    PollRunner
	scheduler Scheduler
	exporter  ExportRunner
	logger    logger.Logger
}

// NewManager creates a Manager.
func NewManager(inventory Inventory, runner PollRunner, scheduler Scheduler, exporter ExportRunner, log logger.Logger) *Manager {
	return &Manager{
		jobs:      make(map[string]*models.JobRecord),
		inventory: inventory,
		runner:    runner,
		scheduler: scheduler,
		exporter:  exporter,
		logger:    log.WithComponent("jobs"),
	}
}

func (m *Manager) register(jobType models.JobType, branchID *int64, total int) *models.JobRecord {
	rec := &models.JobRecord{
		JobID:     uuid.New().String(),
		Type:      jobType,
		Status:    models.JobRunning,
		BranchID:  branchID,
		StartedAt: time.Now().UTC(),
		Total:     total,
		Results:   []interface{}{},
	}

	m.mu.Lock()
	m.jobs[rec.JobID] = rec
	m.mu.Unlock()

	return rec
}

func (m *Manager) finish(jobID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[jobID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	rec.FinishedAt = &now

	if err != nil {
		rec.Status = models.JobFailed
		rec.Error = err.Error()
	} else {
		rec.Status = models.JobFinished
	}
}

func (m *Manager) progress(jobID string) func(models.DeviceResult) {
	return func(res models.DeviceResult) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if rec, ok := m.jobs[jobID]; ok {
			rec.Done++
			rec.Results = append(rec.Results, res)
		}
	}
}

// markDone records that a single-step job completed its step, so a
// finished record reads Total/Total rather than 0/Total.
func (m *Manager) markDone(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.jobs[jobID]; ok {
		rec.Done = rec.Total
	}
}

// appendResult stores an arbitrary result payload on a job record.
func (m *Manager) appendResult(jobID string, result interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.jobs[jobID]; ok {
		rec.Results = append(rec.Results, result)
	}
}

// StartPollAll launches a poll of every device and returns immediately.
func (m *Manager) StartPollAll(ctx context.Context) (string, error) {
	devices, err := m.inventory.ListDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}

	rec := m.register(models.JobPollAll, nil, len(devices))
	go m.runPoll(rec.JobID, devices)

	return rec.JobID, nil
}

// StartPollBranch launches a poll of one branch's devices.
func (m *Manager) StartPollBranch(ctx context.Context, branchID int64) (string, error) {
	if _, err := m.inventory.GetBranch(ctx, branchID); err != nil {
		return "", fmt.Errorf("%w: %d", ErrBranchNotFound, branchID)
	}

	devices, err := m.inventory.ListDevicesByBranch(ctx, branchID)
	if err != nil {
		return "", fmt.Errorf("list branch devices: %w", err)
	}

	rec := m.register(models.JobPollBranch, &branchID, len(devices))
	go m.runPoll(rec.JobID, devices)

	return rec.JobID, nil
}

func (m *Manager) runPoll(jobID string, devices []models.Device) {
	summary, err := m.runner.Run(context.Background(), devices, m.progress(jobID))
	if summary != nil {
		m.appendResult(jobID, summary)
	}

	m.finish(jobID, err)
}

// StartScheduler turns the recurring poll on. The actual start is quick
// but still recorded as a job for the audit trail.
func (m *Manager) StartScheduler(interval time.Duration) string {
	rec := m.register(models.JobStartScheduler, nil, 1)

	go func() {
		err := m.scheduler.Start(interval)
		if err == nil {
			m.appendResult(rec.JobID, map[string]interface{}{"interval_seconds": interval.Seconds()})
			m.markDone(rec.JobID)
		}

		m.finish(rec.JobID, err)
	}()

	return rec.JobID
}

// StopScheduler turns the recurring poll off.
func (m *Manager) StopScheduler() string {
	rec := m.register(models.JobStopScheduler, nil, 1)

	go func() {
		err := m.scheduler.Stop()
		if err == nil {
			m.markDone(rec.JobID)
		}

		m.finish(rec.JobID, err)
	}()

	return rec.JobID
}

// RunExport executes one export batch synchronously under the global
// export lock. A concurrent call fails fast with ErrExportRunning.
func (m *Manager) RunExport(ctx context.Context) (*models.ExportResult, error) {
	if !m.exportMu.TryLock() {
		return nil, ErrExportRunning
	}
	defer m.exportMu.Unlock()

	rec := m.register(models.JobExportEndDB, nil, 1)

	result, err := m.exporter.Run(ctx)
	if result != nil {
		m.appendResult(rec.JobID, result)
		m.markDone(rec.JobID)
	}

	m.finish(rec.JobID, err)

	return result, err
}

// ExportHook returns the non-blocking trigger the runner fires after a
// poll. A busy export lock just skips: the next poll retries.
func (m *Manager) ExportHook() func() {
	return func() {
		if _, err := m.RunExport(context.Background()); err != nil {
			if errors.Is(err, ErrExportRunning) {
				m.logger.Debug().Msg("post-poll export skipped, export already running")
				return
			}

			m.logger.Error().Err(err).Msg("post-poll export failed")
		}
	}
}

// Get returns a snapshot of one job record, or nil.
func (m *Manager) Get(jobID string) *models.JobRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.jobs[jobID]
	if !ok {
		return nil
	}

	return snapshot(rec)
}

// List returns up to limit records, newest first by start time.
func (m *Manager) List(limit int) []*models.JobRecord {
	if limit <= 0 {
		limit = defaultListLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]*models.JobRecord, 0, len(m.jobs))
	for _, rec := range m.jobs {
		all = append(all, snapshot(rec))
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if len(all) > limit {
		all = all[:limit]
	}

	return all
}

// Prune drops terminal records whose finish time is older than ttl.
func (m *Manager) Prune(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	pruned := 0

	for id, rec := range m.jobs {
		if rec.Status == models.JobRunning || rec.FinishedAt == nil {
			continue
		}

		if rec.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
			pruned++
		}
	}

	if pruned > 0 {
		m.logger.Debug().Int("pruned", pruned).Msg("pruned finished jobs")
	}

	return pruned
}

func snapshot(rec *models.JobRecord) *models.JobRecord {
	out := *rec
	out.Results = append([]interface{}(nil), rec.Results...)

	if rec.FinishedAt != nil {
		t := *rec.FinishedAt
		out.FinishedAt = &t
	}

	return &out
}
