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

package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

type fakeInventory struct {
	devices  []models.Device
	branches map[int64]*models.Branch
}

func (f *fakeInventory) ListDevices(_ context.Context) ([]models.Device, error) {
	return f.devices, nil
}

func (f *fakeInventory) ListDevicesByBranch(_ context.Context, branchID int64) ([]models.Device, error) {
	var out []models.Device

	for _, d := range f.devices {
		if d.BranchID == branchID {
			out = append(out, d)
		}
	}

	return out, nil
}

func (f *fakeInventory) GetBranch(_ context.Context, id int64) (*models.Branch, error) {
	if b, ok := f.branches[id]; ok {
		return b, nil
	}

	return nil, errors.New("not found")
}

type fakeRunner struct {
	mu    sync.Mutex
	runs  int
	block chan struct{} // when set, Run waits for it
	err   error
}

func (f *fakeRunner) Run(_ context.Context, devices []models.Device, progress func(models.DeviceResult)) (*models.RunSummary, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	for _, d := range devices {
		if progress != nil {
			progress(models.DeviceResult{DeviceID: d.ID, Name: d.Name, Fetched: 2})
		}
	}

	return &models.RunSummary{DevicesPolled: len(devices), NewEvents: 2 * len(devices)}, f.err
}

type fakeScheduler struct {
	mu      sync.Mutex
	running bool
	startN  int
	stopN   int
}

func (f *fakeScheduler) Start(_ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = true
	f.startN++

	return nil
}

func (f *fakeScheduler) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stopN++

	return nil
}

func (f *fakeScheduler) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.running
}

type fakeExporter struct {
	mu     sync.Mutex
	runs   int
	block  chan struct{}
	result *models.ExportResult
	err    error
}

func (f *fakeExporter) Run(_ context.Context) (*models.ExportResult, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}

	if f.result == nil {
		f.result = &models.ExportResult{}
	}

	return f.result, f.err
}

func newTestManager(inv *fakeInventory, r *fakeRunner, s *fakeScheduler, e *fakeExporter) *Manager {
	return NewManager(inv, r, s, e, logger.NewTestLogger())
}

func waitForStatus(t *testing.T, m *Manager, jobID string, want models.JobStatus) *models.JobRecord {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if rec := m.Get(jobID); rec != nil && rec.Status == want {
			return rec
		}

		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("job %s never reached status %s", jobID, want)

	return nil
}

func TestStartPollAll(t *testing.T) {
	t.Parallel()

	inv := &fakeInventory{devices: []models.Device{{ID: 1, BranchID: 1}, {ID: 2, BranchID: 2}}}
	m := newTestManager(inv, &fakeRunner{}, &fakeScheduler{}, &fakeExporter{})

	jobID, err := m.StartPollAll(context.Background())
	require.NoError(t, err)

	rec := waitForStatus(t, m, jobID, models.JobFinished)
	assert.Equal(t, models.JobPollAll, rec.Type)
	assert.Equal(t, 2, rec.Total)
	assert.Equal(t, 2, rec.Done)
	// Two device results plus the run summary.
	assert.Len(t, rec.Results, 3)
}

func TestStartPollBranchUnknown(t *testing.T) {
	t.Parallel()

	inv := &fakeInventory{branches: map[int64]*models.Branch{}}
	m := newTestManager(inv, &fakeRunner{}, &fakeScheduler{}, &fakeExporter{})

	_, err := m.StartPollBranch(context.Background(), 42)
	assert.ErrorIs(t, err, ErrBranchNotFound)
}

func TestStartPollBranchFiltersDevices(t *testing.T) {
	t.Parallel()

	inv := &fakeInventory{
		devices:  []models.Device{{ID: 1, BranchID: 1}, {ID: 2, BranchID: 2}},
		branches: map[int64]*models.Branch{1: {ID: 1, Name: "HQ"}},
	}
	m := newTestManager(inv, &fakeRunner{}, &fakeScheduler{}, &fakeExporter{})

	jobID, err := m.StartPollBranch(context.Background(), 1)
	require.NoError(t, err)

	rec := waitForStatus(t, m, jobID, models.JobFinished)
	assert.Equal(t, 1, rec.Total)
	require.NotNil(t, rec.BranchID)
	assert.Equal(t, int64(1), *rec.BranchID)
}

func TestPollFailureMarksJobFailed(t *testing.T) {
	t.Parallel()

	inv := &fakeInventory{devices: []models.Device{{ID: 1}}}
	r := &fakeRunner{err: errors.New("run log unwritable")}
	m := newTestManager(inv, r, &fakeScheduler{}, &fakeExporter{})

	jobID, err := m.StartPollAll(context.Background())
	require.NoError(t, err)

	rec := waitForStatus(t, m, jobID, models.JobFailed)
	assert.Contains(t, rec.Error, "run log unwritable")
}

func TestSchedulerJobs(t *testing.T) {
	t.Parallel()

	sched := &fakeScheduler{}
	m := newTestManager(&fakeInventory{}, &fakeRunner{}, sched, &fakeExporter{})

	startID := m.StartScheduler(time.Hour)
	startRec := waitForStatus(t, m, startID, models.JobFinished)
	assert.True(t, sched.Running())
	assert.Equal(t, 1, startRec.Total)
	assert.Equal(t, 1, startRec.Done)

	stopID := m.StopScheduler()
	stopRec := waitForStatus(t, m, stopID, models.JobFinished)
	assert.False(t, sched.Running())
	assert.Equal(t, 1, stopRec.Total)
	assert.Equal(t, 1, stopRec.Done)
}

func TestRunExportSingleness(t *testing.T) {
	t.Parallel()

	exp := &fakeExporter{block: make(chan struct{})}
	m := newTestManager(&fakeInventory{}, &fakeRunner{}, &fakeScheduler{}, exp)

	firstDone := make(chan struct{})

	go func() {
		defer close(firstDone)

		_, err := m.RunExport(context.Background())
		assert.NoError(t, err)
	}()

	// Wait until the first export is inside Run.
	require.Eventually(t, func() bool {
		exp.mu.Lock()
		defer exp.mu.Unlock()
		return exp.runs == 1
	}, time.Second, 5*time.Millisecond)

	_, err := m.RunExport(context.Background())
	assert.ErrorIs(t, err, ErrExportRunning)

	close(exp.block)
	<-firstDone
}

func TestListNewestFirstAndLimit(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeInventory{}, &fakeRunner{}, &fakeScheduler{}, &fakeExporter{})

	var last string

	for i := 0; i < 5; i++ {
		last = m.StartScheduler(time.Hour)
		time.Sleep(2 * time.Millisecond)
	}

	jobs := m.List(3)
	require.Len(t, jobs, 3)
	assert.Equal(t, last, jobs[0].JobID)
	assert.True(t, jobs[0].StartedAt.After(jobs[2].StartedAt) || jobs[0].StartedAt.Equal(jobs[2].StartedAt))
}

func TestPruneRemovesOldTerminalJobs(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeInventory{}, &fakeRunner{}, &fakeScheduler{}, &fakeExporter{})

	jobID := m.StartScheduler(time.Hour)
	waitForStatus(t, m, jobID, models.JobFinished)

	// Fresh terminal job survives a generous TTL.
	assert.Zero(t, m.Prune(time.Hour))
	require.NotNil(t, m.Get(jobID))

	// A zero TTL prunes everything terminal.
	assert.Equal(t, 1, m.Prune(-time.Second))
	assert.Nil(t, m.Get(jobID))
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()

	m := newTestManager(&fakeInventory{}, &fakeRunner{}, &fakeScheduler{}, &fakeExporter{})
	assert.Nil(t, m.Get("nope"))
}
