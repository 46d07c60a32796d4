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

package runner

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/bus"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

type fetchFunc func(ctx context.Context, device *models.Device) (int, error)

func (f fetchFunc) FetchDevice(ctx context.Context, device *models.Device) (int, error) {
	return f(ctx, device)
}

func testDevices(n int) []models.Device {
	devices := make([]models.Device, n)
	for i := range devices {
		devices[i] = models.Device{ID: int64(i + 1), Name: "dev", IP: "10.0.0.1"}
	}

	return devices
}

func TestRunCollectsResultsAndSummary(t *testing.T) {
	t.Parallel()

	broker := bus.NewBroker(logger.NewTestLogger())
	defer broker.Close()

	fetch := fetchFunc(func(_ context.Context, device *models.Device) (int, error) {
		if device.ID == 2 {
			return 0, errors.New("unreachable")
		}

		return 3, nil
	})

	r := New(Config{MaxWorkers: 4, LogDir: t.TempDir()}, fetch, broker, logger.NewTestLogger())

	var (
		mu      sync.Mutex
		results []models.DeviceResult
	)

	summary, err := r.Run(context.Background(), testDevices(3), func(res models.DeviceResult) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, res)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.DevicesPolled)
	assert.Equal(t, 6, summary.NewEvents)
	require.Len(t, summary.Exceptions, 1)
	assert.Equal(t, "unreachable", summary.Exceptions[0][1])
	assert.Len(t, results, 3)

	// The run log carries the banner and the JSON footer.
	data, err := os.ReadFile(summary.Logfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "===== ZK SYNC RUN START")
	assert.Contains(t, string(data), "RUN_SUMMARY_JSON: ")
}

func TestRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	broker := bus.NewBroker(logger.NewTestLogger())
	defer broker.Close()

	var current, peak int32

	fetch := fetchFunc(func(_ context.Context, _ *models.Device) (int, error) {
		n := atomic.AddInt32(&current, 1)

		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)

		return 0, nil
	})

	r := New(Config{MaxWorkers: 2, LogDir: t.TempDir()}, fetch, broker, logger.NewTestLogger())

	_, err := r.Run(context.Background(), testDevices(8), nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRunTriggersExportHook(t *testing.T) {
	t.Parallel()

	broker := bus.NewBroker(logger.NewTestLogger())
	defer broker.Close()

	fetch := fetchFunc(func(_ context.Context, _ *models.Device) (int, error) { return 1, nil })

	r := New(Config{MaxWorkers: 2, LogDir: t.TempDir(), ExportAfterPoll: true}, fetch, broker, logger.NewTestLogger())

	done := make(chan struct{})
	r.SetExportHook(func() { close(done) })

	_, err := r.Run(context.Background(), testDevices(1), nil)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("export hook was not invoked")
	}
}

func TestRunNoDevices(t *testing.T) {
	t.Parallel()

	broker := bus.NewBroker(logger.NewTestLogger())
	defer broker.Close()

	fetch := fetchFunc(func(_ context.Context, _ *models.Device) (int, error) {
		t.Fatal("fetch must not be called")
		return 0, nil
	})

	r := New(Config{MaxWorkers: 2, LogDir: t.TempDir()}, fetch, broker, logger.NewTestLogger())

	summary, err := r.Run(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.DevicesPolled)
	assert.Zero(t, summary.NewEvents)
}
