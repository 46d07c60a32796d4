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

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/logger"
)

// fakeClock hands out channel-driven tickers so tests control the ticks.
type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeClock) Now() time.Time {
	return time.Now()
}

func (f *fakeClock) Ticker(_ time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()

	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)

	return t
}

// pollTicker returns the first ticker the loop created, which is the
// poll ticker. The prune ticker is created second.
func (f *fakeClock) pollTicker(t *testing.T) *fakeTicker {
	t.Helper()

	deadline := time.Now().Add(time.Second)

	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := len(f.tickers)
		f.mu.Unlock()

		if n >= 2 {
			f.mu.Lock()
			defer f.mu.Unlock()

			return f.tickers[0]
		}

		time.Sleep(time.Millisecond)
	}

	t.Fatal("scheduler loop never created its tickers")

	return nil
}

func (f *fakeClock) pruneTicker(t *testing.T) *fakeTicker {
	t.Helper()

	f.pollTicker(t)

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.tickers[1]
}

type fakeTicker struct {
	c chan time.Time
}

func (f *fakeTicker) Chan() <-chan time.Time {
	return f.c
}

func (f *fakeTicker) Stop() {}

func (f *fakeTicker) tick() {
	f.c <- time.Now()
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	polls := make(chan struct{}, 8)

	s := New(func(context.Context) {
		polls <- struct{}{}
	}, nil, time.Hour, clock, logger.NewTestLogger())

	require.NoError(t, s.Start(time.Minute))
	assert.True(t, s.Running())

	clock.pollTicker(t).tick()

	select {
	case <-polls:
	case <-time.After(time.Second):
		t.Fatal("tick never triggered a poll")
	}

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
}

func TestStartIsReentrant(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	s := New(func(context.Context) {}, nil, time.Hour, clock, logger.NewTestLogger())

	require.NoError(t, s.Start(time.Minute))
	clock.pollTicker(t)

	// Second start must not spawn a second loop.
	require.NoError(t, s.Start(time.Minute))

	clock.mu.Lock()
	tickerCount := len(clock.tickers)
	clock.mu.Unlock()
	assert.Equal(t, 2, tickerCount)

	require.NoError(t, s.Stop())
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}

	var started atomic.Int32

	release := make(chan struct{})

	s := New(func(context.Context) {
		started.Add(1)
		<-release
	}, nil, time.Hour, clock, logger.NewTestLogger())

	require.NoError(t, s.Start(time.Minute))

	ticker := clock.pollTicker(t)
	ticker.tick()

	require.Eventually(t, func() bool {
		return started.Load() == 1
	}, time.Second, time.Millisecond)

	// Ticks arriving while the first run is still active are dropped.
	ticker.tick()
	ticker.tick()

	assert.Equal(t, int32(1), started.Load())

	close(release)

	// After the run finishes the next tick polls again.
	require.Eventually(t, func() bool {
		ticker.tick()
		return started.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
}

func TestStopWaitsForInFlightPoll(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}

	var finished atomic.Bool

	release := make(chan struct{})

	s := New(func(context.Context) {
		<-release
		finished.Store(true)
	}, nil, time.Hour, clock, logger.NewTestLogger())

	require.NoError(t, s.Start(time.Minute))

	clock.pollTicker(t).tick()

	// Give the poll goroutine a moment to grab the in-flight lock.
	require.Eventually(t, func() bool {
		if s.inFlight.TryLock() {
			s.inFlight.Unlock()
			return false
		}

		return true
	}, time.Second, time.Millisecond)

	stopDone := make(chan struct{})

	go func() {
		defer close(stopDone)

		_ = s.Stop()
	}()

	select {
	case <-stopDone:
		t.Fatal("stop returned while a poll was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-stopDone
	assert.True(t, finished.Load())
}

func TestPruneTickerFires(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{}
	pruned := make(chan struct{}, 4)

	s := New(func(context.Context) {}, func() {
		pruned <- struct{}{}
	}, time.Minute, clock, logger.NewTestLogger())

	require.NoError(t, s.Start(time.Minute))

	clock.pruneTicker(t).tick()

	select {
	case <-pruned:
	case <-time.After(time.Second):
		t.Fatal("prune tick never fired the prune func")
	}

	require.NoError(t, s.Stop())
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	s := New(func(context.Context) {}, nil, time.Minute, &fakeClock{}, logger.NewTestLogger())
	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
}
