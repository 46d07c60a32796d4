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

// Package scheduler runs the recurring poll as a singleton ticker with a
// job-prune companion.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/clockhouse/attendsync/pkg/logger"
)

// PollFunc triggers one poll run. The scheduler guarantees it is never
// invoked concurrently with itself: a tick arriving while the previous
// run is still active is skipped.
type PollFunc func(ctx context.Context)

// PruneFunc prunes finished job records.
type PruneFunc func()

// Scheduler is the recurring-poll singleton.
type Scheduler struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	clock         Clock
	poll          PollFunc
	prune         PruneFunc
	pruneInterval time.Duration
	logger        logger.Logger

	// inFlight guards against overlapping runs when a poll outlasts the
	// tick interval.
	inFlight sync.Mutex
}

// New creates a stopped Scheduler. A nil clock uses wall time.
func New(poll PollFunc, prune PruneFunc, pruneInterval time.Duration, clock Clock, log logger.Logger) *Scheduler {
	if clock == nil {
		clock = systemClock{}
	}

	if pruneInterval <= 0 {
		pruneInterval = 10 * time.Minute
	}

	return &Scheduler{
		clock:         clock,
		poll:          poll,
		prune:         prune,
		pruneInterval: pruneInterval,
		logger:        log.WithComponent("scheduler"),
	}
}

// Start registers the periodic poll and prune jobs. Re-entrant start is
// a no-op while running.
func (s *Scheduler) Start(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Info().Msg("scheduler already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	go s.loop(ctx, interval, s.done)

	s.logger.Info().Dur("interval", interval).Msg("scheduler started")

	return nil
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	pollTicker := s.clock.Ticker(interval)
	defer pollTicker.Stop()

	pruneTicker := s.clock.Ticker(s.pruneInterval)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-pollTicker.Chan():
			// max_instances=1: skip the tick if the previous run is
			// still active.
			if !s.inFlight.TryLock() {
				s.logger.Warn().Msg("previous poll run still active, skipping tick")
				continue
			}

			go func() {
				defer s.inFlight.Unlock()
				s.poll(ctx)
			}()

		case <-pruneTicker.Chan():
			if s.prune != nil {
				s.prune()
			}
		}
	}
}

// Stop deregisters both periodic jobs and waits for the loop to exit.
// The in-flight run, if any, completes naturally.
func (s *Scheduler) Stop() error {
	s.mu.Lock()

	if !s.running {
		s.mu.Unlock()
		return nil
	}

	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	// Wait out a run that was in flight when the loop exited.
	s.inFlight.Lock()
	s.inFlight.Unlock() //nolint:staticcheck // empty critical section is the wait

	s.logger.Info().Msg("scheduler stopped")

	return nil
}

// Running reports whether the periodic job is registered.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// systemClock is the wall-time Clock used outside tests.
type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Ticker(d time.Duration) Ticker {
	return wallTicker{time.NewTicker(d)}
}

// wallTicker adapts time.Ticker; Stop is promoted from the embedded
// ticker.
type wallTicker struct {
	*time.Ticker
}

func (w wallTicker) Chan() <-chan time.Time { return w.C }
