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

// Package core assembles the attendsync service: database pool, stores,
// device pipeline, job registry, scheduler, exporter and control plane.
package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clockhouse/attendsync/pkg/api"
	"github.com/clockhouse/attendsync/pkg/bus"
	"github.com/clockhouse/attendsync/pkg/db"
	"github.com/clockhouse/attendsync/pkg/devlock"
	"github.com/clockhouse/attendsync/pkg/exporter"
	"github.com/clockhouse/attendsync/pkg/fetcher"
	"github.com/clockhouse/attendsync/pkg/identity"
	"github.com/clockhouse/attendsync/pkg/jobs"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
	"github.com/clockhouse/attendsync/pkg/runner"
	"github.com/clockhouse/attendsync/pkg/scheduler"
	"github.com/clockhouse/attendsync/pkg/terminal"
)

const shutdownTimeout = 10 * time.Second

// Server owns the wired service components and their lifecycle.
type Server struct {
	config *models.Config
	logger logger.Logger

	pool   *pgxpool.Pool
	broker *bus.Broker
	mirror *bus.NATSMirror
	jobs   *jobs.Manager
	sched  *scheduler.Scheduler
	api    *api.Server

	errCh chan error
}

// lockerAdapter narrows the devlock registry to the fetcher's Locker.
type lockerAdapter struct {
	reg *devlock.Registry
}

func (a lockerAdapter) Acquire(ctx context.Context, serial string, staleAfter, timeout time.Duration) (fetcher.LockHandle, error) {
	h, err := a.reg.Acquire(ctx, serial, staleAfter, timeout)
	if err != nil {
		return nil, err
	}

	return h, nil
}

// NewServer builds a fully wired Server from config. It connects to the
// source database and applies the schema migration before returning.
func NewServer(ctx context.Context, cfg *models.Config, log logger.Logger) (*Server, error) {
	pool, err := db.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	inventory := db.NewInventoryStore(pool, log)
	identityStore := db.NewIdentityStore(pool, log)
	events := db.NewEventStore(pool, log)

	broker := bus.NewBroker(log)

	var mirror *bus.NATSMirror

	if cfg.NATSURL != "" {
		mirror, err = bus.ConnectNATSMirror(ctx, cfg.NATSURL, log)
		if err != nil {
			// The mirror is an optional external tap; run without it.
			log.Warn().Err(err).Str("nats_url", cfg.NATSURL).Msg("NATS mirror unavailable")
		} else {
			broker.SetMirror(mirror)
		}
	}

	locks, err := devlock.NewRegistry(cfg.AccessLockDir, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	resolver := identity.NewResolver(identityStore, log)

	fetch := fetcher.New(fetcher.Config{
		ConnectTimeout:            time.Duration(cfg.ConnectTimeout),
		LockTimeout:               time.Duration(cfg.AccessLockTimeout),
		LockStale:                 time.Duration(cfg.AccessLockStale),
		PruneMissingDeviceUsers:   cfg.PruneMissingDeviceUsers,
		AutoCreateUserInfo:        cfg.AutoCreateUserInfo,
		AutoCreateUserInfoName:    cfg.AutoCreateUserInfoName,
		AllowInsertRawBadge:       cfg.AllowInsertRawBadge,
		AutoCreateUsersFromBadges: cfg.AutoCreateUsersFromBadges,
		AutoCreateUsersName:       cfg.AutoCreateUsersName,
		UnmappedDir:               cfg.SchedulerLogDir,
	}, terminal.NewDialer(log), events, identityStore, inventory, resolver, lockerAdapter{reg: locks}, broker, log)

	run := runner.New(runner.Config{
		MaxWorkers:      cfg.MaxPollWorkers,
		LogDir:          cfg.SchedulerLogDir,
		ExportAfterPoll: cfg.ExportAfterPoll,
	}, fetch, broker, log)

	exp := exporter.New(exporter.Config{
		EndDBURI:     cfg.EndDBURI,
		TargetTable:  cfg.EndTargetTable,
		BatchSize:    cfg.ExportBatchSize,
		LookbackDays: cfg.ExportLookbackDays,
		TimeOffset:   time.Duration(cfg.ExportTimeOffset),
	}, events, inventory, nil, broker, log)

	// The manager, runner and scheduler reference each other: the runner's
	// export hook is a manager job, the scheduler's poll closure drives the
	// runner, and the manager's start/stop jobs drive the scheduler.
	// Late-bind the manager.
	var manager *jobs.Manager

	poll := func(ctx context.Context) {
		devices, err := inventory.ListDevices(ctx)
		if err != nil {
			log.Error().Err(err).Msg("scheduled poll: list devices failed")
			broker.Log(models.LevelError, "scheduled poll failed: cannot list devices")

			return
		}

		if _, err := run.Run(ctx, devices, nil); err != nil {
			log.Error().Err(err).Msg("scheduled poll run failed")
		}
	}

	prune := func() {
		if manager != nil {
			manager.Prune(time.Duration(cfg.JobTTL))
		}
	}

	sched := scheduler.New(poll, prune, time.Duration(cfg.JobPruneInterval), nil, log)
	manager = jobs.NewManager(inventory, run, sched, exp, log)
	run.SetExportHook(manager.ExportHook())

	apiSrv := api.NewServer(manager, broker, cfg.CORSOrigins, time.Duration(cfg.PollInterval), log)

	return &Server{
		config: cfg,
		logger: log.WithComponent("core"),
		pool:   pool,
		broker: broker,
		mirror: mirror,
		jobs:   manager,
		sched:  sched,
		api:    apiSrv,
		errCh:  make(chan error, 1),
	}, nil
}

// Start serves the control plane. It returns once the listener is
// launched; fatal serve errors arrive on Errors().
func (s *Server) Start() error {
	s.logger.Info().Str("listen_addr", s.config.ListenAddr).Msg("starting attendsync")

	go func() {
		if err := s.api.Start(s.config.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errCh <- err
		}
	}()

	return nil
}

// Errors reports fatal server errors after Start.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Jobs exposes the job manager, mainly for tests and tooling.
func (s *Server) Jobs() *jobs.Manager {
	return s.jobs
}

// Stop shuts the service down: scheduler first so no new run begins,
// then the control plane, the event bus and the database pool.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping attendsync")

	if err := s.sched.Stop(); err != nil {
		s.logger.Warn().Err(err).Msg("scheduler stop failed")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.api.Stop(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("http shutdown failed")
	}

	s.broker.Close()

	if s.mirror != nil {
		s.mirror.Close()
	}

	s.pool.Close()

	s.logger.Info().Msg("attendsync stopped")

	return nil
}
