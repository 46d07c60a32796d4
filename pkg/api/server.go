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

// Package api provides the HTTP control plane for attendsync.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/clockhouse/attendsync/pkg/bus"
	"github.com/clockhouse/attendsync/pkg/httpsrv"
	"github.com/clockhouse/attendsync/pkg/jobs"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

// JobService is the slice of the jobs manager the control plane drives.
type JobService interface {
	StartPollAll(ctx context.Context) (string, error)
	StartPollBranch(ctx context.Context, branchID int64) (string, error)
	StartScheduler(interval time.Duration) string
	StopScheduler() string
	RunExport(ctx context.Context) (*models.ExportResult, error)
	Get(jobID string) *models.JobRecord
	List(limit int) []*models.JobRecord
}

// Server is the HTTP API server.
type Server struct {
	router       *mux.Router
	jobs         JobService
	broker       *bus.Broker
	corsOrigins  []string
	pollInterval time.Duration
	logger       logger.Logger

	httpSrv *http.Server
}

// NewServer creates a Server. pollInterval is the default scheduler
// interval used when a start request carries no interval_seconds.
func NewServer(jobSvc JobService, broker *bus.Broker, corsOrigins []string, pollInterval time.Duration, log logger.Logger) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		jobs:         jobSvc,
		broker:       broker,
		corsOrigins:  corsOrigins,
		pollInterval: pollInterval,
		logger:       log.WithComponent("api"),
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(next http.Handler) http.Handler {
		return httpsrv.CommonMiddleware(next, s.corsOrigins, s.logger)
	})

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/api/sync/start", s.handleSyncStart).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sync/stop", s.handleSyncStop).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sync/one", s.handleSyncOne).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sync/branch/{id}", s.handleSyncBranch).Methods(http.MethodPost)
	s.router.HandleFunc("/api/sync/job/{id}", s.handleGetJob).Methods(http.MethodGet)
	s.router.HandleFunc("/api/sync/jobs", s.handleListJobs).Methods(http.MethodGet)

	s.router.HandleFunc("/api/admin/export/enddb", s.handleExportEndDB).Methods(http.MethodPost)

	s.router.HandleFunc("/api/events/ws", s.handleEventStream).Methods(http.MethodGet)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves the control plane on addr until Stop is called.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.logger.Info().Str("addr", addr).Msg("control plane listening")

	return s.httpSrv.ListenAndServe()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}

	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type syncStartRequest struct {
	IntervalSeconds *float64 `json:"interval_seconds"`
}

func (s *Server) handleSyncStart(w http.ResponseWriter, r *http.Request) {
	interval := s.pollInterval

	if r.Body != nil && r.ContentLength != 0 {
		var req syncStartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if req.IntervalSeconds != nil {
			if *req.IntervalSeconds <= 0 {
				s.writeError(w, http.StatusBadRequest, "interval_seconds must be positive")
				return
			}

			interval = time.Duration(*req.IntervalSeconds * float64(time.Second))
		}
	}

	jobID := s.jobs.StartScheduler(interval)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleSyncStop(w http.ResponseWriter, _ *http.Request) {
	jobID := s.jobs.StopScheduler()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleSyncOne(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.jobs.StartPollAll(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to start poll job")
		s.writeError(w, http.StatusInternalServerError, "failed to start poll")

		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleSyncBranch(w http.ResponseWriter, r *http.Request) {
	branchID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid branch id")
		return
	}

	jobID, err := s.jobs.StartPollBranch(r.Context(), branchID)
	if err != nil {
		if errors.Is(err, jobs.ErrBranchNotFound) {
			s.writeError(w, http.StatusNotFound, "branch not found")
			return
		}

		s.logger.Error().Err(err).Int64("branch_id", branchID).Msg("failed to start branch poll")
		s.writeError(w, http.StatusInternalServerError, "failed to start poll")

		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec := s.jobs.Get(mux.Vars(r)["id"])
	if rec == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = n
	}

	records := s.jobs.List(limit)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"jobs": records})
}

func (s *Server) handleExportEndDB(w http.ResponseWriter, r *http.Request) {
	result, err := s.jobs.RunExport(r.Context())
	if err != nil {
		if errors.Is(err, jobs.ErrExportRunning) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}

		s.logger.Error().Err(err).Msg("export failed")

		s.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
			"result": result,
		})

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"result": result,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
