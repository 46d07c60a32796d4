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

package models

import "time"

// JobType identifies what a background job does.
type JobType string

const (
	JobPollAll        JobType = "poll_all"
	JobPollBranch     JobType = "poll_branch"
	JobStartScheduler JobType = "start_scheduler"
	JobStopScheduler  JobType = "stop_scheduler"
	JobExportEndDB    JobType = "export_enddb"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobRunning  JobStatus = "running"
	JobFinished JobStatus = "finished"
	JobFailed   JobStatus = "failed"
)

// JobRecord is the registry entry for one background job.
type JobRecord struct {
	JobID      string        `json:"job_id"`
	Type       JobType       `json:"type"`
	Status     JobStatus     `json:"status"`
	BranchID   *int64        `json:"branch_id,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Total      int           `json:"total"`
	Done       int           `json:"done"`
	Results    []interface{} `json:"results"`
	Error      string        `json:"error,omitempty"`
}

// DeviceResult is the per-device outcome collected by a poll run.
type DeviceResult struct {
	DeviceID  int64     `json:"device_id"`
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	Fetched   int       `json:"fetched"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunSummary is the JSON footer appended to each run log file.
type RunSummary struct {
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	DevicesPolled  int        `json:"devices_polled"`
	NewEvents      int        `json:"new_events"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	Exceptions     [][]string `json:"exceptions"`
	Logfile        string     `json:"logfile"`
}

// ExportResult summarizes one exporter batch.
type ExportResult struct {
	Exported         int `json:"exported"`
	SkippedExisting  int `json:"skipped_existing"`
	SkippedEmptyUser int `json:"skipped_empty_user"`
	Errors           int `json:"errors"`
}
