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

package logger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clockhouse/attendsync/pkg/models"
)

const runFilePerm = 0o644

// RunFile captures one poll run into a timestamped log file. It is safe
// for concurrent writes, so it can back a zerolog MultiLevelWriter shared
// by all workers of the run.
type RunFile struct {
	mu    sync.Mutex
	f     *os.File
	path  string
	start time.Time
}

// StartRun opens {dir}/zk_sync_{YYYYMMDD_HHMMSS}.log for appending and
// writes the run start banner. The directory is created if missing.
func StartRun(dir string, now time.Time) (*RunFile, error) {
	if dir == "" {
		dir = "logs"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("run log dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("zk_sync_%s.log", now.Format("20060102_150405")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, runFilePerm)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	header := fmt.Sprintf("\n===== ZK SYNC RUN START: %s =====\n", now.Format("2006-01-02 15:04:05"))
	if _, err := f.WriteString(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write run header: %w", err)
	}

	return &RunFile{f: f, path: path, start: now}, nil
}

// Path returns the run log file path.
func (r *RunFile) Path() string {
	return r.path
}

// Write implements io.Writer.
func (r *RunFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return len(p), nil
	}

	return r.f.Write(p)
}

// WriteSummary appends the structured summary footer for the run.
func (r *RunFile) WriteSummary(summary *models.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}

	_, err = fmt.Fprintf(r.f, "\nRUN_SUMMARY_JSON: %s\n", data)

	return err
}

// Close writes the stop banner with elapsed time and closes the file.
// It is safe to call more than once.
func (r *RunFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}

	end := time.Now()
	footer := fmt.Sprintf("\n===== ZK SYNC RUN STOP: %s (elapsed %.2fs) =====\n\n",
		end.Format("2006-01-02 15:04:05"), end.Sub(r.start).Seconds())
	_, _ = r.f.WriteString(footer)

	err := r.f.Close()
	r.f = nil

	return err
}
