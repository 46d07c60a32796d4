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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/models"
)

func TestStartRunCreatesTimestampedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2025, 1, 10, 9, 30, 5, 0, time.UTC)

	rf, err := StartRun(dir, now)
	require.NoError(t, err)

	defer func() { _ = rf.Close() }()

	assert.Equal(t, filepath.Join(dir, "zk_sync_20250110_093005.log"), rf.Path())

	data, err := os.ReadFile(rf.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "===== ZK SYNC RUN START: 2025-01-10 09:30:05 =====")
}

func TestRunFileSummaryAndClose(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rf, err := StartRun(dir, time.Now())
	require.NoError(t, err)

	_, err = rf.Write([]byte("worker output\n"))
	require.NoError(t, err)

	summary := &models.RunSummary{
		DevicesPolled:  3,
		NewEvents:      7,
		ElapsedSeconds: 1.25,
		Logfile:        rf.Path(),
	}
	require.NoError(t, rf.WriteSummary(summary))
	require.NoError(t, rf.Close())

	// Idempotent close and write-after-close are no-ops.
	require.NoError(t, rf.Close())
	_, err = rf.Write([]byte("late"))
	require.NoError(t, err)

	data, err := os.ReadFile(rf.Path())
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "worker output")
	assert.Contains(t, content, "RUN_SUMMARY_JSON: ")
	assert.Contains(t, content, `"devices_polled":3`)
	assert.Contains(t, content, "===== ZK SYNC RUN STOP:")
	assert.False(t, strings.Contains(content, "late"))
}

func TestRunFileCreatesMissingDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "logs")
	rf, err := StartRun(dir, time.Now())
	require.NoError(t, err)
	require.NoError(t, rf.Close())

	_, err = os.Stat(rf.Path())
	assert.NoError(t, err)
}
