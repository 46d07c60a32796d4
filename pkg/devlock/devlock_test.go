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

package devlock

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/logger"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()

	r, err := NewRegistry(t.TempDir(), logger.NewTestLogger())
	require.NoError(t, err)

	return r
}

func TestAcquireRelease(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	h, err := r.Acquire(ctx, "SN100", time.Minute, time.Second)
	require.NoError(t, err)

	lockDir := filepath.Join(r.dir, "access_lock_SN100")
	_, err = os.Stat(filepath.Join(lockDir, "lockinfo.txt"))
	assert.NoError(t, err)

	require.NoError(t, h.Release())

	_, err = os.Stat(lockDir)
	assert.True(t, os.IsNotExist(err))

	// Idempotent release.
	assert.NoError(t, h.Release())
}

func TestAcquireTimesOutWhenHeld(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	h, err := r.Acquire(ctx, "SN200", time.Minute, time.Second)
	require.NoError(t, err)

	defer func() { _ = h.Release() }()

	_, err = r.Acquire(ctx, "SN200", time.Minute, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestAcquireDifferentSerialsIndependent(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	h1, err := r.Acquire(ctx, "SN300", time.Minute, time.Second)
	require.NoError(t, err)

	defer func() { _ = h1.Release() }()

	h2, err := r.Acquire(ctx, "SN301", time.Minute, time.Second)
	require.NoError(t, err)
	assert.NoError(t, h2.Release())
}

func TestAcquireReclaimsStaleLock(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	ctx := context.Background()

	// Simulate an abandoned lock from a dead process.
	stale := filepath.Join(r.dir, "access_lock_SN400")
	require.NoError(t, os.Mkdir(stale, 0o755))
	info := filepath.Join(stale, "lockinfo.txt")
	require.NoError(t, os.WriteFile(info, []byte("pid=1\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(info, old, old))

	h, err := r.Acquire(ctx, "SN400", time.Minute, time.Second)
	require.NoError(t, err)
	assert.NoError(t, h.Release())
}

func TestAcquireHonorsContextCancel(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)

	h, err := r.Acquire(context.Background(), "SN500", time.Minute, time.Second)
	require.NoError(t, err)

	defer func() { _ = h.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Acquire(ctx, "SN500", time.Minute, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
