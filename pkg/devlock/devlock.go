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

// Package devlock provides an advisory cross-process mutex per device
// serial, backed by atomic directory creation. Multiple attendsync
// processes (or anything else honoring the convention) can share it.
package devlock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clockhouse/attendsync/pkg/logger"
)

// ErrTimeout indicates the lock was not acquired within the wait budget.
var ErrTimeout = errors.New("device lock acquisition timed out")

const (
	lockDirPrefix = "access_lock_"
	lockInfoFile  = "lockinfo.txt"
	retryInterval = 200 * time.Millisecond
)

// Registry hands out per-serial locks rooted at a common directory.
type Registry struct {
	dir    string
	logger logger.Logger
}

// NewRegistry creates a Registry rooted at dir, creating it if missing.
func NewRegistry(dir string, log logger.Logger) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir: %w", err)
	}

	return &Registry{dir: dir, logger: log}, nil
}

// Handle is a held lock. Release it exactly once per acquisition;
// releasing again is a no-op.
type Handle struct {
	path     string
	released bool
}

func (r *Registry) lockPath(serial string) string {
	return filepath.Join(r.dir, lockDirPrefix+serial)
}

// Acquire takes the lock for serial, waiting up to timeout. A lock whose
// metadata is older than staleAfter is forcibly reclaimed: its holder is
// assumed dead.
func (r *Registry) Acquire(ctx context.Context, serial string, staleAfter, timeout time.Duration) (*Handle, error) {
	path := r.lockPath(serial)
	deadline := time.Now().Add(timeout)

	for {
		err := os.Mkdir(path, 0o755)
		if err == nil {
			if werr := r.writeLockInfo(path); werr != nil {
				_ = os.RemoveAll(path)
				return nil, werr
			}

			return &Handle{path: path}, nil
		}

		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}

		if r.reclaimIfStale(path, serial, staleAfter) {
			continue
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, serial)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

func (r *Registry) writeLockInfo(path string) error {
	info := fmt.Sprintf("pid=%d\nhost=%s\nacquired=%s\n",
		os.Getpid(), hostname(), time.Now().UTC().Format(time.RFC3339))

	if err := os.WriteFile(filepath.Join(path, lockInfoFile), []byte(info), 0o644); err != nil {
		return fmt.Errorf("write lock info: %w", err)
	}

	return nil
}

// reclaimIfStale removes a lock whose info file (or, if absent, the
// directory itself) has not been touched within staleAfter. Returns true
// when a reclaim happened and acquisition should be retried immediately.
func (r *Registry) reclaimIfStale(path, serial string, staleAfter time.Duration) bool {
	if staleAfter <= 0 {
		return false
	}

	st, err := os.Stat(filepath.Join(path, lockInfoFile))
	if err != nil {
		st, err = os.Stat(path)
		if err != nil {
			// Lock vanished between Mkdir and Stat; retry.
			return true
		}
	}

	if time.Since(st.ModTime()) < staleAfter {
		return false
	}

	if r.logger != nil {
		r.logger.Warn().
			Str("serial", serial).
			Time("lock_mtime", st.ModTime()).
			Msg("reclaiming stale device lock")
	}

	return os.RemoveAll(path) == nil
}

// Release frees the lock. Safe to call more than once.
func (h *Handle) Release() error {
	if h == nil || h.released {
		return nil
	}

	h.released = true

	if err := os.RemoveAll(h.path); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}

	return h
}
