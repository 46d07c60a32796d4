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

package terminal

//go:generate mockgen -destination=mock_terminal.go -package=terminal github.com/clockhouse/attendsync/pkg/terminal Client,Session

import (
	"context"
	"time"

	"github.com/clockhouse/attendsync/pkg/models"
)

// UserRecord is one enrollment entry from a device roster.
type UserRecord struct {
	DeviceUserID string
	Name         string
	Card         string
	UID          int
}

// EventRecord is one attendance punch read from a device. RecordID is the
// device-assigned identifier, stable across sessions.
type EventRecord struct {
	RecordID     int64
	DeviceUserID string
	Timestamp    time.Time
	Status       string
}

// Client dials an attendance terminal.
type Client interface {
	Connect(ctx context.Context) (Session, error)
}

// Session is an open conversation with a terminal. Disable/Enable bracket
// bulk reads; both are best-effort on cleanup paths. Disconnect must be
// called when done.
type Session interface {
	Disable(ctx context.Context) error
	Enable(ctx context.Context) error
	Serial(ctx context.Context) (string, error)
	ListUsers(ctx context.Context) ([]UserRecord, error)
	ListEvents(ctx context.Context) ([]EventRecord, error)
	Disconnect(ctx context.Context) error
}

// Dialer builds a Client for a device. The fetcher takes one so tests can
// substitute a fake terminal.
type Dialer func(device *models.Device, connectTimeout time.Duration) Client
