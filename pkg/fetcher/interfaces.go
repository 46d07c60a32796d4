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

package fetcher

//go:generate mockgen -destination=mock_fetcher.go -package=fetcher github.com/clockhouse/attendsync/pkg/fetcher EventStore,RosterStore,Inventory,Resolver,Locker

import (
	"context"
	"time"

	"github.com/clockhouse/attendsync/pkg/models"
)

// EventStore is the event persistence surface the fetcher writes through.
type EventStore interface {
	ExistingRecordIDs(ctx context.Context, deviceID int64) (map[int64]struct{}, error)
	CommitBatch(ctx context.Context, events []*models.AttendanceEvent, raws []*models.RawEvent) error
}

// RosterStore maintains the replicated device roster.
type RosterStore interface {
	UpsertDeviceUserRef(ctx context.Context, ref *models.DeviceUserRef) error
	DeleteDeviceUserRefsNotIn(ctx context.Context, serial string, keep []string) (int64, error)
	BadgeToDeviceUserIDMap(ctx context.Context, serial string) (map[string]string, error)
}

// Inventory is the device-inventory surface the fetcher touches.
type Inventory interface {
	UpdateDeviceSerial(ctx context.Context, deviceID int64, serial string) (bool, error)
	TouchDeviceLastSeen(ctx context.Context, deviceID int64, at time.Time) error
}

// Resolver maps device-local user ids onto canonical badges.
type Resolver interface {
	BadgeFor(ctx context.Context, deviceUserID, serial string) (*models.Badge, error)
	EnsureUserAndBadge(ctx context.Context, badgeNumber string, branchID int64, deviceID *int64, defaultName string) (*models.Badge, error)
}

// LockHandle is a held per-device lock.
type LockHandle interface {
	Release() error
}

// Locker hands out per-device-serial locks.
type Locker interface {
	Acquire(ctx context.Context, serial string, staleAfter, timeout time.Duration) (LockHandle, error)
}
