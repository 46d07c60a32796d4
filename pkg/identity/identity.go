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

// Package identity resolves device-local user ids to canonical badges.
package identity

import (
	"context"
	"errors"

	"github.com/clockhouse/attendsync/pkg/db"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

// Store is the identity persistence surface the resolver needs.
type Store interface {
	GetBadgeByNumber(ctx context.Context, number string) (*models.Badge, error)
	GetDeviceUserRef(ctx context.Context, deviceUserID, serial string) (*models.DeviceUserRef, error)
	GetDeviceUserRefAnySerial(ctx context.Context, deviceUserID string) (*models.DeviceUserRef, error)
	UpsertDeviceUserRef(ctx context.Context, ref *models.DeviceUserRef) error
	EnsureUser(ctx context.Context, branchID int64, fullName, employeeCode string) (*models.User, error)
	EnsureBadge(ctx context.Context, userID int64, badgeNumber string) (*models.Badge, error)
	EnsureUserDeviceMap(ctx context.Context, userID, deviceID int64) error
}

// Resolver maps (device_userid, device_serial) pairs onto badges.
type Resolver struct {
	store  Store
	logger logger.Logger
}

// NewResolver creates a Resolver over the identity store.
func NewResolver(store Store, log logger.Logger) *Resolver {
	return &Resolver{store: store, logger: log}
}

// BadgeFor resolves a badge for a device-local user id, or nil when no
// mapping exists. Resolution order: the roster entry for this serial,
// a roster entry on any serial, then a badge whose number equals the
// device user id directly.
func (r *Resolver) BadgeFor(ctx context.Context, deviceUserID, serial string) (*models.Badge, error) {
	ref, err := r.store.GetDeviceUserRef(ctx, deviceUserID, serial)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	if ref != nil {
		if badge, err := r.badgeByNumber(ctx, ref.BadgeNumber); badge != nil || err != nil {
			return badge, err
		}
	}

	ref, err = r.store.GetDeviceUserRefAnySerial(ctx, deviceUserID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	if ref != nil {
		if badge, err := r.badgeByNumber(ctx, ref.BadgeNumber); badge != nil || err != nil {
			return badge, err
		}
	}

	return r.badgeByNumber(ctx, deviceUserID)
}

func (r *Resolver) badgeByNumber(ctx context.Context, number string) (*models.Badge, error) {
	badge, err := r.store.GetBadgeByNumber(ctx, number)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return badge, nil
}

// EnsureUserAndBadge creates a minimal user (employee_code = badgeNumber)
// and a badge if absent, linking the user to deviceID when given. It
// returns nil without error when branchID is unknown: auto-creation needs
// a branch to hang the user on.
func (r *Resolver) EnsureUserAndBadge(ctx context.Context, badgeNumber string, branchID int64, deviceID *int64, defaultName string) (*models.Badge, error) {
	if branchID == 0 || badgeNumber == "" {
		return nil, nil
	}

	user, err := r.store.EnsureUser(ctx, branchID, defaultName, badgeNumber)
	if err != nil {
		return nil, err
	}

	badge, err := r.store.EnsureBadge(ctx, user.ID, badgeNumber)
	if err != nil {
		return nil, err
	}

	if deviceID != nil {
		if err := r.store.EnsureUserDeviceMap(ctx, user.ID, *deviceID); err != nil {
			return nil, err
		}
	}

	if r.logger != nil {
		r.logger.Info().
			Str("badge_number", badgeNumber).
			Int64("user_id", user.ID).
			Msg("auto-created user and badge")
	}

	return badge, nil
}

// UpsertRef records or refreshes the roster binding for a device user.
func (r *Resolver) UpsertRef(ctx context.Context, deviceUserID, badgeNumber, name, serial, source string) error {
	return r.store.UpsertDeviceUserRef(ctx, &models.DeviceUserRef{
		DeviceUserID: deviceUserID,
		BadgeNumber:  badgeNumber,
		Name:         name,
		DeviceSerial: serial,
		Source:       source,
	})
}
