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

// Package fetcher pulls the roster and attendance log from one device and
// lands new events in the stores.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clockhouse/attendsync/pkg/bus"
	"github.com/clockhouse/attendsync/pkg/devlock"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
	"github.com/clockhouse/attendsync/pkg/terminal"
)

// Config carries the fetcher's behavior switches.
type Config struct {
	ConnectTimeout time.Duration
	LockTimeout    time.Duration
	LockStale      time.Duration

	PruneMissingDeviceUsers   bool
	AutoCreateUserInfo        bool
	AutoCreateUserInfoName    string
	AllowInsertRawBadge       bool
	AutoCreateUsersFromBadges bool
	AutoCreateUsersName       string

	// UnmappedDir receives the daily unmapped-badge CSV audit files.
	UnmappedDir string
}

// Fetcher ingests one device at a time. It is safe for concurrent use
// across devices; per-device serialization comes from the Locker.
type Fetcher struct {
	cfg       Config
	dialer    terminal.Dialer
	events    EventStore
	roster    RosterStore
	inventory Inventory
	resolver  Resolver
	locks     Locker
	broker    *bus.Broker
	logger    logger.Logger
}

// New creates a Fetcher.
func New(cfg Config, dialer terminal.Dialer, events EventStore, roster RosterStore,
	inventory Inventory, resolver Resolver, locks Locker, broker *bus.Broker, log logger.Logger) *Fetcher {
	return &Fetcher{
		cfg:       cfg,
		dialer:    dialer,
		events:    events,
		roster:    roster,
		inventory: inventory,
		resolver:  resolver,
		locks:     locks,
		broker:    broker,
		logger:    log.WithComponent("fetcher"),
	}
}

// FetchDevice runs the full pipeline for one device and returns the
// number of newly committed events. Connect and fetch errors come back as
// errors with a zero count; they never poison other devices.
func (f *Fetcher) FetchDevice(ctx context.Context, device *models.Device) (int, error) {
	log := f.logger.WithFields(map[string]interface{}{
		"device_id": device.ID,
		"ip":        device.IP,
	})

	client := f.dialer(device, f.cfg.ConnectTimeout)

	sess, err := client.Connect(ctx)
	if err != nil {
		f.broker.DeviceStatus(device.ID, device.Name, models.LevelError, fmt.Sprintf("connect failed: %v", err))
		return 0, fmt.Errorf("connect %s: %w", device.IP, err)
	}

	defer func() {
		// Best-effort: the device UI must come back even on failure.
		_ = sess.Enable(ctx)
		_ = sess.Disconnect(ctx)
	}()

	if err := sess.Disable(ctx); err != nil {
		log.Warn().Err(err).Msg("disable device failed, reading live")
	}

	serial := terminal.ResolveSerial(ctx, sess, device)
	log = log.WithFields(map[string]interface{}{"serial": serial})

	// Degraded mode: without the lock we skip roster and replica writes
	// but still ingest canonical events. The event store must not be
	// blocked by lock contention.
	degraded := false

	handle, err := f.locks.Acquire(ctx, serial, f.cfg.LockStale, f.cfg.LockTimeout)
	if err != nil {
		if !errors.Is(err, devlock.ErrTimeout) {
			return 0, fmt.Errorf("device lock %s: %w", serial, err)
		}

		degraded = true

		log.Warn().Msg("device lock timeout, continuing without replica writes")
		f.broker.DeviceStatus(device.ID, device.Name, models.LevelWarning,
			"lock timeout: events will be ingested without replica rows")
	} else {
		defer func() { _ = handle.Release() }()
	}

	if !degraded {
		if err := f.reconcileRoster(ctx, sess, serial, log); err != nil {
			return 0, err
		}
	}

	newEvents, unmapped, err := f.ingestEvents(ctx, sess, device, serial, degraded, log)
	if err != nil {
		f.broker.DeviceStatus(device.ID, device.Name, models.LevelError, fmt.Sprintf("ingest failed: %v", err))
		return 0, err
	}

	f.backfillSerial(ctx, device, serial, log)

	if err := f.inventory.TouchDeviceLastSeen(ctx, device.ID, time.Now().UTC()); err != nil {
		log.Warn().Err(err).Msg("touch last_seen failed")
	}

	if len(unmapped) > 0 {
		if err := appendUnmapped(f.cfg.UnmappedDir, serial, time.Now(), unmapped); err != nil {
			log.Warn().Err(err).Msg("write unmapped audit file failed")
		}
	}

	if newEvents > 0 {
		f.broker.Publish(models.StreamEvent{
			Type:       models.StreamNewLogsBatch,
			DeviceID:   &device.ID,
			DeviceName: device.Name,
			Level:      models.LevelNew,
			Message:    fmt.Sprintf("%d new events", newEvents),
			Extra:      map[string]interface{}{"count": newEvents, "serial": serial},
		})
	}

	f.broker.DeviceStatus(device.ID, device.Name, models.LevelInfo,
		fmt.Sprintf("sync complete: %d new events", newEvents))
	log.Info().Int("new_events", newEvents).Int("unmapped", len(unmapped)).Msg("device sync complete")

	return newEvents, nil
}

// reconcileRoster upserts a DeviceUserRef per enrolled user. The device
// exposes no separate badge space, so badge_number = device_userid.
func (f *Fetcher) reconcileRoster(ctx context.Context, sess terminal.Session, serial string, log logger.Logger) error {
	users, err := sess.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	seen := make([]string, 0, len(users))

	for i := range users {
		u := &users[i]
		if u.DeviceUserID == "" {
			continue
		}

		seen = append(seen, u.DeviceUserID)

		ref := &models.DeviceUserRef{
			DeviceUserID: u.DeviceUserID,
			BadgeNumber:  u.DeviceUserID,
			Name:         u.Name,
			DeviceSerial: serial,
			Source:       "device",
		}

		if err := f.roster.UpsertDeviceUserRef(ctx, ref); err != nil {
			return fmt.Errorf("upsert roster entry %s: %w", u.DeviceUserID, err)
		}
	}

	if f.cfg.PruneMissingDeviceUsers {
		pruned, err := f.roster.DeleteDeviceUserRefsNotIn(ctx, serial, seen)
		if err != nil {
			return fmt.Errorf("prune roster: %w", err)
		}

		if pruned > 0 {
			log.Info().Int64("pruned", pruned).Msg("removed roster entries no longer on device")
		}
	}

	log.Debug().Int("users", len(seen)).Msg("roster reconciled")

	return nil
}

// ingestEvents stages new attendance events (plus replica rows unless
// degraded) and commits them in one transaction.
func (f *Fetcher) ingestEvents(ctx context.Context, sess terminal.Session, device *models.Device,
	serial string, degraded bool, log logger.Logger) (int, []string, error) {
	existing, err := f.events.ExistingRecordIDs(ctx, device.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("load existing record ids: %w", err)
	}

	records, err := sess.ListEvents(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("list events: %w", err)
	}

	var badgeRefs map[string]string

	if !degraded {
		badgeRefs, err = f.roster.BadgeToDeviceUserIDMap(ctx, serial)
		if err != nil {
			return 0, nil, fmt.Errorf("load badge ref map: %w", err)
		}
	}

	var (
		events   []*models.AttendanceEvent
		raws     []*models.RawEvent
		unmapped []string
	)

	for i := range records {
		rec := &records[i]
		if _, ok := existing[rec.RecordID]; ok {
			continue
		}

		if rec.DeviceUserID == "" {
			continue
		}

		badge, err := f.resolver.BadgeFor(ctx, rec.DeviceUserID, serial)
		if err != nil {
			return 0, nil, fmt.Errorf("resolve badge for %s: %w", rec.DeviceUserID, err)
		}

		if badge == nil && f.cfg.AutoCreateUsersFromBadges && device.BranchID != 0 {
			created, err := f.resolver.EnsureUserAndBadge(ctx, rec.DeviceUserID, device.BranchID, &device.ID, f.cfg.AutoCreateUsersName)
			if err != nil {
				// Auto-creation is opportunistic; the event still lands.
				log.Warn().Err(err).Str("device_userid", rec.DeviceUserID).Msg("auto-create user failed")
			} else {
				badge = created
			}
		}

		ev := &models.AttendanceEvent{
			DeviceID:     device.ID,
			RecordID:     rec.RecordID,
			UserID:       rec.DeviceUserID,
			DeviceUserID: rec.DeviceUserID,
			Timestamp:    rec.Timestamp,
			Status:       rec.Status,
		}

		if badge != nil {
			id := badge.ID
			ev.BadgeID = &id
		}

		events = append(events, ev)

		if degraded {
			continue
		}

		replicaID, ok := f.replicaUserID(ctx, badge, rec.DeviceUserID, serial, badgeRefs, log)
		if !ok {
			unmapped = append(unmapped, rec.DeviceUserID)
			continue
		}

		raws = append(raws, &models.RawEvent{
			DeviceUserID: replicaID,
			Timestamp:    rec.Timestamp,
			Type:         rec.Status,
			DeviceSerial: serial,
		})
	}

	if len(events) == 0 {
		return 0, unmapped, nil
	}

	if err := f.events.CommitBatch(ctx, events, raws); err != nil {
		return 0, nil, fmt.Errorf("commit events: %w", err)
	}

	return len(events), unmapped, nil
}

// replicaUserID picks the device_userid to stamp on the replica row.
// Returns ok=false when the id cannot be mapped and raw inserts are
// disallowed; the event is then recorded as unmapped.
func (f *Fetcher) replicaUserID(ctx context.Context, badge *models.Badge, deviceUserID, serial string,
	badgeRefs map[string]string, log logger.Logger) (string, bool) {
	if badge != nil {
		if mapped, ok := badgeRefs[badge.BadgeNumber]; ok && mapped != "" {
			return mapped, true
		}

		if f.cfg.AutoCreateUserInfo {
			ref := &models.DeviceUserRef{
				DeviceUserID: badge.BadgeNumber,
				BadgeNumber:  badge.BadgeNumber,
				Name:         f.cfg.AutoCreateUserInfoName,
				DeviceSerial: serial,
				Source:       "auto",
			}

			if err := f.roster.UpsertDeviceUserRef(ctx, ref); err != nil {
				log.Warn().Err(err).Str("badge", badge.BadgeNumber).Msg("auto-create roster entry failed")
			} else {
				badgeRefs[badge.BadgeNumber] = badge.BadgeNumber
				return badge.BadgeNumber, true
			}
		}
	}

	if f.cfg.AllowInsertRawBadge {
		return deviceUserID, true
	}

	return "", false
}

// backfillSerial persists a newly learned serial. IP-literal serials are
// placeholders, never stored.
func (f *Fetcher) backfillSerial(ctx context.Context, device *models.Device, serial string, log logger.Logger) {
	if device.Serial != "" || serial == terminal.UnknownSerial || terminal.IsIPLiteral(serial) {
		return
	}

	updated, err := f.inventory.UpdateDeviceSerial(ctx, device.ID, serial)
	if err != nil {
		log.Warn().Err(err).Msg("serial backfill failed")
		return
	}

	if updated {
		device.Serial = serial
	}
}
