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

package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/db"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

// fakeStore is an in-memory identity store for resolver tests.
type fakeStore struct {
	badges    map[string]*models.Badge         // badge_number -> badge
	refs      map[string]*models.DeviceUserRef // device_userid|serial -> ref
	users     map[string]*models.User          // employee_code -> user
	links     map[int64][]int64                // user_id -> device_ids
	nextUser  int64
	nextBadge int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		badges: make(map[string]*models.Badge),
		refs:   make(map[string]*models.DeviceUserRef),
		users:  make(map[string]*models.User),
		links:  make(map[int64][]int64),
	}
}

func refKey(deviceUserID, serial string) string { return deviceUserID + "|" + serial }

func (f *fakeStore) GetBadgeByNumber(_ context.Context, number string) (*models.Badge, error) {
	if b, ok := f.badges[number]; ok {
		return b, nil
	}

	return nil, db.ErrNotFound
}

func (f *fakeStore) GetDeviceUserRef(_ context.Context, deviceUserID, serial string) (*models.DeviceUserRef, error) {
	if r, ok := f.refs[refKey(deviceUserID, serial)]; ok {
		return r, nil
	}

	return nil, db.ErrNotFound
}

func (f *fakeStore) GetDeviceUserRefAnySerial(_ context.Context, deviceUserID string) (*models.DeviceUserRef, error) {
	for _, r := range f.refs {
		if r.DeviceUserID == deviceUserID {
			return r, nil
		}
	}

	return nil, db.ErrNotFound
}

func (f *fakeStore) UpsertDeviceUserRef(_ context.Context, ref *models.DeviceUserRef) error {
	f.refs[refKey(ref.DeviceUserID, ref.DeviceSerial)] = ref
	return nil
}

func (f *fakeStore) EnsureUser(_ context.Context, branchID int64, fullName, employeeCode string) (*models.User, error) {
	if u, ok := f.users[employeeCode]; ok {
		return u, nil
	}

	f.nextUser++
	u := &models.User{ID: f.nextUser, BranchID: branchID, FullName: fullName, EmployeeCode: employeeCode}
	f.users[employeeCode] = u

	return u, nil
}

func (f *fakeStore) EnsureBadge(_ context.Context, userID int64, badgeNumber string) (*models.Badge, error) {
	if b, ok := f.badges[badgeNumber]; ok {
		return b, nil
	}

	f.nextBadge++
	b := &models.Badge{ID: f.nextBadge, UserID: userID, BadgeNumber: badgeNumber, Status: "active"}
	f.badges[badgeNumber] = b

	return b, nil
}

func (f *fakeStore) EnsureUserDeviceMap(_ context.Context, userID, deviceID int64) error {
	f.links[userID] = append(f.links[userID], deviceID)
	return nil
}

func TestBadgeForViaSerialRef(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.badges["B1"] = &models.Badge{ID: 1, BadgeNumber: "B1"}
	store.refs[refKey("100", "SN1")] = &models.DeviceUserRef{DeviceUserID: "100", BadgeNumber: "B1", DeviceSerial: "SN1"}

	r := NewResolver(store, logger.NewTestLogger())

	badge, err := r.BadgeFor(context.Background(), "100", "SN1")
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, "B1", badge.BadgeNumber)
}

func TestBadgeForViaAnySerialRef(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.badges["B2"] = &models.Badge{ID: 2, BadgeNumber: "B2"}
	// Ref exists for a different serial only.
	store.refs[refKey("200", "OTHER")] = &models.DeviceUserRef{DeviceUserID: "200", BadgeNumber: "B2", DeviceSerial: "OTHER"}

	r := NewResolver(store, logger.NewTestLogger())

	badge, err := r.BadgeFor(context.Background(), "200", "SN1")
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, "B2", badge.BadgeNumber)
}

func TestBadgeForDirectNumber(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.badges["300"] = &models.Badge{ID: 3, BadgeNumber: "300"}

	r := NewResolver(store, logger.NewTestLogger())

	badge, err := r.BadgeFor(context.Background(), "300", "SN1")
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, int64(3), badge.ID)
}

func TestBadgeForUnresolvedReturnsNil(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	// A ref whose badge number has no badge row must not resolve.
	store.refs[refKey("400", "SN1")] = &models.DeviceUserRef{DeviceUserID: "400", BadgeNumber: "GONE", DeviceSerial: "SN1"}

	r := NewResolver(store, logger.NewTestLogger())

	badge, err := r.BadgeFor(context.Background(), "400", "SN1")
	require.NoError(t, err)
	assert.Nil(t, badge)
}

func TestEnsureUserAndBadge(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	r := NewResolver(store, logger.NewTestLogger())

	deviceID := int64(9)
	badge, err := r.EnsureUserAndBadge(context.Background(), "501", 2, &deviceID, "IMPORTED")
	require.NoError(t, err)
	require.NotNil(t, badge)
	assert.Equal(t, "501", badge.BadgeNumber)

	user := store.users["501"]
	require.NotNil(t, user)
	assert.Equal(t, int64(2), user.BranchID)
	assert.Equal(t, []int64{9}, store.links[user.ID])

	// Idempotent: same badge back, no duplicate user.
	again, err := r.EnsureUserAndBadge(context.Background(), "501", 2, nil, "IMPORTED")
	require.NoError(t, err)
	assert.Equal(t, badge.ID, again.ID)
	assert.Len(t, store.users, 1)
}

func TestEnsureUserAndBadgeRequiresBranch(t *testing.T) {
	t.Parallel()

	r := NewResolver(newFakeStore(), logger.NewTestLogger())

	badge, err := r.EnsureUserAndBadge(context.Background(), "601", 0, nil, "IMPORTED")
	require.NoError(t, err)
	assert.Nil(t, badge)
}
