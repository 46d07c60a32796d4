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

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clockhouse/attendsync/pkg/models"
)

func TestChecksumZeroPayload(t *testing.T) {
	t.Parallel()

	payload := make([]byte, 8)
	sum := checksum(payload)
	assert.Equal(t, uint16(0xffff), sum)
}

func TestChecksumOddLength(t *testing.T) {
	t.Parallel()

	payload := []byte{0x01, 0x02, 0x03}
	// Sum = 0x0201 + 0x03 = 0x0204; ones' complement = 0xfdfb.
	assert.Equal(t, uint16(0xfdfb), checksum(payload))
}

func makeUserRecord(uid uint16, name, userID string, card uint32) []byte {
	rec := make([]byte, userRecordSize)
	binary.LittleEndian.PutUint16(rec[0:2], uid)
	copy(rec[11:35], name)
	binary.LittleEndian.PutUint32(rec[35:39], card)
	copy(rec[48:72], userID)

	return rec
}

func TestParseUserRecords(t *testing.T) {
	t.Parallel()

	data := append(makeUserRecord(1, "Alice", "1001", 555),
		makeUserRecord(2, "", "", 0)...)

	users := parseUserRecords(data)
	require.Len(t, users, 2)

	assert.Equal(t, "1001", users[0].DeviceUserID)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, "555", users[0].Card)

	// Missing user_id falls back to the numeric uid.
	assert.Equal(t, "2", users[1].DeviceUserID)
	assert.Empty(t, users[1].Card)
}

func TestParseUserRecordsSkipsEmptyIdentifiers(t *testing.T) {
	t.Parallel()

	users := parseUserRecords(makeUserRecord(0, "ghost", "", 0))
	assert.Empty(t, users)
}

func encodeTimestamp(ts time.Time) uint32 {
	v := uint32(ts.Year()-2000)*12 + uint32(ts.Month()-1)
	v = v*31 + uint32(ts.Day()-1)
	v = v*24 + uint32(ts.Hour())
	v = v*60 + uint32(ts.Minute())
	v = v*60 + uint32(ts.Second())

	return v
}

func makeEventRecord(uid uint16, userID string, status byte, ts time.Time) []byte {
	rec := make([]byte, attRecordSize)
	binary.LittleEndian.PutUint16(rec[0:2], uid)
	copy(rec[2:26], userID)
	rec[26] = status
	binary.LittleEndian.PutUint32(rec[27:31], encodeTimestamp(ts))

	return rec
}

func TestParseEventRecords(t *testing.T) {
	t.Parallel()

	when := time.Date(2025, 3, 14, 8, 45, 30, 0, time.Local)
	data := append(makeEventRecord(42, "1001", 0, when),
		makeEventRecord(43, "1002", 1, when.Add(time.Minute))...)

	events := parseEventRecords(data)
	require.Len(t, events, 2)

	assert.Equal(t, int64(42), events[0].RecordID)
	assert.Equal(t, "1001", events[0].DeviceUserID)
	assert.Equal(t, "check-in", events[0].Status)
	assert.True(t, when.Equal(events[0].Timestamp))

	assert.Equal(t, "check-out", events[1].Status)
}

func TestParseEventRecordsDropsUndecodable(t *testing.T) {
	t.Parallel()

	// Zero timestamp and empty user id are both dropped.
	bad := make([]byte, attRecordSize)
	binary.LittleEndian.PutUint16(bad[0:2], 9)
	copy(bad[2:26], "1001")

	assert.Empty(t, parseEventRecords(bad))
}

func TestDecodeTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 12, 31, 23, 59, 59, 0, time.Local)
	got, ok := decodeTimestamp(encodeTimestamp(when))
	require.True(t, ok)
	assert.True(t, when.Equal(got))
}

func TestResolveSerial(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	tests := []struct {
		name   string
		device models.Device
		want   string
	}{
		{
			name:   "inventory serial wins without session",
			device: models.Device{Serial: "SN1", Name: "lobby", IP: "10.0.0.5"},
			want:   "SN1",
		},
		{
			name:   "device name when not an ip literal",
			device: models.Device{Name: "lobby-door", IP: "10.0.0.5"},
			want:   "lobby-door",
		},
		{
			name:   "ip-literal name falls through to sentinel",
			device: models.Device{Name: "10.0.0.5", IP: "10.0.0.5"},
			want:   UnknownSerial,
		},
		{
			name:   "empty everything",
			device: models.Device{},
			want:   UnknownSerial,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, ResolveSerial(ctx, nil, &tt.device))
		})
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "check-in", StatusString(0))
	assert.Equal(t, "overtime-out", StatusString(5))
	assert.Equal(t, "7", StatusString(7))
}
