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

// Package models contains the shared data types for attendsync.
package models

import "time"

// Branch is an office location owning a set of devices and users.
type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IPRange   string    `json:"ip_range"`
	CreatedAt time.Time `json:"created_at"`
}

// Device is a networked attendance terminal. Serial is the permanent
// identifier once known; an empty string means it has not been resolved yet.
type Device struct {
	ID        int64      `json:"id"`
	BranchID  int64      `json:"branch_id"`
	Name      string     `json:"name"`
	IP        string     `json:"ip"`
	Port      int        `json:"port"`
	Serial    string     `json:"serial,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// User is a centrally managed person record.
type User struct {
	ID           int64     `json:"id"`
	BranchID     int64     `json:"branch_id"`
	FullName     string    `json:"full_name"`
	EmployeeCode string    `json:"employee_code"`
	CreatedAt    time.Time `json:"created_at"`
}

// Badge is the globally unique person identifier. A badge number, once
// issued, is never reassigned to a different user.
type Badge struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	BadgeNumber string    `json:"badge_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserDeviceMap links a user to a device they are enrolled on.
type UserDeviceMap struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"user_id"`
	DeviceID int64 `json:"device_id"`
}

// DeviceUserRef is the replicated roster entry binding a device-local user
// id on a specific device serial to a badge number. The badge binding is
// valid on that device only.
type DeviceUserRef struct {
	ID           int64     `json:"id"`
	DeviceUserID string    `json:"device_userid"`
	BadgeNumber  string    `json:"badge_number"`
	Name         string    `json:"name,omitempty"`
	DeviceSerial string    `json:"device_serial"`
	Source       string    `json:"source"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AttendanceEvent is a canonical attendance record. (DeviceID, RecordID)
// is unique: the device-assigned record id is never ingested twice.
type AttendanceEvent struct {
	ID           int64      `json:"id"`
	DeviceID     int64      `json:"device_id"`
	RecordID     int64      `json:"record_id"`
	UserID       string     `json:"user_id,omitempty"` // legacy alias of DeviceUserID
	DeviceUserID string     `json:"device_userid"`
	BadgeID      *int64     `json:"badge_id,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
	Status       string     `json:"status"`
	Exported     bool       `json:"exported"`
	ExportedAt   *time.Time `json:"exported_at,omitempty"`
}

// RawEvent is the legacy-compatible replica row written alongside every
// AttendanceEvent in the same transaction (except in degraded mode).
type RawEvent struct {
	ID           int64     `json:"id"`
	DeviceUserID string    `json:"device_userid"`
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	VerifyCode   string    `json:"verify_code"`
	SensorID     string    `json:"sensor_id"`
	Memo         string    `json:"memo"`
	WorkCode     string    `json:"workcode"`
	DeviceSerial string    `json:"device_serial"`
}
