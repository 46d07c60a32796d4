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

package models

import "time"

// StreamEventType classifies records on the operator event stream.
type StreamEventType string

const (
	StreamLog           StreamEventType = "log"
	StreamConsole       StreamEventType = "console"
	StreamDeviceStatus  StreamEventType = "device_status"
	StreamNewLogsBatch  StreamEventType = "new_logs_batch"
	StreamDBInsertTimes StreamEventType = "db_insert_times"
)

// Stream event levels.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelNew     = "new"
	LevelWarning = "warning"
	LevelError   = "error"
)

// StreamEvent is one structured record on the live event stream.
// Timestamp serializes as ISO-8601 UTC with a trailing Z.
type StreamEvent struct {
	Type       StreamEventType        `json:"type"`
	Timestamp  time.Time              `json:"timestamp"`
	DeviceID   *int64                 `json:"device_id,omitempty"`
	DeviceName string                 `json:"device_name,omitempty"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Extra      map[string]interface{} `json:"extra,omitempty"`
}
