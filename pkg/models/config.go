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

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	errInvalidDuration     = errors.New("invalid duration")
	errDatabaseRequired    = errors.New("database configuration is required")
	errListenAddrRequired  = errors.New("listen address is required")
	errPollIntervalInvalid = errors.New("poll_interval must be positive")
	errWorkersInvalid      = errors.New("max_poll_workers must be positive")
)

// Duration is a time.Duration that unmarshals from either a JSON number
// (nanoseconds) or a Go duration string ("15s", "1h").
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %w", errInvalidDuration, err)
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Database holds source-database connection settings.
type Database struct {
	Host            string            `json:"host"`
	Port            int               `json:"port"`
	Database        string            `json:"database"`
	Username        string            `json:"username"`
	Password        string            `json:"password"`
	SSLMode         string            `json:"ssl_mode,omitempty"`
	ApplicationName string            `json:"application_name,omitempty"`
	MaxConnections  int32             `json:"max_connections,omitempty"`
	MinConnections  int32             `json:"min_connections,omitempty"`
	RuntimeParams   map[string]string `json:"runtime_params,omitempty"`
}

// Config is the full attendsync service configuration.
type Config struct {
	ListenAddr  string   `json:"listen_addr"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
	LogLevel    string   `json:"log_level,omitempty"`

	Database *Database `json:"database"`
	NATSURL  string    `json:"nats_url,omitempty"`

	PollInterval    Duration `json:"poll_interval"`
	MaxPollWorkers  int      `json:"max_poll_workers"`
	SchedulerLogDir string   `json:"scheduler_log_dir"`
	ConnectTimeout  Duration `json:"connect_timeout"`

	AccessLockDir     string   `json:"access_lock_dir"`
	AccessLockTimeout Duration `json:"access_lock_timeout"`
	AccessLockStale   Duration `json:"access_lock_stale_seconds"`

	EndDBURI           string   `json:"end_db_uri"`
	EndTargetTable     string   `json:"end_target_table"`
	ExportBatchSize    int      `json:"export_batch_size"`
	ExportLookbackDays int      `json:"export_lookback_days"`
	ExportAfterPoll    bool     `json:"export_after_poll"`
	ExportTimeOffset   Duration `json:"export_time_offset"`

	AutoCreateUserInfo        bool   `json:"auto_create_userinfo"`
	AutoCreateUserInfoName    string `json:"auto_create_userinfo_name"`
	AllowInsertRawBadge       bool   `json:"allow_insert_raw_badge"`
	AutoCreateUsersFromBadges bool   `json:"auto_create_users_from_badges"`
	AutoCreateUsersName       string `json:"auto_create_users_name"`
	PruneMissingDeviceUsers   bool   `json:"prune_missing_device_users"`

	JobTTL           Duration `json:"job_ttl_seconds"`
	JobPruneInterval Duration `json:"job_prune_interval"`
}

// DefaultConfig returns a Config pre-populated with the documented
// defaults. Loaders unmarshal on top of it, so absent keys keep their
// default and present keys (including explicit false) win.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:             ":8090",
		LogLevel:               "info",
		PollInterval:           Duration(time.Hour),
		MaxPollWorkers:         10,
		SchedulerLogDir:        "logs",
		ConnectTimeout:         Duration(5 * time.Second),
		AccessLockDir:          "locks",
		AccessLockTimeout:      Duration(15 * time.Second),
		AccessLockStale:        Duration(60 * time.Second),
		EndTargetTable:         "att_raw_data_old",
		ExportBatchSize:        1500,
		ExportLookbackDays:     10,
		ExportAfterPoll:        true,
		AutoCreateUserInfoName: "ZK-IMPORT",
		AllowInsertRawBadge:    true,
		AutoCreateUsersName:    "IMPORTED",
		JobTTL:                 Duration(time.Hour),
		JobPruneInterval:       Duration(10 * time.Minute),
	}
}

// Validate implements config.Validator.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errListenAddrRequired
	}

	if c.Database == nil {
		return errDatabaseRequired
	}

	if c.PollInterval <= 0 {
		return errPollIntervalInvalid
	}

	if c.MaxPollWorkers <= 0 {
		return errWorkersInvalid
	}

	return nil
}
