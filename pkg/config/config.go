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

// Package config loads service configuration from a JSON file with
// optional environment-variable overrides.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/clockhouse/attendsync/pkg/logger"
)

const envPrefix = "ATTENDSYNC_"

// ConfigLoader loads configuration into dst from some source.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// Validator is implemented by config types that can validate themselves.
type Validator interface {
	Validate() error
}

// Config holds the configuration loading dependencies.
type Config struct {
	fileLoader ConfigLoader
	envLoader  ConfigLoader
	logger     logger.Logger
}

// NewConfig initializes a Config with the file and env loaders.
func NewConfig(log logger.Logger) *Config {
	if log == nil {
		log = logger.NewTestLogger()
	}

	return &Config{
		fileLoader: &fileSource{},
		envLoader:  NewEnvConfigLoader(log, envPrefix),
		logger:     log,
	}
}

// ValidateConfig validates a configuration if it implements Validator.
func ValidateConfig(cfg interface{}) error {
	v, ok := cfg.(Validator)
	if !ok {
		return nil
	}

	return v.Validate()
}

// LoadAndValidate loads configuration from the file at path (when it
// exists), applies environment overrides on top, and validates the
// result. dst should be pre-populated with defaults; loaders only
// overwrite keys they find.
func (c *Config) LoadAndValidate(ctx context.Context, path string, dst interface{}) error {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := c.fileLoader.Load(ctx, path, dst); err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
		} else if !strings.HasSuffix(path, defaultConfigSuffix) {
			// An explicitly named config file must exist.
			return fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	if err := c.envLoader.Load(ctx, path, dst); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return ValidateConfig(dst)
}

// defaultConfigSuffix marks the compiled-in default path, which may be
// absent on dev machines where env vars carry the whole config.
const defaultConfigSuffix = "attendsync.json"
