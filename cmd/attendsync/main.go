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

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/clockhouse/attendsync/pkg/config"
	"github.com/clockhouse/attendsync/pkg/core"
	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/attendsync/attendsync.json", "Path to config file")
	flag.Parse()

	ctx := context.Background()

	cfg := models.DefaultConfig()
	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, cfg); err != nil {
		return err
	}

	appLogger, err := logger.New(&logger.Config{Level: cfg.LogLevel})
	if err != nil {
		return err
	}

	server, err := core.NewServer(ctx, cfg, appLogger)
	if err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		appLogger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-server.Errors():
		appLogger.Error().Err(err).Msg("server error")

		_ = server.Stop(ctx)

		return err
	}

	return server.Stop(ctx)
}
