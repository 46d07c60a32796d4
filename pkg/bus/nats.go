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

package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

const (
	natsStreamName    = "ATTENDSYNC_EVENTS"
	natsSubjectPrefix = "attendsync.events."
)

// NATSMirror republishes stream events to a NATS JetStream stream so
// external consumers can tail the sync pipeline.
type NATSMirror struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.Logger
}

// ConnectNATSMirror dials NATS and ensures the events stream exists.
func ConnectNATSMirror(ctx context.Context, natsURL string, log logger.Logger) (*NATSMirror, error) {
	nc, err := nats.Connect(natsURL,
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if _, err := js.Stream(ctx, natsStreamName); err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     natsStreamName,
			Subjects: []string{natsSubjectPrefix + ">"},
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create or get stream %s: %w", natsStreamName, err)
		}
	}

	log.Info().Str("url", natsURL).Str("stream", natsStreamName).Msg("NATS event mirror connected")

	return &NATSMirror{nc: nc, js: js, logger: log}, nil
}

// Publish implements Publisher. Failures are logged, never surfaced: the
// mirror is best-effort by contract.
func (m *NATSMirror) Publish(event models.StreamEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		m.logger.Error().Err(err).Msg("marshal stream event for NATS")
		return
	}

	subject := natsSubjectPrefix + string(event.Type)

	if _, err := m.js.PublishAsync(subject, data); err != nil {
		m.logger.Debug().Err(err).Str("subject", subject).Msg("NATS mirror publish failed")
	}
}

// Close drains the connection.
func (m *NATSMirror) Close() {
	if m.nc != nil {
		m.nc.Close()
	}
}
