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

// Package bus carries the live operator event stream: an in-process
// broker fans events out to websocket clients, with an optional NATS
// JetStream mirror for external consumers.
package bus

import (
	"sync"
	"time"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

const defaultSubscriberBuffer = 256

// Publisher accepts stream events.
type Publisher interface {
	Publish(event models.StreamEvent)
}

// Broker is an in-process fan-out hub. Publish never blocks: a
// subscriber that cannot keep up has events dropped, not queued
// unboundedly.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan models.StreamEvent
	nextID int
	closed bool
	logger logger.Logger

	mirror Publisher
}

// NewBroker creates a Broker.
func NewBroker(log logger.Logger) *Broker {
	return &Broker{
		subs:   make(map[int]chan models.StreamEvent),
		logger: log,
	}
}

// SetMirror attaches a secondary publisher (the NATS mirror) that
// receives every published event.
func (b *Broker) SetMirror(m Publisher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = m
}

// Subscribe registers a new subscriber and returns its channel plus a
// cancel function. The channel is closed on cancel or broker shutdown.
func (b *Broker) Subscribe() (<-chan models.StreamEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan models.StreamEvent)
		close(ch)

		return ch, func() {}
	}

	id := b.nextID
	b.nextID++

	ch := make(chan models.StreamEvent, defaultSubscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish fans an event out to all subscribers, stamping the timestamp
// if the caller left it zero.
func (b *Broker) Publish(event models.StreamEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than stall the pipeline.
		}
	}

	if b.mirror != nil {
		b.mirror.Publish(event)
	}
}

// Log publishes a log-type event at the given level.
func (b *Broker) Log(level, message string) {
	b.Publish(models.StreamEvent{
		Type:    models.StreamLog,
		Level:   level,
		Message: message,
	})
}

// DeviceStatus publishes a device_status event for one device.
func (b *Broker) DeviceStatus(deviceID int64, deviceName, level, message string) {
	b.Publish(models.StreamEvent{
		Type:       models.StreamDeviceStatus,
		DeviceID:   &deviceID,
		DeviceName: deviceName,
		Level:      level,
		Message:    message,
	})
}

// Close shuts the broker down and closes every subscriber channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
