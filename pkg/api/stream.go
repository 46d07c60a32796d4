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

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clockhouse/attendsync/pkg/models"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsReadWait     = 60 * time.Second
)

// handleEventStream upgrades the request to a websocket and bridges the
// live event broker onto it until the client disconnects.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkStreamOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("remote_addr", r.RemoteAddr).
			Str("origin", r.Header.Get("Origin")).
			Msg("websocket upgrade failed")

		return
	}

	s.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("event stream client connected")

	defer func() {
		s.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("closing event stream connection")
		_ = conn.Close()
	}()

	events, unsubscribe := s.broker.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader pump: the client sends nothing meaningful, but reading is
	// how gorilla surfaces close frames and dead connections.
	go s.readClientMessages(ctx, conn, cancel)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				// Broker shut down; tell the client we are done.
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down"))

				return
			}

			if err := s.writeStreamEvent(conn, event); err != nil {
				s.logger.Debug().
					Err(err).
					Str("remote_addr", r.RemoteAddr).
					Msg("event stream write failed, dropping client")

				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStreamEvent(conn *websocket.Conn, event models.StreamEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	return conn.WriteJSON(event)
}

// readClientMessages drains incoming frames so disconnects are noticed
// promptly. Any read error cancels the stream.
func (s *Server) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(wsReadWait)); err != nil {
			return
		}

		messageType, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn().Err(err).Msg("unexpected event stream close")
			}

			return
		}

		if messageType == websocket.CloseMessage {
			return
		}
	}
}

// checkStreamOrigin applies the CORS origin list to websocket upgrades.
// No Origin header means a non-browser client; those are allowed.
func (s *Server) checkStreamOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.corsOrigins) == 0 {
		return true
	}

	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	s.logger.Warn().Str("origin", origin).Msg("event stream origin rejected")

	return false
}
