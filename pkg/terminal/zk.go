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

// Package terminal adapts ZK-family attendance terminals to the fetcher.
// The wire protocol is the binary TCP framing used by that terminal
// family: a fixed magic header, little-endian fields, and a ones'
// complement checksum over the payload.
package terminal

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/clockhouse/attendsync/pkg/logger"
	"github.com/clockhouse/attendsync/pkg/models"
)

const (
	cmdConnect       = 1000
	cmdExit          = 1001
	cmdEnableDevice  = 1002
	cmdDisableDevice = 1003
	cmdAckOK         = 2000
	cmdAckUnauth     = 2005
	cmdPrepareData   = 1500
	cmdData          = 1501
	cmdFreeData      = 1502
	cmdDataWRRQ      = 1503
	cmdReadBuffer    = 1504
	cmdOptionsRRQ    = 11

	fctAttLog = 1
	fctUser   = 5

	userRecordSize = 72
	attRecordSize  = 40

	maxChunkSize = 16 * 1024
)

var tcpMagic = []byte{0x50, 0x50, 0x82, 0x7d}

// ErrUnauthorized indicates the device rejected the connection handshake.
var ErrUnauthorized = errors.New("terminal refused connection")

var errShortReply = errors.New("short reply from terminal")

// ZKClient dials one terminal over TCP.
type ZKClient struct {
	addr           string
	connectTimeout time.Duration
	logger         logger.Logger
}

// NewZKClient creates a client for the device's ip:port.
func NewZKClient(device *models.Device, connectTimeout time.Duration, log logger.Logger) *ZKClient {
	port := device.Port
	if port == 0 {
		port = 4370
	}

	return &ZKClient{
		addr:           net.JoinHostPort(device.IP, strconv.Itoa(port)),
		connectTimeout: connectTimeout,
		logger:         log,
	}
}

// NewDialer returns a Dialer producing ZKClients.
func NewDialer(log logger.Logger) Dialer {
	return func(device *models.Device, connectTimeout time.Duration) Client {
		return NewZKClient(device, connectTimeout, log)
	}
}

// Connect implements Client. It dials the terminal and performs the
// session handshake.
func (c *ZKClient) Connect(ctx context.Context) (Session, error) {
	d := net.Dialer{Timeout: c.connectTimeout}

	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("dial terminal %s: %w", c.addr, err)
	}

	s := &zkSession{conn: conn, addr: c.addr, logger: c.logger}

	reply, err := s.roundTrip(ctx, cmdConnect, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("terminal handshake %s: %w", c.addr, err)
	}

	if reply.command == cmdAckUnauth {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, c.addr)
	}

	if reply.command != cmdAckOK {
		_ = conn.Close()
		return nil, fmt.Errorf("terminal handshake %s: unexpected reply %d", c.addr, reply.command)
	}

	// The connect ack carries the session id used by every later frame.
	s.sessionID = reply.sessionID

	return s, nil
}

type zkSession struct {
	conn      net.Conn
	addr      string
	sessionID uint16
	replyID   uint16
	logger    logger.Logger
}

type zkReply struct {
	command   uint16
	sessionID uint16
	data      []byte
}

// checksum is the 16-bit ones' complement sum the terminal expects, computed
// with the checksum field zeroed.
func checksum(payload []byte) uint16 {
	var sum uint32

	for i := 0; i+1 < len(payload); i += 2 {
		sum += uint32(binary.LittleEndian.Uint16(payload[i : i+2]))
	}

	if len(payload)%2 == 1 {
		sum += uint32(payload[len(payload)-1])
	}

	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}

	return uint16(^sum)
}

func (s *zkSession) send(ctx context.Context, command uint16, data []byte) error {
	s.replyID++

	payload := make([]byte, 8+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], command)
	binary.LittleEndian.PutUint16(payload[4:6], s.sessionID)
	binary.LittleEndian.PutUint16(payload[6:8], s.replyID)
	copy(payload[8:], data)
	binary.LittleEndian.PutUint16(payload[2:4], checksum(payload))

	frame := make([]byte, 8+len(payload))
	copy(frame[0:4], tcpMagic)
	binary.LittleEndian.PutUint32(frame[4:8], uint32(len(payload)))
	copy(frame[8:], payload)

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	}

	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

func (s *zkSession) recv(ctx context.Context) (*zkReply, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	}

	header := make([]byte, 8)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	if !bytes.Equal(header[0:4], tcpMagic) {
		return nil, fmt.Errorf("bad frame magic %x", header[0:4])
	}

	size := binary.LittleEndian.Uint32(header[4:8])
	if size < 8 {
		return nil, errShortReply
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(s.conn, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return &zkReply{
		command:   binary.LittleEndian.Uint16(payload[0:2]),
		sessionID: binary.LittleEndian.Uint16(payload[4:6]),
		data:      payload[8:],
	}, nil
}

func (s *zkSession) roundTrip(ctx context.Context, command uint16, data []byte) (*zkReply, error) {
	if err := s.send(ctx, command, data); err != nil {
		return nil, err
	}

	return s.recv(ctx)
}

func (s *zkSession) ack(ctx context.Context, command uint16, data []byte) error {
	reply, err := s.roundTrip(ctx, command, data)
	if err != nil {
		return err
	}

	if reply.command != cmdAckOK {
		return fmt.Errorf("command %d: unexpected reply %d", command, reply.command)
	}

	return nil
}

// Disable pauses the device UI so bulk reads see a stable snapshot.
func (s *zkSession) Disable(ctx context.Context) error {
	return s.ack(ctx, cmdDisableDevice, nil)
}

// Enable resumes the device UI.
func (s *zkSession) Enable(ctx context.Context) error {
	return s.ack(ctx, cmdEnableDevice, nil)
}

// Serial reads the ~SerialNumber device option.
func (s *zkSession) Serial(ctx context.Context) (string, error) {
	reply, err := s.roundTrip(ctx, cmdOptionsRRQ, []byte("~SerialNumber\x00"))
	if err != nil {
		return "", err
	}

	if reply.command != cmdAckOK {
		return "", fmt.Errorf("read serial: unexpected reply %d", reply.command)
	}

	// Reply shape: "~SerialNumber=XXXX\x00".
	value := string(bytes.TrimRight(reply.data, "\x00"))
	if _, after, found := strings.Cut(value, "="); found {
		return strings.TrimSpace(after), nil
	}

	return "", fmt.Errorf("read serial: malformed option reply %q", value)
}

// ListUsers reads the full enrollment roster.
func (s *zkSession) ListUsers(ctx context.Context) ([]UserRecord, error) {
	data, err := s.readWithBuffer(ctx, fctUser)
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}

	return parseUserRecords(data), nil
}

// ListEvents reads the attendance log.
func (s *zkSession) ListEvents(ctx context.Context) ([]EventRecord, error) {
	data, err := s.readWithBuffer(ctx, fctAttLog)
	if err != nil {
		return nil, fmt.Errorf("read attendance: %w", err)
	}

	return parseEventRecords(data), nil
}

// Disconnect ends the session and closes the connection.
func (s *zkSession) Disconnect(ctx context.Context) error {
	defer func() { _ = s.conn.Close() }()

	if err := s.ack(ctx, cmdExit, nil); err != nil {
		return fmt.Errorf("terminal exit %s: %w", s.addr, err)
	}

	return nil
}

// readWithBuffer runs the buffered bulk-read exchange: small tables come
// back inline in a single data frame; large ones are announced with a
// prepare frame and then pulled in chunks.
func (s *zkSession) readWithBuffer(ctx context.Context, fct byte) ([]byte, error) {
	req := make([]byte, 11)
	req[0] = 0x01
	req[1] = fct
	// Remaining bytes select "everything" (offset 0, no filter).

	reply, err := s.roundTrip(ctx, cmdDataWRRQ, req)
	if err != nil {
		return nil, err
	}

	switch reply.command {
	case cmdData:
		return reply.data, nil

	case cmdPrepareData:
		if len(reply.data) < 4 {
			return nil, errShortReply
		}

		total := binary.LittleEndian.Uint32(reply.data[0:4])

		return s.readChunks(ctx, total)

	case cmdAckOK:
		// Empty table.
		return nil, nil

	default:
		return nil, fmt.Errorf("bulk read: unexpected reply %d", reply.command)
	}
}

func (s *zkSession) readChunks(ctx context.Context, total uint32) ([]byte, error) {
	buf := make([]byte, 0, total)

	for offset := uint32(0); offset < total; {
		want := total - offset
		if want > maxChunkSize {
			want = maxChunkSize
		}

		req := make([]byte, 8)
		binary.LittleEndian.PutUint32(req[0:4], offset)
		binary.LittleEndian.PutUint32(req[4:8], want)

		reply, err := s.roundTrip(ctx, cmdReadBuffer, req)
		if err != nil {
			return nil, err
		}

		if reply.command != cmdData && reply.command != cmdPrepareData {
			return nil, fmt.Errorf("chunk read at %d: unexpected reply %d", offset, reply.command)
		}

		if len(reply.data) == 0 {
			return nil, fmt.Errorf("chunk read at %d: empty data frame", offset)
		}

		buf = append(buf, reply.data...)
		offset += uint32(len(reply.data))
	}

	if err := s.ack(ctx, cmdFreeData, nil); err != nil && s.logger != nil {
		s.logger.Debug().Err(err).Str("addr", s.addr).Msg("free data buffer failed")
	}

	return buf, nil
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return strings.TrimSpace(string(b))
}

// parseUserRecords decodes the 72-byte roster entries:
// uid u16, privilege u8, password [8], name [24], card u32, group u8,
// pad [7], user_id [24].
func parseUserRecords(data []byte) []UserRecord {
	// A 4-byte table size prefix precedes the first record.
	if len(data) >= 4 && len(data)%userRecordSize == 4 {
		data = data[4:]
	}

	users := make([]UserRecord, 0, len(data)/userRecordSize)

	for len(data) >= userRecordSize {
		rec := data[:userRecordSize]
		data = data[userRecordSize:]

		uid := binary.LittleEndian.Uint16(rec[0:2])
		name := cString(rec[11:35])
		card := binary.LittleEndian.Uint32(rec[35:39])
		deviceUserID := cString(rec[48:72])

		if deviceUserID == "" {
			// Some firmwares only populate the numeric uid.
			if uid == 0 {
				continue
			}

			deviceUserID = strconv.Itoa(int(uid))
		}

		u := UserRecord{
			DeviceUserID: deviceUserID,
			Name:         name,
			UID:          int(uid),
		}

		if card != 0 {
			u.Card = strconv.FormatUint(uint64(card), 10)
		}

		users = append(users, u)
	}

	return users
}

// parseEventRecords decodes the 40-byte attendance entries:
// uid u16, user_id [24], status u8, timestamp u32, punch u8, pad [8].
func parseEventRecords(data []byte) []EventRecord {
	if len(data) >= 4 && len(data)%attRecordSize == 4 {
		data = data[4:]
	}

	events := make([]EventRecord, 0, len(data)/attRecordSize)

	for len(data) >= attRecordSize {
		rec := data[:attRecordSize]
		data = data[attRecordSize:]

		uid := binary.LittleEndian.Uint16(rec[0:2])
		deviceUserID := cString(rec[2:26])
		status := int(rec[26])
		ts, ok := decodeTimestamp(binary.LittleEndian.Uint32(rec[27:31]))

		if deviceUserID == "" || !ok {
			continue
		}

		events = append(events, EventRecord{
			RecordID:     int64(uid),
			DeviceUserID: deviceUserID,
			Timestamp:    ts,
			Status:       StatusString(status),
		})
	}

	return events
}

// decodeTimestamp unpacks the terminal's packed calendar integer.
func decodeTimestamp(t uint32) (time.Time, bool) {
	if t == 0 {
		return time.Time{}, false
	}

	second := int(t % 60)
	t /= 60
	minute := int(t % 60)
	t /= 60
	hour := int(t % 24)
	t /= 24
	day := int(t%31) + 1
	t /= 31
	month := int(t%12) + 1
	t /= 12
	year := int(t) + 2000

	return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.Local), true
}
