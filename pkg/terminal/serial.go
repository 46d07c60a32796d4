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
	"net/netip"
	"strconv"
	"strings"

	"github.com/clockhouse/attendsync/pkg/models"
)

// UnknownSerial is the sentinel used when no usable serial can be derived.
const UnknownSerial = "UNKNOWN"

// ResolveSerial derives the best available serial for a device, in order:
// the session-reported serial, the inventory serial, the device name when
// it is not an IP literal, then UnknownSerial.
func ResolveSerial(ctx context.Context, sess Session, device *models.Device) string {
	if sess != nil {
		if s, err := sess.Serial(ctx); err == nil {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}

	if device.Serial != "" {
		return device.Serial
	}

	if name := strings.TrimSpace(device.Name); name != "" && !IsIPLiteral(name) {
		return name
	}

	return UnknownSerial
}

// IsIPLiteral reports whether s parses as a bare IP address.
func IsIPLiteral(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// zk attendance status codes, per the terminal firmware.
var statusNames = map[int]string{
	0: "check-in",
	1: "check-out",
	2: "break-out",
	3: "break-in",
	4: "overtime-in",
	5: "overtime-out",
}

// StatusString normalizes a device status code to a stable string.
// Unknown codes pass through as their decimal form.
func StatusString(code int) string {
	if name, ok := statusNames[code]; ok {
		return name
	}

	return strconv.Itoa(code)
}
