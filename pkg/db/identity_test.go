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

package db

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsBadgeConflict(t *testing.T) {
	t.Parallel()

	badgeErr := &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: badgeNumberConstraint}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"badge unique violation", badgeErr, true},
		{"wrapped badge violation", fmt.Errorf("exec: %w", badgeErr), true},
		{
			"other unique violation",
			&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "device_user_refs_device_userid_device_serial_key"},
			false,
		},
		{
			"other pg error",
			&pgconn.PgError{Code: "23503", ConstraintName: badgeNumberConstraint},
			false,
		},
		{"plain error", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, isBadgeConflict(tt.err))
		})
	}
}

func TestSchemaDeclaresGlobalBadgeUniqueness(t *testing.T) {
	t.Parallel()

	var refs string

	for _, stmt := range schemaStatements {
		if strings.Contains(stmt, "device_user_refs (") {
			refs = stmt
			break
		}
	}

	require.NotEmpty(t, refs, "device_user_refs table missing from schema")
	// The conflict handler matches on the constraint name, so the DDL
	// must declare it explicitly.
	assert.Contains(t, refs, badgeNumberConstraint)
	assert.Contains(t, refs, "UNIQUE (badge_number)")
}
