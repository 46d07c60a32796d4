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

package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// appendUnmapped records device user ids that could not be mapped to a
// replica id in a per-serial daily CSV. The file is append-only audit
// material; a header is written once when the file is created.
func appendUnmapped(dir, serial string, day time.Time, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if dir == "" {
		dir = "logs"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unmapped dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("access_unmapped_%s_%s.csv", serial, day.Format("20060102")))

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open unmapped file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if isNew {
		if _, err := f.WriteString("badge\n"); err != nil {
			return fmt.Errorf("write unmapped header: %w", err)
		}
	}

	for _, id := range ids {
		if _, err := fmt.Fprintln(f, id); err != nil {
			return fmt.Errorf("write unmapped row: %w", err)
		}
	}

	return nil
}
