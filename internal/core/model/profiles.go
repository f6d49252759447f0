// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
)

// ValidProfile reports whether handle can be used as a profile. Handles end up
// in object keys and local paths, so path separators and dot segments are
// rejected.
func ValidProfile(handle string) bool {
	if handle == "" || handle == "." || handle == ".." {
		return false
	}
	return !strings.ContainsAny(handle, "/\\\x00")
}

// ParseProfiles reads a newline-delimited profile list. Lines are trimmed,
// blank lines are skipped and invalid handles are logged and skipped.
func ParseProfiles(r io.Reader) ([]string, error) {
	out := make([]string, 0)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !ValidProfile(line) {
			slog.Warn("skipping invalid profile handle", "profile", line)
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// FormatProfiles renders profiles in the format ParseProfiles reads.
func FormatProfiles(profiles []string) string {
	var b strings.Builder
	for _, p := range profiles {
		b.WriteString(p)
		b.WriteByte('\n')
	}
	return b.String()
}

// SplitProfiles divides profiles into consecutive groups of ceil(len/groups)
// entries. Fewer groups than requested are returned when the list is short.
func SplitProfiles(profiles []string, groups int) [][]string {
	if len(profiles) == 0 {
		return nil
	}
	if groups < 1 {
		groups = 1
	}
	size := (len(profiles) + groups - 1) / groups
	out := make([][]string, 0, groups)
	for start := 0; start < len(profiles); start += size {
		end := min(start+size, len(profiles))
		out = append(out, profiles[start:end])
	}
	return out
}
