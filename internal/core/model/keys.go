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

// Package model defines the core data structures for the pipeline. This file
// owns the partitioned key convention used by every stage:
//
//	<stage-prefix>/profile=<profile>/processed_at=<YYYY-MM-DD_HH:MM:SS>/<artifact>
//
// Logic Flow:
//  1. Writers call ArtifactKey with the batch timestamp to build the key.
//  2. The dispatcher calls ParsePartitionKey on every object that lands.
//  3. The cursor tracker calls ProfilePrefix to list a profile's partitions
//     and ParseProcessedAt to read their timestamps back.
//
// Only the lowercase `profile=` and `processed_at=` segment names are
// recognized. Keys written with any other casing are rejected as malformed.
package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// TimestampLayout is the processed_at format. The date and time are joined
// with an underscore so the value never contains a space.
const TimestampLayout = "2006-01-02_15:04:05"

var (
	// ErrKeyPattern is returned when a key does not follow the partition layout.
	ErrKeyPattern = errors.New("key does not match partition layout")

	partitionPattern = regexp.MustCompile(`^profile=([^/]+)/processed_at=([^/]+)/(.*)$`)
)

// PartitionKey is the parsed form of an artifact key.
type PartitionKey struct {
	Stage          Stage     // The stage the key belongs to, resolved from its prefix.
	Profile        string    // The creator profile handle.
	RawProcessedAt string    // The processed_at segment exactly as written.
	ProcessedAt    time.Time // RawProcessedAt parsed in UTC.
	Artifact       string    // The file name below the partition directory.
}

// FormatProcessedAt renders t as a processed_at segment value in UTC.
func FormatProcessedAt(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseProcessedAt parses a processed_at segment value.
func ParseProcessedAt(raw string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, raw, time.UTC)
}

// ProfilePrefix returns the listing prefix that covers every partition of the
// profile for the stage.
func ProfilePrefix(stage Stage, profile string) string {
	return fmt.Sprintf("%s/profile=%s/processed_at=", stage.Prefix(), profile)
}

// PartitionDir returns the partition directory, without a trailing slash.
func PartitionDir(stage Stage, profile string, processedAt time.Time) string {
	return ProfilePrefix(stage, profile) + FormatProcessedAt(processedAt)
}

// ArtifactKey returns the key of the artifact a stage writes for one batch.
func ArtifactKey(stage Stage, profile string, processedAt time.Time) string {
	return PartitionDir(stage, profile, processedAt) + "/" + stage.ArtifactName()
}

// ParsePartitionKey extracts the stage, profile and processed_at values from
// an object key. The key must sit under a known stage prefix, carry both
// partition segments in order and name a file inside the partition.
func ParsePartitionKey(key string) (PartitionKey, error) {
	stage, ok := StageForKey(key)
	if !ok {
		return PartitionKey{}, fmt.Errorf("%w: unknown stage prefix in %q", ErrKeyPattern, key)
	}
	rest := strings.TrimPrefix(key, stage.Prefix()+"/")
	m := partitionPattern.FindStringSubmatch(rest)
	if m == nil {
		return PartitionKey{}, fmt.Errorf("%w: %q", ErrKeyPattern, key)
	}
	if m[3] == "" || strings.HasSuffix(m[3], "/") {
		return PartitionKey{}, fmt.Errorf("%w: no artifact below partition in %q", ErrKeyPattern, key)
	}
	ts, err := ParseProcessedAt(m[2])
	if err != nil {
		return PartitionKey{}, fmt.Errorf("%w: bad processed_at %q: %v", ErrKeyPattern, m[2], err)
	}
	return PartitionKey{
		Stage:          stage,
		Profile:        m[1],
		RawProcessedAt: m[2],
		ProcessedAt:    ts,
		Artifact:       m[3],
	}, nil
}

// Dir is the partition directory the key was parsed from.
func (k PartitionKey) Dir() string {
	return ProfilePrefix(k.Stage, k.Profile) + k.RawProcessedAt
}

// Location is the catalog location of the partition in the given bucket.
func (k PartitionKey) Location(bucket string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, k.Dir())
}

// Partition converts the key into the registry's Partition record.
func (k PartitionKey) Partition(bucket string) Partition {
	return Partition{
		Table:       k.Stage.Table(),
		Profile:     k.Profile,
		ProcessedAt: k.RawProcessedAt,
		Location:    k.Location(bucket),
	}
}
