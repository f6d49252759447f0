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

// Package services holds the contracts for the pipeline's external
// capabilities. This file defines the ArtifactStore and the newline-delimited
// JSON codec every stage uses for its partition artifacts.
//
// Logic Flow:
//  1. A worker accumulates its whole batch in memory.
//  2. WriteRecords encodes the batch as one JSON object per line and stores it
//     with a single Put, so a terminated job never leaves a partial partition.
//  3. Put refuses to overwrite; artifacts are append-only.
//  4. The next stage reads the artifact back by reference with ReadRecords.
package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// ContentTypeJSONLines is the content type of every partition artifact.
const ContentTypeJSONLines = "application/x-ndjson"

const maxRecordLine = 16 * 1024 * 1024

// ArtifactStore is the object store holding partitioned artifacts.
type ArtifactStore interface {
	// Put writes a new object. It fails with ErrAlreadyExists when the key is
	// already present.
	Put(ctx context.Context, ref model.ObjectRef, body []byte, contentType string) error
	// Get reads an object. It fails with ErrNotFound when the key is absent.
	Get(ctx context.Context, ref model.ObjectRef) ([]byte, error)
	// List returns every key in bucket starting with prefix, in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// EncodeRecords renders records as newline-delimited JSON.
func EncodeRecords[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("failed to encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// DecodeRecords parses newline-delimited JSON. Blank lines are skipped.
func DecodeRecords[T any](body []byte) ([]T, error) {
	out := make([]T, 0)
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

// WriteRecords encodes records and stores them as one artifact.
func WriteRecords[T any](ctx context.Context, store ArtifactStore, ref model.ObjectRef, records []T) error {
	body, err := EncodeRecords(records)
	if err != nil {
		return Wrap(ErrValidation, "", "encode", ref.String(), err)
	}
	return store.Put(ctx, ref, body, ContentTypeJSONLines)
}

// ReadRecords loads and decodes one artifact.
func ReadRecords[T any](ctx context.Context, store ArtifactStore, ref model.ObjectRef) ([]T, error) {
	body, err := store.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	out, err := DecodeRecords[T](body)
	if err != nil {
		return nil, Wrap(ErrValidation, "", "decode", ref.String(), err)
	}
	return out, nil
}
