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

// Package services holds the contracts for the external capabilities the
// pipeline calls (content fetching, transcription, analysis, queueing and
// artifact storage) together with the error taxonomy shared by every stage.
//
// Errors are tagged with one of the sentinel markers below so callers can
// classify a failure with errors.Is without parsing messages:
//   - ErrTransient, ErrTimeout: retry by redelivery or resubmission.
//   - ErrMalformedKey, ErrValidation: the input can never succeed; drop it.
//   - ErrPartitionConflict: a data-integrity failure that must be surfaced.
//   - ErrRateLimited, ErrModelsExhausted: analysis model fallback signals.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient         = errors.New("transient failure")
	ErrTimeout           = errors.New("timeout")
	ErrValidation        = errors.New("validation error")
	ErrConfiguration     = errors.New("configuration error")
	ErrExternalTool      = errors.New("external tool error")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrMalformedKey      = errors.New("malformed artifact key")
	ErrPartitionConflict = errors.New("partition conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrModelsExhausted   = errors.New("analysis models exhausted")
)

// Wrap builds an error message that names the stage and operation that failed
// while tagging it with marker for later classification. A nil marker is
// treated as ErrTransient.
//
// Inputs:
//   - marker: One of the exported sentinel errors.
//   - stage: The pipeline stage, may be empty.
//   - operation: The operation within the stage, may be empty.
//   - message: Free-form detail, may be empty.
//   - err: The underlying cause, may be nil.
//
// Outputs:
//   - error: An error matching both marker and err under errors.Is.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether redelivering the work that produced err could
// succeed. Malformed input, validation failures and partition conflicts are
// never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrMalformedKey),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrPartitionConflict),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrConfiguration):
		return false
	default:
		return true
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
