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

package registry

import (
	"context"
	"time"
)

// ExecutionState is the state of a statement running in the catalog.
type ExecutionState int

const (
	StateQueued ExecutionState = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s ExecutionState) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state can no longer change.
func (s ExecutionState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// ExecutionStatus is one observation of a running statement.
type ExecutionStatus struct {
	State  ExecutionState
	Reason string // Set by the catalog for failed or cancelled statements.
}

// StatusReader reports the state of a statement started in the catalog.
type StatusReader interface {
	Status(ctx context.Context, executionID string) (ExecutionStatus, error)
}

// PollPolicy bounds WaitForCompletion.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollPolicy waits up to a minute.
var DefaultPollPolicy = PollPolicy{Interval: 2 * time.Second, MaxAttempts: 30}

// Outcome tags a PollResult.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeCancelled
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "timed_out"
	}
}

// PollResult is the terminal result of WaitForCompletion.
type PollResult struct {
	Outcome  Outcome
	Attempts int
	Reason   string // Catalog reason for failed or cancelled statements.
	Err      error  // Status read failure or context error, if any.
}

// WaitForCompletion polls the state of executionID until it is terminal or the
// policy is exhausted. A status read error ends the wait as OutcomeFailed; a
// cancelled context ends it as OutcomeTimedOut.
func WaitForCompletion(ctx context.Context, reader StatusReader, executionID string, policy PollPolicy) PollResult {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPollPolicy.MaxAttempts
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		status, err := reader.Status(ctx, executionID)
		if err != nil {
			return PollResult{Outcome: OutcomeFailed, Attempts: attempt, Err: err}
		}
		switch status.State {
		case StateSucceeded:
			return PollResult{Outcome: OutcomeSucceeded, Attempts: attempt}
		case StateFailed:
			return PollResult{Outcome: OutcomeFailed, Attempts: attempt, Reason: status.Reason}
		case StateCancelled:
			return PollResult{Outcome: OutcomeCancelled, Attempts: attempt, Reason: status.Reason}
		}

		if attempt == policy.MaxAttempts {
			break
		}
		timer := time.NewTimer(policy.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PollResult{Outcome: OutcomeTimedOut, Attempts: attempt, Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return PollResult{Outcome: OutcomeTimedOut, Attempts: policy.MaxAttempts}
}
