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

// Package model defines the core data structures for the pipeline.
// This file, `transient.go`, contains the structures that only live for the
// duration of a dispatch or a job: object references, job requests, per-item
// results and transcription segments. None of them are written to a partition.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Names of the only parameters a job carries. Workers re-read everything
// else from the artifact store.
const (
	EnvSourceBucket = "SOURCE_BUCKET"
	EnvSourceKey    = "SOURCE_KEY"
)

const maxJobProfileLength = 30

var jobNameUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// ObjectRef points at one object in the artifact store.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (o ObjectRef) String() string {
	return fmt.Sprintf("gs://%s/%s", o.Bucket, o.Key)
}

// JobRequest is one unit of work submitted to a stage's work queue.
type JobRequest struct {
	ID            string            `json:"id"`                      // Deterministic SHA-1 UUID of the source reference.
	Name          string            `json:"name"`                    // Human readable job name.
	Stage         Stage             `json:"stage"`                   // The stage that must run the job.
	Queue         string            `json:"queue"`                   // The queue the job was submitted to.
	JobDefinition string            `json:"job_definition"`          // The worker definition that runs the job.
	ProfileGroup  []string          `json:"profile_group,omitempty"` // Profiles covered by the job, when known.
	Env           map[string]string `json:"env"`                     // Always carries SOURCE_BUCKET and SOURCE_KEY.
	SubmittedAt   time.Time         `json:"submitted_at"`
}

// NewJobRequest creates the request that runs stage against the source object.
// Queue and JobDefinition are filled in by the submitter.
func NewJobRequest(stage Stage, source ObjectRef, profileGroup ...string) *JobRequest {
	profile := ""
	if len(profileGroup) > 0 {
		profile = profileGroup[0]
	}
	return &JobRequest{
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte(source.String())).String(),
		Name:         JobName(stage.JobVerb(), profile, source.Key),
		Stage:        stage,
		ProfileGroup: profileGroup,
		Env: map[string]string{
			EnvSourceBucket: source.Bucket,
			EnvSourceKey:    source.Key,
		},
		SubmittedAt: time.Now().UTC(),
	}
}

// Source returns the object the job must read.
func (j *JobRequest) Source() (ObjectRef, error) {
	ref := ObjectRef{Bucket: j.Env[EnvSourceBucket], Key: j.Env[EnvSourceKey]}
	if ref.Bucket == "" || ref.Key == "" {
		return ObjectRef{}, errors.New("job request is missing SOURCE_BUCKET or SOURCE_KEY")
	}
	return ref, nil
}

// JobName builds `<verb>-<profile>-<hash>` where the profile is reduced to
// job-name safe characters and capped at 30 characters and the hash is the
// first eight hex digits of the MD5 of the source key.
func JobName(verb, profile, key string) string {
	sum := md5.Sum([]byte(key))
	hash := hex.EncodeToString(sum[:])[:8]
	clean := jobNameUnsafe.ReplaceAllString(profile, "")
	if len(clean) > maxJobProfileLength {
		clean = clean[:maxJobProfileLength]
	}
	parts := []string{verb}
	if clean != "" {
		parts = append(parts, clean)
	}
	parts = append(parts, hash)
	return strings.Join(parts, "-")
}

// ItemResult is the outcome of processing one item of a batch. A failed item
// is a value the caller inspects, never a control-flow jump.
type ItemResult[T any] struct {
	ID    string
	Value T
	Err   error
}

// Ok wraps a successful item.
func Ok[T any](id string, value T) ItemResult[T] {
	return ItemResult[T]{ID: id, Value: value}
}

// Failed wraps a failed item and its reason.
func Failed[T any](id string, reason error) ItemResult[T] {
	return ItemResult[T]{ID: id, Err: reason}
}

// OK reports whether the item succeeded.
func (r ItemResult[T]) OK() bool { return r.Err == nil }

// Segment is one time-aligned piece of a transcript.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JoinSegments concatenates the trimmed text of every segment with a single space.
func JoinSegments(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
