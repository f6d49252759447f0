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
// describes the three processing stages and the fixed storage layout each one
// writes to: its key prefix in the artifact store, the catalog table its
// partitions are registered in, the artifact file name and the stage that
// consumes its output.
package model

import (
	"fmt"
	"strings"
)

// Stage names one step of the processing pipeline.
type Stage string

const (
	StageMetadata      Stage = "metadata"
	StageTranscription Stage = "transcription"
	StageAnalysis      Stage = "analysis"
)

type stageLayout struct {
	prefix     string // key prefix in the artifact store
	table      string // catalog table registered for the prefix
	artifact   string // artifact file written in every partition
	jobVerb    string // leading token of job names for this stage
	downstream Stage  // stage scheduled when this stage's artifact lands
}

var layouts = map[Stage]stageLayout{
	StageMetadata: {
		prefix:     "videos/metadata",
		table:      "metadata",
		artifact:   "metadata.json",
		jobVerb:    "metadata",
		downstream: StageTranscription,
	},
	StageTranscription: {
		prefix:     "videos/transcripts",
		table:      "transcripts",
		artifact:   "transcripts.json",
		jobVerb:    "transcribe",
		downstream: StageAnalysis,
	},
	StageAnalysis: {
		prefix:   "videos/text",
		table:    "text_analysis",
		artifact: "text.json",
		jobVerb:  "text",
	},
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StageMetadata, StageTranscription, StageAnalysis}
}

// ParseStage converts a configuration or command-line value to a Stage.
func ParseStage(in string) (Stage, error) {
	s := Stage(strings.ToLower(strings.TrimSpace(in)))
	if _, ok := layouts[s]; !ok {
		return "", fmt.Errorf("unknown stage %q", in)
	}
	return s, nil
}

// StageForKey resolves the stage whose prefix the object key lives under.
func StageForKey(key string) (Stage, bool) {
	for _, s := range Stages() {
		if strings.HasPrefix(key, layouts[s].prefix+"/") {
			return s, true
		}
	}
	return "", false
}

// Prefix is the artifact store key prefix, without a trailing slash.
func (s Stage) Prefix() string { return layouts[s].prefix }

// Table is the catalog table that partitions of this stage are registered in.
func (s Stage) Table() string { return layouts[s].table }

// ArtifactName is the file name written inside each partition directory.
func (s Stage) ArtifactName() string { return layouts[s].artifact }

// JobVerb is used as the first token of generated job names.
func (s Stage) JobVerb() string { return layouts[s].jobVerb }

// Downstream returns the stage that consumes this stage's artifacts.
func (s Stage) Downstream() (Stage, bool) {
	next := layouts[s].downstream
	return next, next != ""
}

func (s Stage) String() string { return string(s) }
