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
// capabilities. This file wraps the speech-to-text engine.
//
// The engine is a black box invoked as a CLI. It writes a JSON document next
// to a scratch directory and this adapter reads the segments back.
//
// Structs:
//   - WhisperXEngine: runs the whisperx CLI with a configured device and
//     compute precision.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// TranscriptionEngine turns one audio file into time-aligned text segments.
type TranscriptionEngine interface {
	Transcribe(ctx context.Context, audioPath string) ([]model.Segment, error)
}

// WhisperXEngine invokes the whisperx command line.
type WhisperXEngine struct {
	Binary      string // Executable, "whisperx" when on PATH.
	Model       string // Model size, e.g. "small".
	Device      string // "cpu" or "cuda".
	ComputeType string // "int8", "float16" or "float32".
	BatchSize   int    // Inference batch size; 0 keeps the engine default.
	Language    string // Forced language code; empty enables detection.
}

type whisperOutput struct {
	Language string          `json:"language"`
	Segments []model.Segment `json:"segments"`
}

// Transcribe runs the engine for one file.
//
// Inputs:
//   - ctx: Cancellation for the engine process.
//   - audioPath: Local path of the audio file.
//
// Outputs:
//   - []model.Segment: The segments in time order.
//   - error: ErrExternalTool when the engine fails or writes no output.
func (e *WhisperXEngine) Transcribe(ctx context.Context, audioPath string) ([]model.Segment, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisper-")
	if err != nil {
		return nil, Wrap(ErrTransient, "transcription", "scratch", "", err)
	}
	defer os.RemoveAll(outDir)

	binary := e.Binary
	if binary == "" {
		binary = "whisperx"
	}
	cmd := exec.CommandContext(ctx, binary, e.args(audioPath, outDir)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, Wrap(ErrExternalTool, "transcription", "whisperx", strings.TrimSpace(stderr.String()), err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	raw, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, Wrap(ErrExternalTool, "transcription", "whisperx", "no output document", err)
	}
	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, Wrap(ErrExternalTool, "transcription", "whisperx", "unreadable output document", err)
	}
	return out.Segments, nil
}

func (e *WhisperXEngine) args(audioPath, outDir string) []string {
	args := []string{audioPath, "--output_format", "json", "--output_dir", outDir}
	if e.Model != "" {
		args = append(args, "--model", e.Model)
	}
	if e.Device != "" {
		args = append(args, "--device", e.Device)
	}
	if e.ComputeType != "" {
		args = append(args, "--compute_type", e.ComputeType)
	}
	if e.BatchSize > 0 {
		args = append(args, "--batch_size", strconv.Itoa(e.BatchSize))
	}
	if e.Language != "" {
		args = append(args, "--language", e.Language)
	}
	return args
}

// String describes the engine configuration for logs.
func (e *WhisperXEngine) String() string {
	return fmt.Sprintf("whisperx(model=%s device=%s compute=%s)", e.Model, e.Device, e.ComputeType)
}
