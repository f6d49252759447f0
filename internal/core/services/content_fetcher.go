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

package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ContentFetcher retrieves metadata and audio for a creator profile.
type ContentFetcher interface {
	// FetchMetadata returns one native JSON record per item of the profile.
	FetchMetadata(ctx context.Context, profile string) ([]json.RawMessage, error)
	// FetchAudio downloads audio for every id in one request into dir and
	// returns the local path of each item that was acquired. Missing ids
	// failed to download.
	FetchAudio(ctx context.Context, profile string, ids []string, dir string) (map[string]string, error)
}

// YtDlpFetcher drives the yt-dlp binary.
type YtDlpFetcher struct {
	Binary      string        // Path to yt-dlp, "yt-dlp" when on PATH.
	BaseURL     string        // Site root, e.g. https://www.tiktok.com.
	AudioFormat string        // Extracted audio format, e.g. mp3.
	ExtraArgs   []string      // Appended to every invocation.
	Timeout     time.Duration // Upper bound on one invocation.
}

// NewYtDlpFetcher creates a fetcher with defaults for empty values.
func NewYtDlpFetcher(binary, baseURL, audioFormat string, extraArgs []string, timeout time.Duration) *YtDlpFetcher {
	if binary == "" {
		binary = "yt-dlp"
	}
	if audioFormat == "" {
		audioFormat = "mp3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &YtDlpFetcher{
		Binary:      binary,
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		AudioFormat: audioFormat,
		ExtraArgs:   extraArgs,
		Timeout:     timeout,
	}
}

// ProfileURL is the listing page of a profile.
func (f *YtDlpFetcher) ProfileURL(profile string) string {
	return fmt.Sprintf("%s/@%s", f.BaseURL, profile)
}

// VideoURL is the page of one item of a profile.
func (f *YtDlpFetcher) VideoURL(profile, id string) string {
	return fmt.Sprintf("%s/@%s/video/%s", f.BaseURL, profile, id)
}

// FetchMetadata lists the profile with --dump-json, which prints one info
// record per line without downloading media. Lines that are not JSON objects
// are skipped.
func (f *YtDlpFetcher) FetchMetadata(ctx context.Context, profile string) ([]json.RawMessage, error) {
	args := []string{"--dump-json", "--skip-download", "--ignore-errors", "--no-warnings"}
	args = append(args, f.ExtraArgs...)
	args = append(args, f.ProfileURL(profile))

	stdout, stderr, runErr := f.run(ctx, args)

	out := make([]json.RawMessage, 0)
	scanner := bufio.NewScanner(bytes.NewReader(stdout))
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		out = append(out, json.RawMessage(bytes.Clone(line)))
	}
	if runErr != nil {
		if len(out) == 0 {
			return nil, Wrap(ErrExternalTool, "metadata", "yt-dlp", strings.TrimSpace(stderr), runErr)
		}
		slog.WarnContext(ctx, "yt-dlp reported errors for some items", "profile", profile, "error", runErr, "records", len(out))
	}
	return out, scanner.Err()
}

// FetchAudio extracts audio for all ids in a single yt-dlp run. yt-dlp keeps
// going past individual failures, so the result is read back from dir.
func (f *YtDlpFetcher) FetchAudio(ctx context.Context, profile string, ids []string, dir string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := []string{
		"-x", "--audio-format", f.AudioFormat,
		"--ignore-errors", "--no-warnings",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
	}
	args = append(args, f.ExtraArgs...)
	for _, id := range ids {
		args = append(args, f.VideoURL(profile, id))
	}

	_, stderr, runErr := f.run(ctx, args)

	for _, id := range ids {
		path := filepath.Join(dir, id+"."+f.AudioFormat)
		if _, err := os.Stat(path); err == nil {
			out[id] = path
		}
	}
	if runErr != nil {
		if len(out) == 0 {
			return out, Wrap(ErrExternalTool, "transcription", "yt-dlp", strings.TrimSpace(stderr), runErr)
		}
		slog.WarnContext(ctx, "yt-dlp failed to acquire some items", "profile", profile, "acquired", len(out), "requested", len(ids))
	}
	return out, nil
}

func (f *YtDlpFetcher) run(ctx context.Context, args []string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = Wrap(ErrTimeout, "", "yt-dlp", f.Timeout.String(), ctx.Err())
	}
	return stdout.Bytes(), stderr.String(), err
}
