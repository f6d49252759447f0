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

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/registry"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
)

// MemoryStore is an in-memory services.ArtifactStore.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	PutErr  error // Returned by every Put when set.
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, ref model.ObjectRef, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		return s.PutErr
	}
	if _, ok := s.objects[ref.String()]; ok {
		return services.Wrap(services.ErrAlreadyExists, "store", "put", ref.String(), nil)
	}
	s.objects[ref.String()] = append([]byte(nil), body...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ref model.ObjectRef) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[ref.String()]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "store", "get", ref.String(), nil)
	}
	return body, nil
}

func (s *MemoryStore) List(_ context.Context, bucket, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	root := model.ObjectRef{Bucket: bucket}.String()
	out := make([]string, 0)
	for k := range s.objects {
		key, ok := strings.CutPrefix(k, root)
		if ok && strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Keys lists every key in bucket.
func (s *MemoryStore) Keys(bucket string) []string {
	keys, _ := s.List(context.Background(), bucket, "")
	return keys
}

// FakeQueue records submitted jobs.
type FakeQueue struct {
	mu   sync.Mutex
	Jobs []*model.JobRequest
	Err  error
}

func (q *FakeQueue) Submit(_ context.Context, job *model.JobRequest) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return "", q.Err
	}
	q.Jobs = append(q.Jobs, job)
	return fmt.Sprintf("msg-%d", len(q.Jobs)), nil
}

var hiveAddPartition = regexp.MustCompile(`^ALTER TABLE (\S+)\.(\S+) ADD IF NOT EXISTS PARTITION \(profile = '(.*)', processed_at = '(.*)'\) LOCATION '(.*)'$`)

// FakeCatalog is a registry.Catalog that understands the hive dialect. Each
// started statement reports RunningPolls non-terminal states before reaching
// Terminal, which defaults to StateSucceeded. A succeeded statement records
// its partition.
type FakeCatalog struct {
	mu           sync.Mutex
	Partitions   map[string]model.Partition
	Statements   []string
	StatusCalls  int
	RunningPolls int
	Terminal     registry.ExecutionState
	StartErr     error
	LookupErr    error
	BeforeStart  func(c *FakeCatalog) // Runs ahead of every Start, outside the lock.
	polls        map[string]int
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Partitions: make(map[string]model.Partition),
		Terminal:   registry.StateSucceeded,
		polls:      make(map[string]int),
	}
}

func partitionID(table, profile, processedAt string) string {
	return table + "|" + profile + "|" + processedAt
}

func unquote(in string) string {
	return strings.ReplaceAll(in, "''", "'")
}

func (c *FakeCatalog) Start(_ context.Context, statement string) (string, error) {
	if c.BeforeStart != nil {
		c.BeforeStart(c)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartErr != nil {
		return "", c.StartErr
	}
	c.Statements = append(c.Statements, statement)
	return fmt.Sprintf("exec-%d", len(c.Statements)), nil
}

func (c *FakeCatalog) Status(_ context.Context, executionID string) (registry.ExecutionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StatusCalls++
	c.polls[executionID]++
	if c.polls[executionID] <= c.RunningPolls {
		return registry.ExecutionStatus{State: registry.StateRunning}, nil
	}
	if c.Terminal != registry.StateSucceeded {
		return registry.ExecutionStatus{State: c.Terminal, Reason: "scripted"}, nil
	}

	var index int
	if _, err := fmt.Sscanf(executionID, "exec-%d", &index); err == nil && index > 0 && index <= len(c.Statements) {
		if m := hiveAddPartition.FindStringSubmatch(c.Statements[index-1]); m != nil {
			p := model.Partition{Table: m[2], Profile: unquote(m[3]), ProcessedAt: unquote(m[4]), Location: unquote(m[5])}
			id := partitionID(p.Table, p.Profile, p.ProcessedAt)
			if _, ok := c.Partitions[id]; !ok {
				c.Partitions[id] = p
			}
		}
	}
	return registry.ExecutionStatus{State: registry.StateSucceeded}, nil
}

func (c *FakeCatalog) Lookup(_ context.Context, table, profile, processedAt string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LookupErr != nil {
		return "", false, c.LookupErr
	}
	p, ok := c.Partitions[partitionID(table, profile, processedAt)]
	return p.Location, ok, nil
}

func (c *FakeCatalog) List(_ context.Context, table, profile string) ([]model.Partition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Partition, 0)
	for _, p := range c.Partitions {
		if p.Table == table && p.Profile == profile {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt > out[j].ProcessedAt })
	return out, nil
}

// FakeFetcher serves canned metadata and writes placeholder audio files.
type FakeFetcher struct {
	mu           sync.Mutex
	Metadata     map[string][]string // Native JSON records per profile.
	MissingAudio map[string]bool     // Ids whose download fails.
	NotAudio     map[string]bool     // Ids whose file is not audio.
	MetadataErr  error
	AudioErr     error
	AudioCalls   int
	AudioDirs    []string
}

// MP3Header is recognized as audio/mpeg by content sniffing.
var MP3Header = []byte{'I', 'D', '3', 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFB}

func (f *FakeFetcher) FetchMetadata(_ context.Context, profile string) ([]json.RawMessage, error) {
	if f.MetadataErr != nil {
		return nil, f.MetadataErr
	}
	out := make([]json.RawMessage, 0, len(f.Metadata[profile]))
	for _, r := range f.Metadata[profile] {
		out = append(out, json.RawMessage(r))
	}
	return out, nil
}

func (f *FakeFetcher) FetchAudio(_ context.Context, _ string, ids []string, dir string) (map[string]string, error) {
	f.mu.Lock()
	f.AudioCalls++
	f.AudioDirs = append(f.AudioDirs, dir)
	f.mu.Unlock()
	if f.AudioErr != nil {
		return nil, f.AudioErr
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, id := range ids {
		if f.MissingAudio[id] {
			continue
		}
		path := filepath.Join(dir, id+".mp3")
		body := MP3Header
		if f.NotAudio[id] {
			body = []byte("<html>blocked</html>")
		}
		if err := os.WriteFile(path, body, 0o600); err != nil {
			return nil, err
		}
		out[id] = path
	}
	return out, nil
}

// FakeTranscriber returns canned segments keyed by the audio file's base name
// without extension.
type FakeTranscriber struct {
	mu       sync.Mutex
	Segments map[string][]model.Segment
	Fail     map[string]bool
	Seen     []string
}

func (e *FakeTranscriber) Transcribe(_ context.Context, audioPath string) ([]model.Segment, error) {
	id := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	e.mu.Lock()
	e.Seen = append(e.Seen, audioPath)
	e.mu.Unlock()
	if e.Fail[id] {
		return nil, services.Wrap(services.ErrExternalTool, "transcription", "whisperx", id, nil)
	}
	return e.Segments[id], nil
}

// FakeEngine is a scripted services.AnalysisEngine.
type FakeEngine struct {
	mu      sync.Mutex
	Respond func(model, prompt string) (string, error)
	Calls   []string // Model name of every call, in order.
}

func (e *FakeEngine) Analyze(_ context.Context, modelName string, prompt string) (string, error) {
	e.mu.Lock()
	e.Calls = append(e.Calls, modelName)
	e.mu.Unlock()
	return e.Respond(modelName, prompt)
}

// RateLimited is the error a provider returns on quota rejection.
func RateLimited(modelName string) error {
	return services.Wrap(services.ErrRateLimited, "analysis", "generate", modelName, nil)
}
