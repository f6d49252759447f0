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
// capabilities. This file defines the analysis engine contract, the prompt
// builder and the parser for the engine's JSON judgment.
//
// Functions:
//   - NewPromptBuilder: compiles the configured prompt template.
//   - ParseAnalysis: strips markdown fences and decodes the response.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"text/template"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// AnalyzerSystemInstruction is sent with every analysis request.
const AnalyzerSystemInstruction = "You are an expert content analyzer. Respond only with valid JSON."

// DefaultPromptTemplate is used when the configuration has no analysis prompt.
const DefaultPromptTemplate = `Analyze the following short-form video and return a JSON object with:
  - "language": the ISO 639-1 code of the spoken or written language
  - "category": exactly one of the categories below
  - "summary": one or two sentences describing the content
  - "keywords": up to eight short keywords

Categories:
{{ .Categories }}

Example response:
{{ .Example }}

Title: {{ .Title }}
Description: {{ .Description }}
Transcript: {{ .Transcript }}
`

// AnalysisEngine produces a JSON judgment for a prompt with the named model.
// Implementations must return an error matching ErrRateLimited when the
// provider rejects the call for quota reasons.
type AnalysisEngine interface {
	Analyze(ctx context.Context, modelName string, prompt string) (string, error)
}

// PromptBuilder renders the analysis prompt for one item.
type PromptBuilder struct {
	tmpl       *template.Template
	categories string
	example    string
}

type promptData struct {
	Categories  string
	Example     string
	Title       string
	Description string
	Transcript  string
}

// NewPromptBuilder compiles text, falling back to DefaultPromptTemplate, and
// renders categories as an indented bullet list.
func NewPromptBuilder(text string, categories []string) (*PromptBuilder, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultPromptTemplate
	}
	if len(categories) == 0 {
		categories = model.DefaultCategories
	}
	tmpl, err := template.New("analysis").Parse(text)
	if err != nil {
		return nil, Wrap(ErrConfiguration, "analysis", "prompt", "invalid template", err)
	}
	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		lines = append(lines, "  - "+c)
	}
	return &PromptBuilder{
		tmpl:       tmpl,
		categories: strings.Join(lines, "\n"),
		example:    model.GetExampleAnalysisJSON(),
	}, nil
}

// Build renders the prompt. A nil transcript is rendered as an empty string.
func (p *PromptBuilder) Build(title, description string, transcript *string) (string, error) {
	data := promptData{
		Categories:  p.categories,
		Example:     p.example,
		Title:       title,
		Description: description,
	}
	if transcript != nil {
		data.Transcript = *transcript
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, data); err != nil {
		return "", Wrap(ErrValidation, "analysis", "prompt", "", err)
	}
	return buf.String(), nil
}

// ParseAnalysis decodes the engine response. Markdown code fences around the
// JSON are tolerated; anything else that does not decode is ErrValidation.
func ParseAnalysis(response string) (*model.Analysis, error) {
	value := strings.TrimSpace(response)
	value = strings.TrimPrefix(value, "```json")
	value = strings.TrimPrefix(value, "```")
	value = strings.TrimSuffix(value, "```")
	value = strings.TrimSpace(value)

	out := &model.Analysis{}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return nil, Wrap(ErrValidation, "analysis", "parse", "malformed response", err)
	}
	if out.Keywords == nil {
		out.Keywords = make([]string, 0)
	}
	return out, nil
}
