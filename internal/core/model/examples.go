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

// Package model defines the data structures for the pipeline. This file,
// `examples.go`, provides the fixed category taxonomy and an example analysis.
//
// The example is rendered into the analysis prompt so the model sees the exact
// JSON shape it must return, which keeps responses parseable.
package model

import "encoding/json"

// DefaultCategories is the content taxonomy used when the configuration does
// not supply one.
var DefaultCategories = []string{
	"Dance", "Comedy/Skits", "Education/Tutorials", "Fitness/Workouts",
	"Beauty/Makeup", "Fashion/Style", "Food/Cooking", "Travel/Adventure",
	"Technology/Gadgets", "Motivational/Inspirational", "DIY/Crafts",
	"Gaming", "Pets/Animals", "Music/Singing", "Life Hacks",
	"Relationships/Dating", "Parenting/Family", "Memes/Trends",
	"Health/Wellness", "Science/Experiments",
}

// GetExampleAnalysis creates a sample Analysis used as a one-shot example in
// the analysis prompt.
//
// Outputs:
//   - *Analysis: A pointer to a hardcoded Analysis.
func GetExampleAnalysis() *Analysis {
	language := "en"
	category := "Food/Cooking"
	return &Analysis{
		Language: &language,
		Category: &category,
		Summary:  "A quick recipe for a three-ingredient pasta sauce, cooked in one pan.",
		Keywords: []string{"pasta", "recipe", "quick dinner", "one pan"},
	}
}

// GetExampleAnalysisJSON returns GetExampleAnalysis rendered as indented JSON.
func GetExampleAnalysisJSON() string {
	out, _ := json.MarshalIndent(GetExampleAnalysis(), "", "  ")
	return string(out)
}
