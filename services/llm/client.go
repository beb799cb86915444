// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the semantic classifier used by the atlas pipeline
// for the judgments that cannot be made with deterministic patterns:
// constraint violations, task shifts, and ambiguous interaction modes.
package llm

import "context"

// Request is a single one-shot classification call.
type Request struct {
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
}

// Classifier is the standard interface for any semantic classifier backend.
//
// Implementations return the raw completion text; callers parse it. A nil
// Classifier handle everywhere in the pipeline means "deterministic-only".
type Classifier interface {
	Complete(ctx context.Context, req Request) (string, error)
}
