// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package moves

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/textmatch"
	"github.com/issacting93/Cartographer/services/llm"
)

const (
	// minViolationTextLen: assistant turns shorter than this are never sent
	// for violation checks.
	minViolationTextLen = 50

	// violationExcerptLen bounds the assistant excerpt in the violation
	// prompt.
	violationExcerptLen = 1500

	// semanticMinConfidence is the acceptance floor for classifier
	// judgments.
	semanticMinConfidence = 0.7
)

const violationPrompt = `Given these active constraints and the AI's response, identify which constraints (if any) are CLEARLY violated.

RULES - only flag a violation when:
- The response DIRECTLY contradicts or ignores a specific, verifiable constraint
- The response does something the constraint explicitly forbids
- The response completely omits something the constraint requires AND the response addresses that topic

Do NOT flag:
- Partial completions (the AI addressed the constraint but didn't finish)
- Stylistic differences (formatting, tone, length variations)
- Aspirational quality standards (these have already been filtered out)

ACTIVE CONSTRAINTS:
%s

AI RESPONSE (excerpt):
%s

For each violated constraint, respond with a JSON array. Each item has "constraint_index" (0-based), "reason" (short explanation), and "confidence" (0.0-1.0).
If no violations, respond with [].

Respond with JSON only.`

const taskShiftPrompt = `The user's original goal was:
"%s"

The user now says:
"%s"

Has the user COMPLETELY ABANDONED their original goal and started a FUNDAMENTALLY DIFFERENT task?

Only flag as a shift if the user has moved to an entirely different subject with no connection to the original goal.
Do NOT flag as a shift:
- Refining, narrowing, or expanding the original goal
- Adding new constraints or requirements to the same task
- Asking follow-up questions about the same topic
- Iterating on a previous attempt at the same goal
- Requesting a different approach to the same problem

Respond with JSON: {"is_shift": true/false, "confidence": 0.0-1.0, "new_goal": "..." or null}`

type violationJudgment struct {
	ConstraintIndex int     `json:"constraint_index"`
	Reason          string  `json:"reason"`
	Confidence      float64 `json:"confidence"`
}

type shiftJudgment struct {
	IsShift    bool    `json:"is_shift"`
	Confidence float64 `json:"confidence"`
	NewGoal    string  `json:"new_goal"`
}

// detectViolations asks the classifier which active constraints the
// assistant text clearly breaks. Aspirational constraints are filtered out
// before the call; indices in the prompt are re-sequenced over the
// verifiable subset and mapped back afterwards. A classifier failure
// degrades to no violations.
func detectViolations(ctx context.Context, client llm.Classifier, assistantText string, activeConstraints []string) []core.Move {
	if client == nil || len(activeConstraints) == 0 {
		return nil
	}
	if len(strings.TrimSpace(assistantText)) < minViolationTextLen {
		return nil
	}

	var verifiable []string
	for _, c := range activeConstraints {
		if !IsAspirational(c) {
			verifiable = append(verifiable, c)
		}
	}
	if len(verifiable) == 0 {
		return nil
	}

	var sb strings.Builder
	for seq, c := range verifiable {
		fmt.Fprintf(&sb, "  [%d] %s\n", seq, c)
	}

	out, err := client.Complete(ctx, llm.Request{
		System:    "You detect constraint violations. Be strict - only flag clear, unambiguous violations. Output JSON only.",
		Prompt:    fmt.Sprintf(violationPrompt, strings.TrimRight(sb.String(), "\n"), textmatch.Truncate(assistantText, violationExcerptLen)),
		MaxTokens: 200,
	})
	if err != nil {
		slog.Warn("violation detection failed", "error", err.Error())
		return nil
	}

	var judgments []violationJudgment
	if err := json.Unmarshal([]byte(llm.StripFences(out)), &judgments); err != nil {
		slog.Warn("violation detection returned malformed JSON", "error", err.Error())
		return nil
	}

	var result []core.Move
	for _, j := range judgments {
		if j.Confidence < semanticMinConfidence {
			continue
		}
		if j.ConstraintIndex < 0 || j.ConstraintIndex >= len(verifiable) {
			continue
		}
		result = append(result, core.Move{
			Type: core.MoveViolateConstraint,
			TextSpan: fmt.Sprintf("[violates: %s] %s",
				textmatch.Truncate(verifiable[j.ConstraintIndex], 60),
				textmatch.Truncate(j.Reason, 40)),
			Confidence: j.Confidence,
			Method:     core.MethodSemantic,
			Actor:      core.RoleAssistant,
		})
	}
	return result
}

// detectTaskShift asks the classifier whether the user has abandoned the
// original goal for a fundamentally different one. Only turns with goal
// language are checked.
func detectTaskShift(ctx context.Context, client llm.Classifier, userText, originalGoal string) *core.Move {
	if client == nil || originalGoal == "" {
		return nil
	}
	if len(strings.TrimSpace(userText)) < 20 {
		return nil
	}
	if !constraintGoal.AnyMatch(userText) {
		return nil
	}

	out, err := client.Complete(ctx, llm.Request{
		System:    "You detect goal changes. Output JSON only.",
		Prompt:    fmt.Sprintf(taskShiftPrompt, textmatch.Truncate(originalGoal, 200), textmatch.Truncate(userText, 500)),
		MaxTokens: 100,
	})
	if err != nil {
		slog.Warn("task shift detection failed", "error", err.Error())
		return nil
	}

	var j shiftJudgment
	if err := json.Unmarshal([]byte(llm.StripFences(out)), &j); err != nil {
		slog.Warn("task shift detection returned malformed JSON", "error", err.Error())
		return nil
	}
	if !j.IsShift || j.Confidence < semanticMinConfidence {
		return nil
	}
	return &core.Move{
		Type:       core.MoveTaskShift,
		TextSpan:   fmt.Sprintf("[shift to: %s]", textmatch.Truncate(j.NewGoal, 80)),
		Confidence: j.Confidence,
		Method:     core.MethodSemantic,
		Actor:      core.RoleUser,
	}
}
