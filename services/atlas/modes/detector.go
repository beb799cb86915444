// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package modes detects the interaction mode of each user/assistant turn
// pair and flags mismatches between what the user asked for and what the
// assistant delivered.
//
// The user side is scored with signal patterns per mode; the assistant side
// is judged structurally (length, code blocks, lists, question density). An
// optional semantic classifier resolves user turns the patterns cannot.
package modes

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/textmatch"
	"github.com/issacting93/Cartographer/services/llm"
)

// Mode signal patterns for user turns. A turn is scored by how many
// patterns of each family it matches; the winner needs at least a 0.4 share
// of all matches.
var (
	listenerSignals = []*regexp.Regexp{
		regexp.MustCompile(`(?im)^(here'?s?|this is|let me (tell|explain|describe|share))\b`),
		regexp.MustCompile(`(?im)^(the situation is|background:|context:|for context)\b`),
		regexp.MustCompile(`(?im)^(i have|we have|there are|there'?s)\b.{19,}[^?]$`),
		regexp.MustCompile(`(?im)^(so basically|so the thing is|the problem is)\b`),
		regexp.MustCompile(`(?im)^(i'?m? (working on|dealing with|facing))\b.{19,}[^?]$`),
		regexp.MustCompile(`(?im)^(fyi|just so you know|for your (information|reference))\b`),
	}

	advisorSignals = textmatch.MustCompile(
		`\b(what do you (think|suggest|recommend))\b`,
		`\b(should i|would you (recommend|suggest|advise))\b`,
		`\b(which (is|would be|do you think is) (better|best|preferred))\b`,
		`\b(any (suggestions?|advice|recommendations?|thoughts|ideas))\b`,
		`\b(pros and cons|compare|evaluate|assess)\b`,
		`\b(is (it|this|that) (a good|the right|the best))\b`,
		`\b(what('?s| is| are) (the best|a good|your) (way|approach|strategy))\b`,
		`\b(help me (decide|choose|pick|figure out))\b`,
	)

	executorSignals = textmatch.MustCompile(
		`^(write|generate|create|make|build|produce|draft|compose)\b`,
		`^(give me|show me|provide|list|prepare)\b.*\b(a|an|the|some)\b`,
		`\b(translate|convert|rewrite|summarize|format|transform)\b`,
		`\b(code|script|function|program|implementation)\b.*\b(for|that|which|to)\b`,
		`^(can you|could you|please)\b.*\b(write|make|create|build|generate)\b`,
		`\b(i need|i want) (a|an|the|you to (write|make|create|build))\b`,
		`^(fix|update|modify|change|edit|refactor)\b`,
		`\b(output|deliverable|result|product)\b`,
	)
)

// Structural patterns for assistant turns.
var (
	adviceSignals = textmatch.MustCompile(
		`\b(i (would |)recommend|i (would |)suggest|you (should|could|might))\b`,
		`\b(consider|you may want to|it would be (best|better|wise))\b`,
		`\b(in my (opinion|view|assessment))\b`,
		`\b(the (best|better|preferred) (option|choice|approach))\b`,
		`\b(alternatively|on the other hand|however)\b`,
		`\b(pros|cons|advantages|disadvantages|trade-?offs)\b`,
	)

	clarificationSignals = textmatch.MustCompile(
		`\b(could you (clarify|specify|elaborate))\b`,
		`\b(can you (tell|provide|give) me more)\b`,
		`\b(what (exactly|specifically))\b.*\?`,
		`\b(before (i|we) (proceed|start|begin|continue))\b`,
		`\b(i (need|want) to (understand|know|clarify))\b`,
	)

	numberedListLine = regexp.MustCompile(`(?m)^\d+[\.\)]\s`)
)

const (
	// minModeTextLen: shorter user turns carry no mode signal.
	minModeTextLen = 15

	// winnerShare is the minimum fraction of all signal matches the top
	// mode must hold.
	winnerShare = 0.4

	// maxUserModeConfidence caps the pattern-derived confidence.
	maxUserModeConfidence = 0.95
)

// DetectUserMode scores the user text against all three signal families and
// returns the requested mode with a share-of-matches confidence. Turns with
// no clear winner come back AMBIGUOUS.
func DetectUserMode(text string) (core.InteractionMode, float64) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if len(lower) < minModeTextLen {
		return core.ModeAmbiguous, 0.3
	}

	listener := 0
	for _, p := range listenerSignals {
		if p.MatchString(lower) {
			listener++
		}
	}
	advisor := advisorSignals.CountMatches(lower)
	executor := executorSignals.CountMatches(lower)

	total := listener + advisor + executor
	if total == 0 {
		return core.ModeAmbiguous, 0.3
	}

	best, score := core.ModeListener, listener
	if advisor > score {
		best, score = core.ModeAdvisor, advisor
	}
	if executor > score {
		best, score = core.ModeExecutor, executor
	}

	confidence := float64(score) / float64(total)
	if confidence < winnerShare {
		return core.ModeAmbiguous, confidence
	}
	if confidence > maxUserModeConfidence {
		confidence = maxUserModeConfidence
	}
	return best, confidence
}

// DetectAIMode judges what mode the assistant actually operated in from the
// structure of its output. The rules are ordered from most to least
// specific; the fallthrough is EXECUTOR at low confidence.
func DetectAIMode(text string) (core.InteractionMode, float64) {
	lower := strings.ToLower(strings.TrimSpace(text))
	textLen := len(lower)

	hasCodeBlock := strings.Contains(text, "```")
	hasNumberedList := numberedListLine.MatchString(text)
	questionCount := strings.Count(text, "?")

	advice := adviceSignals.CountMatches(lower)
	clarification := clarificationSignals.CountMatches(lower)

	switch {
	case textLen < 200 && clarification >= 1:
		return core.ModeListener, 0.8
	case textLen < 100 && questionCount >= 2:
		return core.ModeListener, 0.75
	case advice >= 2 && !hasCodeBlock:
		return core.ModeAdvisor, 0.8
	case hasCodeBlock || textLen > 800:
		return core.ModeExecutor, 0.85
	case textLen > 400 && hasNumberedList:
		return core.ModeExecutor, 0.7
	case textLen > 300:
		return core.ModeExecutor, 0.6
	case advice >= 1:
		return core.ModeAdvisor, 0.6
	default:
		return core.ModeExecutor, 0.5
	}
}

// violationTable maps (requested, enacted) pairs to a breach kind. Pairs
// absent from the table mismatch without a named kind.
var violationTable = map[[2]core.InteractionMode]core.ModeViolationKind{
	{core.ModeListener, core.ModeAdvisor}:  core.ViolationUnsolicitedAdvice,
	{core.ModeListener, core.ModeExecutor}: core.ViolationUnsolicitedAdvice,
	{core.ModeAdvisor, core.ModeExecutor}:  core.ViolationPrematureExecution,
	{core.ModeExecutor, core.ModeListener}: core.ViolationExecutionAvoidance,
	{core.ModeExecutor, core.ModeAdvisor}:  core.ViolationExecutionAvoidance,
}

// ClassifyViolation names the mismatch between requested and enacted mode,
// or "" when the pair matches, the user mode is ambiguous, or the mismatch
// has no named kind.
func ClassifyViolation(requested, enacted core.InteractionMode) core.ModeViolationKind {
	if requested == core.ModeAmbiguous || requested == enacted {
		return ""
	}
	return violationTable[[2]core.InteractionMode{requested, enacted}]
}

const ambiguousModePrompt = `Given this user message in a conversation, what is the user asking the AI to do?

USER MESSAGE:
"%s"

CONTEXT (previous 2 messages):
%s

Answer with exactly one word: LISTENER, ADVISOR, or EXECUTOR

Where:
- LISTENER = user is providing information, not asking for output
- ADVISOR = user wants evaluation, recommendations, or comparison
- EXECUTOR = user wants the AI to produce a deliverable (text, code, plan, etc.)`

// resolveAmbiguous asks the classifier to pick a mode for a user turn the
// patterns could not score. Any failure degrades to EXECUTOR at 0.4.
func resolveAmbiguous(ctx context.Context, client llm.Classifier, text, contextText string) (core.InteractionMode, float64) {
	out, err := client.Complete(ctx, llm.Request{
		System:    "Classify interaction mode. Respond with one word only.",
		Prompt:    fmt.Sprintf(ambiguousModePrompt, textmatch.Truncate(text, 500), textmatch.Truncate(contextText, 500)),
		MaxTokens: 10,
	})
	if err != nil {
		slog.Warn("ambiguous mode resolution failed", "error", err.Error())
		return core.ModeExecutor, 0.4
	}

	switch mode := core.InteractionMode(strings.ToUpper(strings.TrimSpace(out))); mode {
	case core.ModeListener, core.ModeAdvisor, core.ModeExecutor:
		return mode, 0.7
	default:
		return core.ModeExecutor, 0.4
	}
}

// Detector annotates user/assistant turn pairs with interaction modes. A
// nil Client leaves ambiguous user turns unresolved.
type Detector struct {
	Client llm.Classifier
}

// Detect walks every adjacent user→assistant pair and emits one annotation
// per pair. The pair annotation's confidence is the weaker of the two side
// judgments. A mismatch with an unnamed kind still counts as a violation.
func (d *Detector) Detect(ctx context.Context, messages []core.Message) ([]core.ModeAnnotation, error) {
	var annotations []core.ModeAnnotation

	for i := 0; i+1 < len(messages); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if messages[i].Role != core.RoleUser || messages[i+1].Role != core.RoleAssistant {
			continue
		}

		userMode, userConf := DetectUserMode(messages[i].Content)

		method := core.MethodPattern
		if userMode == core.ModeAmbiguous && d.Client != nil {
			userMode, userConf = resolveAmbiguous(ctx, d.Client, messages[i].Content, pairContext(messages, i))
			method = core.MethodSemantic
		}

		aiMode, aiConf := DetectAIMode(messages[i+1].Content)

		isViolation := userMode != core.ModeAmbiguous && userMode != aiMode
		confidence := userConf
		if aiConf < confidence {
			confidence = aiConf
		}

		annotations = append(annotations, core.ModeAnnotation{
			TurnIndex:     i,
			UserRequested: userMode,
			AIEnacted:     aiMode,
			IsViolation:   isViolation,
			ViolationKind: ClassifyViolation(userMode, aiMode),
			Confidence:    confidence,
			Method:        method,
		})
	}

	return annotations, nil
}

// pairContext renders up to two preceding turns for the ambiguity prompt.
func pairContext(messages []core.Message, i int) string {
	start := i - 2
	if start < 0 {
		start = 0
	}
	var parts []string
	for j := start; j < i; j++ {
		parts = append(parts, fmt.Sprintf("%s: %s",
			strings.ToUpper(string(messages[j].Role)),
			textmatch.Truncate(messages[j].Content, 200)))
	}
	if len(parts) == 0 {
		return "[start of conversation]"
	}
	return strings.Join(parts, "\n")
}
