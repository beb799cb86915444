// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package moves

import (
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/textmatch"
)

const (
	maxSpanLen = 120

	// passiveMaxLen bounds how long a turn may be and still count as a
	// passive acknowledgement.
	passiveMaxLen = 50

	// defaultOutputMinLen is the minimum assistant text length that earns
	// the fallback GENERATE_OUTPUT move.
	defaultOutputMinLen = 80

	// earlyGoalTurns: goal statements before this turn index get boosted
	// confidence.
	earlyGoalTurns = 4
)

// detectProposeConstraint finds user constraint proposals. Each of the three
// deontic families (hard, soft, goal) contributes at most one move.
func detectProposeConstraint(text string) []core.Move {
	var out []core.Move
	for _, family := range []textmatch.PatternSet{constraintHard, constraintSoft, constraintGoal} {
		start, end, ok := family.FirstMatch(text)
		if !ok {
			continue
		}
		out = append(out, core.Move{
			Type:       core.MoveProposeConstraint,
			TextSpan:   textmatch.Span(text, start, end, 20, 40, maxSpanLen),
			Confidence: 0.85,
			Method:     core.MethodPattern,
			Actor:      core.RoleUser,
		})
	}
	return out
}

// detectStateGoal finds a user goal statement, at most one per turn.
func detectStateGoal(text string, turnIndex int) []core.Move {
	start, end, ok := constraintGoal.FirstMatch(text)
	if !ok {
		return nil
	}
	confidence := 0.7
	if turnIndex < earlyGoalTurns {
		confidence = 0.9
	}
	return []core.Move{{
		Type:       core.MoveStateGoal,
		TextSpan:   textmatch.Span(text, start, end, 10, 60, maxSpanLen),
		Confidence: confidence,
		Method:     core.MethodPattern,
		Actor:      core.RoleUser,
	}}
}

// detectRepairInitiate finds the user pushing back on prior output.
func detectRepairInitiate(text string) []core.Move {
	start, end, ok := repairMarkers.FirstMatch(text)
	if !ok {
		return nil
	}
	return []core.Move{{
		Type:       core.MoveRepairInitiate,
		TextSpan:   textmatch.Span(text, start, end, 10, 40, maxSpanLen),
		Confidence: 0.9,
		Method:     core.MethodPattern,
		Actor:      core.RoleUser,
	}}
}

// detectPassiveAccept matches short whole-message acknowledgements only.
func detectPassiveAccept(text string) []core.Move {
	stripped := strings.ToLower(strings.TrimSpace(text))
	if len(stripped) > passiveMaxLen {
		return nil
	}
	if !passivePatterns.AnyMatch(stripped) {
		return nil
	}
	return []core.Move{{
		Type:       core.MovePassiveAccept,
		TextSpan:   textmatch.Truncate(stripped, 60),
		Confidence: 0.95,
		Method:     core.MethodPattern,
		Actor:      core.RoleUser,
	}}
}

// detectAcceptConstraint finds the assistant acknowledging a requirement.
func detectAcceptConstraint(text string) []core.Move {
	start, end, ok := acceptPatterns.FirstMatch(text)
	if !ok {
		return nil
	}
	return []core.Move{{
		Type:       core.MoveAcceptConstraint,
		TextSpan:   textmatch.Span(text, start, end, 10, 40, maxSpanLen),
		Confidence: 0.8,
		Method:     core.MethodPattern,
		Actor:      core.RoleAssistant,
	}}
}

// detectRepairExecute finds the assistant acknowledging and fixing an error.
// Callers gate this on a pending user repair initiation.
func detectRepairExecute(text string) []core.Move {
	start, end, ok := repairExecutePatterns.FirstMatch(text)
	if !ok {
		return nil
	}
	return []core.Move{{
		Type:       core.MoveRepairExecute,
		TextSpan:   textmatch.Span(text, start, end, 10, 40, maxSpanLen),
		Confidence: 0.85,
		Method:     core.MethodPattern,
		Actor:      core.RoleAssistant,
	}}
}

// detectRequestClarification finds the assistant asking for more input.
func detectRequestClarification(text string) []core.Move {
	start, end, ok := clarificationPatterns.FirstMatch(text)
	if !ok {
		return nil
	}
	return []core.Move{{
		Type:       core.MoveRequestClarification,
		TextSpan:   textmatch.Span(text, start, end, 10, 40, maxSpanLen),
		Confidence: 0.85,
		Method:     core.MethodPattern,
		Actor:      core.RoleAssistant,
	}}
}

// inferRatification: the assistant accepted a constraint last turn and the
// user's current turn raises no repair, so the user implicitly ratified.
func inferRatification(prevMoves, currentMoves []core.Move) *core.Move {
	prevHadAccept := false
	for _, m := range prevMoves {
		if m.Type == core.MoveAcceptConstraint {
			prevHadAccept = true
			break
		}
	}
	if !prevHadAccept {
		return nil
	}
	for _, m := range currentMoves {
		if m.Type == core.MoveRepairInitiate {
			return nil
		}
	}
	return &core.Move{
		Type:       core.MoveRatifyConstraint,
		TextSpan:   "[implicit: no objection after acceptance]",
		Confidence: 0.7,
		Method:     core.MethodInferred,
		Actor:      core.RoleUser,
	}
}

// inferAbandon: passive acceptance right after a violation means the user
// gave up on the breached constraint.
func inferAbandon(currentMoves []core.Move, prevHadViolation bool) *core.Move {
	if !prevHadViolation {
		return nil
	}
	for _, m := range currentMoves {
		if m.Type == core.MovePassiveAccept {
			return &core.Move{
				Type:       core.MoveAbandonConstraint,
				TextSpan:   "[passive acceptance after violation]",
				Confidence: 0.75,
				Method:     core.MethodInferred,
				Actor:      core.RoleUser,
			}
		}
	}
	return nil
}

// inferProvideInformation: a substantive user reply to a clarification
// request that is neither a repair nor a passive acknowledgement.
func inferProvideInformation(currentMoves []core.Move, prevHadClarification bool) *core.Move {
	if !prevHadClarification {
		return nil
	}
	for _, m := range currentMoves {
		if m.Type == core.MoveRepairInitiate || m.Type == core.MovePassiveAccept {
			return nil
		}
	}
	return &core.Move{
		Type:       core.MoveProvideInformation,
		TextSpan:   "[response to clarification request]",
		Confidence: 0.7,
		Method:     core.MethodInferred,
		Actor:      core.RoleUser,
	}
}

// defaultAssistantMove assigns GENERATE_OUTPUT to a substantial assistant
// turn that earned no other move.
func defaultAssistantMove(currentMoves []core.Move, text string) *core.Move {
	if len(currentMoves) > 0 {
		return nil
	}
	if len(strings.TrimSpace(text)) <= defaultOutputMinLen {
		return nil
	}
	return &core.Move{
		Type:       core.MoveGenerateOutput,
		TextSpan:   strings.TrimSpace(textmatch.Truncate(text, 80)) + "...",
		Confidence: 0.6,
		Method:     core.MethodInferred,
		Actor:      core.RoleAssistant,
	}
}
