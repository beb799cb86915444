// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package constraints runs the constraint lifecycle state machine over a
// move-annotated conversation.
//
// Constraints are seeded from the upstream classification, auto-activated
// when introduced early, advanced turn by turn from the moves, and
// finalized as SURVIVED when the conversation ends with them intact.
package constraints

import (
	"fmt"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/textmatch"
)

// Hardness indicator families. The family with the most pattern hits wins;
// ties resolve hard over goal over soft.
var (
	hardIndicators = textmatch.MustCompile(
		`\b(must|need to|require|only|never|always)\b`,
		`\b(no more than|at least|maximum|minimum|exactly)\b`,
		`\b(cannot|can't|won't|will not)\b`,
		`\$[\d,]+|\d+\s*(hours|days|dollars|percent|%)`,
	)
	softIndicators = textmatch.MustCompile(
		`\b(prefer|ideally|if possible|would like|hope)\b`,
		`\b(rather|better if|nice to have)\b`,
	)
	goalIndicators = textmatch.MustCompile(
		`\b(goal|objective|aim|target|trying to|want to|looking for)\b`,
	)
)

// Default matching thresholds. Empirically chosen; overridable per
// Tracker.
const (
	// DefaultRepairThreshold is the Jaccard floor for tying a repair
	// initiation to a specific violated constraint.
	DefaultRepairThreshold = 0.15

	// DefaultViolationJaccard is the Jaccard floor when direct token
	// overlap fails to tie a violation span to a constraint.
	DefaultViolationJaccard = 0.1

	// DefaultViolationOverlap: a violation span matches a constraint
	// directly when this fraction of the constraint's tokens appear in it.
	DefaultViolationOverlap = 0.4

	// autoActivateTurn: constraints introduced at or before this turn are
	// activated immediately, without waiting for explicit acceptance.
	autoActivateTurn = 2
)

// ClassifyHardness classifies a constraint as hard, soft, or goal from its
// wording.
func ClassifyHardness(text string) core.Hardness {
	hard := hardIndicators.CountMatches(text)
	soft := softIndicators.CountMatches(text)
	goal := goalIndicators.CountMatches(text)

	switch {
	case hard >= soft && hard >= goal:
		return core.HardnessHard
	case goal >= soft:
		return core.HardnessGoal
	default:
		return core.HardnessSoft
	}
}

// Seed builds the initial constraint set from the upstream classification.
// Constraint i is introduced at evidence.ConstraintTurns[i], or turn 0 when
// the evidence list is shorter than the constraint list.
func Seed(primaryConstraints []string, evidence core.Evidence) []*core.Constraint {
	out := make([]*core.Constraint, 0, len(primaryConstraints))
	for i, text := range primaryConstraints {
		introducedAt := 0
		if i < len(evidence.ConstraintTurns) {
			introducedAt = evidence.ConstraintTurns[i]
		}
		out = append(out, core.NewConstraint(
			fmt.Sprintf("c_%d", i), text, ClassifyHardness(text), introducedAt,
		))
	}
	return out
}

// matchMove finds the constraint whose text is most Jaccard-similar to the
// move span, requiring at least threshold. Ties keep the earliest
// constraint in list order. Returns "" when nothing clears the threshold.
func matchMove(span string, candidates []*core.Constraint, threshold float64) string {
	bestID := ""
	bestScore := 0.0
	for _, c := range candidates {
		if score := textmatch.Jaccard(span, c.Text); score > bestScore {
			bestScore = score
			bestID = c.ID
		}
	}
	if bestScore >= threshold {
		return bestID
	}
	return ""
}

// Tracker advances constraint state machines over an annotated
// conversation. Zero-value threshold fields fall back to the defaults.
type Tracker struct {
	// RepairThreshold ties a repair initiation to a violated constraint.
	RepairThreshold float64

	// ViolationJaccard is the fallback floor for violation matching.
	ViolationJaccard float64

	// ViolationOverlap is the direct token-overlap floor for violation
	// matching.
	ViolationOverlap float64
}

func (t Tracker) repairThreshold() float64 {
	if t.RepairThreshold > 0 {
		return t.RepairThreshold
	}
	return DefaultRepairThreshold
}

func (t Tracker) violationJaccard() float64 {
	if t.ViolationJaccard > 0 {
		return t.ViolationJaccard
	}
	return DefaultViolationJaccard
}

func (t Tracker) violationOverlap() float64 {
	if t.ViolationOverlap > 0 {
		return t.ViolationOverlap
	}
	return DefaultViolationOverlap
}

// matchViolation ties a violation span to a constraint. Classifier spans
// usually quote the constraint text, so direct token overlap is tried
// first; Jaccard similarity is the fallback.
func (t Tracker) matchViolation(span string, candidates []*core.Constraint) string {
	for _, c := range candidates {
		tokens := textmatch.Tokens(c.Text)
		if len(tokens) < 2 {
			continue
		}
		if textmatch.TokenOverlap(c.Text, span) >= t.violationOverlap() {
			return c.ID
		}
	}
	return matchMove(span, candidates, t.violationJaccard())
}

// Track runs the full lifecycle: seed, auto-activate, advance per turn,
// finalize. The returned track owns the constraints; annotated turns are
// read only.
func (t Tracker) Track(conversationID string, turns []core.AnnotatedTurn, classification core.Classification) *core.ConstraintTrack {
	constraints := Seed(classification.PrimaryConstraints, classification.Evidence)
	track := &core.ConstraintTrack{
		ConversationID: conversationID,
		Constraints:    constraints,
	}
	if len(constraints) == 0 {
		return track
	}

	// Constraints introduced in the opening turns are treated as accepted
	// even without an explicit acceptance move.
	for _, c := range constraints {
		if c.CurrentState == core.StateStated && c.IntroducedAt <= autoActivateTurn {
			c.Transition(c.IntroducedAt, core.StateActive)
		}
	}

	pending := make(map[string]bool)
	for _, turn := range turns {
		if len(turn.Moves) == 0 {
			continue
		}
		t.advance(constraints, turn.Index, turn.Moves, pending, track)
	}

	for _, c := range constraints {
		c.Finalize(len(turns))
	}
	return track
}

// advance applies one turn's moves to the state machines, in move order.
func (t Tracker) advance(constraints []*core.Constraint, turnIndex int, moves []core.Move, pending map[string]bool, track *core.ConstraintTrack) {
	byID := make(map[string]*core.Constraint, len(constraints))
	for _, c := range constraints {
		byID[c.ID] = c
	}

	for _, move := range moves {
		switch move.Type {
		case core.MoveAcceptConstraint, core.MoveRatifyConstraint:
			for _, c := range constraints {
				if c.CurrentState == core.StateStated {
					c.Transition(turnIndex, core.StateActive)
				}
			}

		case core.MoveViolateConstraint:
			var eligible []*core.Constraint
			for _, c := range constraints {
				if c.IntroducedAt <= turnIndex {
					eligible = append(eligible, c)
				}
			}
			targetID := t.matchViolation(move.TextSpan, eligible)
			if target, ok := byID[targetID]; ok {
				if target.CurrentState == core.StateActive || target.CurrentState == core.StateStated {
					target.Transition(turnIndex, core.StateViolated)
				}
			} else {
				track.UnmatchedViolations++
			}

		case core.MoveRepairInitiate:
			var violated []*core.Constraint
			for _, c := range constraints {
				if c.CurrentState == core.StateViolated {
					violated = append(violated, c)
				}
			}
			if targetID := matchMove(move.TextSpan, violated, t.repairThreshold()); targetID != "" {
				pending[targetID] = true
			} else {
				// No specific target: every violated constraint becomes a
				// repair candidate.
				for _, c := range violated {
					pending[c.ID] = true
				}
			}

		case core.MoveRepairExecute:
			repairedAny := false
			for _, c := range constraints {
				if pending[c.ID] && c.CurrentState == core.StateViolated {
					c.Transition(turnIndex, core.StateRepaired)
					repairedAny = true
				}
			}
			if repairedAny {
				for id := range pending {
					delete(pending, id)
				}
			}

		case core.MoveAbandonConstraint:
			for _, c := range constraints {
				if c.CurrentState == core.StateViolated {
					c.Transition(turnIndex, core.StateAbandoned)
					delete(pending, c.ID)
				}
			}
		}
	}
}
