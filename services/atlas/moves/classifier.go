// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package moves classifies conversation turns into communicative moves.
// Deterministic pattern detectors run first, context-inferred moves next,
// and an optional semantic classifier handles the two judgments patterns
// cannot make: constraint violations and task shifts.
package moves

import (
	"context"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/llm"
)

// Classifier annotates conversation turns with moves. A nil Client runs
// the deterministic detectors only.
type Classifier struct {
	Client llm.Classifier
}

// Classify annotates every message with its moves, in turn order. Turns
// whose role is neither user nor assistant receive an empty move list and
// break the cross-turn inference chain.
func (cl *Classifier) Classify(ctx context.Context, messages []core.Message, classification core.Classification) ([]core.AnnotatedTurn, error) {
	annotated := make([]core.AnnotatedTurn, 0, len(messages))

	var prevMoves []core.Move
	prevHadViolation := false
	prevHadClarification := false
	// Gates REPAIR_EXECUTE: only fires after a user REPAIR_INITIATE.
	repairInitiated := false

	for i, msg := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if msg.Role != core.RoleUser && msg.Role != core.RoleAssistant {
			annotated = append(annotated, core.AnnotatedTurn{
				Index:   i,
				Role:    msg.Role,
				Content: msg.Content,
				Moves:   []core.Move{},
			})
			prevMoves = nil
			continue
		}

		var turnMoves []core.Move

		switch msg.Role {
		case core.RoleUser:
			turnMoves = append(turnMoves, detectProposeConstraint(msg.Content)...)
			turnMoves = append(turnMoves, detectStateGoal(msg.Content, i)...)
			turnMoves = append(turnMoves, detectRepairInitiate(msg.Content)...)
			turnMoves = append(turnMoves, detectPassiveAccept(msg.Content)...)

			if m := inferRatification(prevMoves, turnMoves); m != nil {
				turnMoves = append(turnMoves, *m)
			}
			if m := inferAbandon(turnMoves, prevHadViolation); m != nil {
				turnMoves = append(turnMoves, *m)
			}
			if m := inferProvideInformation(turnMoves, prevHadClarification); m != nil {
				turnMoves = append(turnMoves, *m)
			}

			for _, m := range turnMoves {
				if m.Type == core.MoveRepairInitiate {
					repairInitiated = true
					break
				}
			}

			if m := detectTaskShift(ctx, cl.Client, msg.Content, classification.TaskGoal); m != nil {
				turnMoves = append(turnMoves, *m)
			}

		case core.RoleAssistant:
			turnMoves = append(turnMoves, detectAcceptConstraint(msg.Content)...)
			if repairInitiated {
				fixes := detectRepairExecute(msg.Content)
				turnMoves = append(turnMoves, fixes...)
				if len(fixes) > 0 {
					repairInitiated = false
				}
			}
			turnMoves = append(turnMoves, detectRequestClarification(msg.Content)...)

			turnMoves = append(turnMoves, detectViolations(ctx, cl.Client, msg.Content, classification.PrimaryConstraints)...)

			if m := defaultAssistantMove(turnMoves, msg.Content); m != nil {
				turnMoves = append(turnMoves, *m)
			}
		}

		turnMoves = dedupe(turnMoves)

		prevHadViolation = hasType(turnMoves, core.MoveViolateConstraint)
		prevHadClarification = hasType(turnMoves, core.MoveRequestClarification)
		prevMoves = turnMoves

		annotated = append(annotated, core.AnnotatedTurn{
			Index:   i,
			Role:    msg.Role,
			Content: msg.Content,
			Moves:   turnMoves,
		})
	}

	return annotated, nil
}

type pluralKey struct {
	typ  core.MoveType
	span string
}

// dedupe collapses duplicates within a turn: singular move types keep one
// move per type, the rest one per (type, span) pair. On a collision the
// higher confidence wins. Output order is first-encounter order, singular
// winners before plural winners, so repeated runs over the same input
// produce identical annotations.
func dedupe(in []core.Move) []core.Move {
	if len(in) <= 1 {
		return in
	}

	var singularOrder []core.MoveType
	singular := make(map[core.MoveType]core.Move)
	var pluralOrder []pluralKey
	plural := make(map[pluralKey]core.Move)

	for _, m := range in {
		if m.Type.Singular() {
			if prev, ok := singular[m.Type]; !ok {
				singularOrder = append(singularOrder, m.Type)
				singular[m.Type] = m
			} else if m.Confidence > prev.Confidence {
				singular[m.Type] = m
			}
			continue
		}
		key := pluralKey{typ: m.Type, span: m.TextSpan}
		if prev, ok := plural[key]; !ok {
			pluralOrder = append(pluralOrder, key)
			plural[key] = m
		} else if m.Confidence > prev.Confidence {
			plural[key] = m
		}
	}

	out := make([]core.Move, 0, len(singularOrder)+len(pluralOrder))
	for _, t := range singularOrder {
		out = append(out, singular[t])
	}
	for _, k := range pluralOrder {
		out = append(out, plural[k])
	}
	return out
}

func hasType(ms []core.Move, t core.MoveType) bool {
	for _, m := range ms {
		if m.Type == t {
			return true
		}
	}
	return false
}
