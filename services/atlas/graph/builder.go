// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/textmatch"
)

// Node ID constructors. Every node in a conversation's graph is namespaced
// by the conversation ID.
func conversationNodeID(convID string) string  { return "conv_" + convID }
func turnNodeID(convID string, t int) string   { return fmt.Sprintf("t_%s_%d", convID, t) }
func moveNodeID(convID string, t, s int) string {
	return fmt.Sprintf("m_%s_%d_%d", convID, t, s)
}
func constraintNodeID(convID, cid string) string { return fmt.Sprintf("c_%s_%s", convID, cid) }
func violationNodeID(convID string, i int) string {
	return fmt.Sprintf("v_%s_%d", convID, i)
}
func modeNodeID(convID string, t int) string { return fmt.Sprintf("mode_%s_%d", convID, t) }

// Build assembles the full diagnosis graph for one conversation from the
// three stage outputs plus the upstream classification, validates it
// against the node schemas, checks structural invariants, and freezes it.
func Build(
	conversationID string,
	turns []core.AnnotatedTurn,
	track *core.ConstraintTrack,
	modeAnnotations []core.ModeAnnotation,
	classification core.Classification,
) (*Graph, error) {
	g := New(conversationID)

	if err := addConversationNode(g, conversationID, len(turns), classification); err != nil {
		return nil, err
	}
	if err := addTurnNodes(g, conversationID, turns); err != nil {
		return nil, err
	}
	if err := addMoveNodes(g, conversationID, turns); err != nil {
		return nil, err
	}
	if err := addConstraintNodes(g, conversationID, track, turns); err != nil {
		return nil, err
	}
	nextViolation, err := addConstraintViolationEvents(g, conversationID, track, turns)
	if err != nil {
		return nil, err
	}
	if err := addModeNodes(g, conversationID, modeAnnotations); err != nil {
		return nil, err
	}
	if err := addModeViolationEvents(g, conversationID, modeAnnotations, nextViolation, turns); err != nil {
		return nil, err
	}
	if err := addRatificationEdges(g, conversationID, turns, track); err != nil {
		return nil, err
	}

	if err := Validate(g); err != nil {
		return nil, err
	}
	if err := checkInvariants(g, conversationID); err != nil {
		return nil, err
	}

	g.Freeze()
	return g, nil
}

func addConversationNode(g *Graph, convID string, totalTurns int, cls core.Classification) error {
	return g.AddNode(conversationNodeID(convID), NodeConversation, ConversationAttrs{
		ConvID:             convID,
		Source:             cls.Source,
		Domain:             cls.Domain,
		TotalTurns:         totalTurns,
		StabilityClass:     cls.StabilityClass,
		TaskArchitecture:   cls.TaskArchitecture,
		ConstraintHardness: cls.ConstraintHardness,
		TaskGoal:           textmatch.Truncate(cls.TaskGoal, 200),
	})
}

// addTurnNodes adds one Turn node per message, a CONTAINS edge from the
// conversation root, and a NEXT edge from each turn to its successor.
func addTurnNodes(g *Graph, convID string, turns []core.AnnotatedTurn) error {
	convNode := conversationNodeID(convID)
	prev := ""

	for _, turn := range turns {
		id := turnNodeID(convID, turn.Index)
		if err := g.AddNode(id, NodeTurn, TurnAttrs{
			TurnIndex:      turn.Index,
			Role:           turn.Role,
			ContentLength:  len(turn.Content),
			ContentPreview: strings.Join(strings.Fields(textmatch.Truncate(turn.Content, 120)), " "),
			MoveCount:      len(turn.Moves),
		}); err != nil {
			return err
		}
		if err := g.AddEdge(convNode, id, EdgeContains, map[string]any{"order": turn.Index}); err != nil {
			return err
		}
		if prev != "" {
			if err := g.AddEdge(prev, id, EdgeNext, map[string]any{"order": turn.Index}); err != nil {
				return err
			}
		}
		prev = id
	}
	return nil
}

// addMoveNodes adds one Move node per classified move with a HAS_MOVE edge
// from its parent turn, keyed by within-turn sequence.
func addMoveNodes(g *Graph, convID string, turns []core.AnnotatedTurn) error {
	for _, turn := range turns {
		parent := turnNodeID(convID, turn.Index)
		for seq, move := range turn.Moves {
			stored := move
			stored.TextSpan = textmatch.Truncate(move.TextSpan, 120)
			id := moveNodeID(convID, turn.Index, seq)
			if err := g.AddNode(id, NodeMove, stored); err != nil {
				return err
			}
			if err := g.AddEdge(parent, id, EdgeHasMove, map[string]any{"sequence": seq}); err != nil {
				return err
			}
		}
	}
	return nil
}

// addConstraintNodes adds one Constraint node per tracked constraint, an
// INTRODUCES edge from each PROPOSE_CONSTRAINT move in the introduction
// turn, and an ABANDONS edge from the abandoning move where applicable.
func addConstraintNodes(g *Graph, convID string, track *core.ConstraintTrack, turns []core.AnnotatedTurn) error {
	if track == nil {
		return nil
	}
	for _, c := range track.Constraints {
		cNode := constraintNodeID(convID, c.ID)
		if err := g.AddNode(cNode, NodeConstraint, ConstraintAttrs{
			ConstraintID:  c.ID,
			Text:          textmatch.Truncate(c.Text, 200),
			Hardness:      c.Hardness,
			CurrentState:  c.CurrentState,
			StateHistory:  c.History,
			IntroducedAt:  c.IntroducedAt,
			TimesViolated: c.TimesViolated,
			TimesRepaired: c.TimesRepaired,
			Lifespan:      c.Lifespan,
		}); err != nil {
			return err
		}

		for _, turn := range turns {
			if turn.Index != c.IntroducedAt {
				continue
			}
			for seq, move := range turn.Moves {
				if move.Type != core.MoveProposeConstraint {
					continue
				}
				mNode := moveNodeID(convID, turn.Index, seq)
				if g.HasNode(mNode) {
					if err := g.AddEdge(mNode, cNode, EdgeIntroduces, nil); err != nil {
						return err
					}
				}
			}
			break
		}

		for _, entry := range c.History {
			if entry.State != core.StateAbandoned {
				continue
			}
			if err := linkAbandoningMove(g, convID, cNode, entry.Turn, turns); err != nil {
				return err
			}
		}
	}
	return nil
}

// linkAbandoningMove finds the first ABANDON_CONSTRAINT move in the given
// turn and draws the ABANDONS edge from it.
func linkAbandoningMove(g *Graph, convID, cNode string, turnIndex int, turns []core.AnnotatedTurn) error {
	for _, turn := range turns {
		if turn.Index != turnIndex {
			continue
		}
		for seq, move := range turn.Moves {
			if move.Type != core.MoveAbandonConstraint {
				continue
			}
			mNode := moveNodeID(convID, turnIndex, seq)
			if g.HasNode(mNode) {
				if err := g.AddEdge(mNode, cNode, EdgeAbandons, nil); err != nil {
					return err
				}
			}
			return nil
		}
		return nil
	}
	return nil
}

// addConstraintViolationEvents materializes every VIOLATED entry in every
// constraint's history as a ViolationEvent node, with a TRIGGERS edge from
// the violating turn, a VIOLATES edge to the constraint, and a REPAIRS
// edge from the first subsequent repair turn when the breach was repaired.
// Returns the next free violation index.
func addConstraintViolationEvents(g *Graph, convID string, track *core.ConstraintTrack, turns []core.AnnotatedTurn) (int, error) {
	violationIdx := 0
	if track == nil {
		return 0, nil
	}

	for _, c := range track.Constraints {
		cNode := constraintNodeID(convID, c.ID)
		ordinal := 0

		for _, entry := range c.History {
			if entry.State != core.StateViolated {
				continue
			}
			ordinal++

			wasRepaired := false
			for _, later := range c.History {
				if later.Turn > entry.Turn &&
					(later.State == core.StateRepaired || later.State == core.StateActive) {
					wasRepaired = true
					break
				}
			}

			veNode := violationNodeID(convID, violationIdx)
			if err := g.AddNode(veNode, NodeViolationEvent, ViolationAttrs{
				ViolationEvent: core.ViolationEvent{
					Index:         violationIdx,
					TurnIndex:     entry.Turn,
					ConstraintID:  c.ID,
					ViolationType: core.ConstraintViolationType,
					WasRepaired:   wasRepaired,
					Ordinal:       ordinal,
				},
			}); err != nil {
				return 0, err
			}
			violationIdx++

			if tNode := turnNodeID(convID, entry.Turn); g.HasNode(tNode) {
				if err := g.AddEdge(tNode, veNode, EdgeTriggers, nil); err != nil {
					return 0, err
				}
			}
			if g.HasNode(cNode) {
				if err := g.AddEdge(veNode, cNode, EdgeViolates, map[string]any{
					"violation_ord": ordinal,
					"at_turn":       entry.Turn,
				}); err != nil {
					return 0, err
				}
			}

			if wasRepaired {
				if err := linkRepairTurn(g, convID, veNode, entry.Turn, turns); err != nil {
					return 0, err
				}
			}
		}
	}
	return violationIdx, nil
}

// linkRepairTurn draws a REPAIRS edge from the first turn after the breach
// that carries a repair move.
func linkRepairTurn(g *Graph, convID, veNode string, violatedAt int, turns []core.AnnotatedTurn) error {
	for _, turn := range turns {
		if turn.Index <= violatedAt {
			continue
		}
		if !turn.HasMove(core.MoveRepairInitiate) && !turn.HasMove(core.MoveRepairExecute) {
			continue
		}
		if tNode := turnNodeID(convID, turn.Index); g.HasNode(tNode) {
			return g.AddEdge(tNode, veNode, EdgeRepairs, nil)
		}
		return nil
	}
	return nil
}

// addModeNodes adds one InteractionMode node per turn-pair annotation with
// OPERATES_IN edges from both turns of the pair.
func addModeNodes(g *Graph, convID string, annotations []core.ModeAnnotation) error {
	for _, ann := range annotations {
		id := modeNodeID(convID, ann.TurnIndex)
		if err := g.AddNode(id, NodeInteractionMode, ann); err != nil {
			return err
		}
		if userTurn := turnNodeID(convID, ann.TurnIndex); g.HasNode(userTurn) {
			if err := g.AddEdge(userTurn, id, EdgeOperatesIn, nil); err != nil {
				return err
			}
		}
		if aiTurn := turnNodeID(convID, ann.TurnIndex+1); g.HasNode(aiTurn) {
			if err := g.AddEdge(aiTurn, id, EdgeOperatesIn, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// addModeViolationEvents adds a ViolationEvent node for each named mode
// breach. The triggering turn is the first assistant turn after the pair's
// user turn. Mode breaches carry ConstraintID "mode" and never track
// repair.
func addModeViolationEvents(g *Graph, convID string, annotations []core.ModeAnnotation, startIdx int, turns []core.AnnotatedTurn) error {
	idx := startIdx
	for _, ann := range annotations {
		if ann.ViolationKind == "" {
			continue
		}

		veNode := violationNodeID(convID, idx)
		if err := g.AddNode(veNode, NodeViolationEvent, ViolationAttrs{
			ViolationEvent: core.ViolationEvent{
				Index:         idx,
				TurnIndex:     ann.TurnIndex,
				ConstraintID:  "mode",
				ViolationType: string(ann.ViolationKind),
				WasRepaired:   false,
				Ordinal:       1,
			},
			UserRequested: ann.UserRequested,
			AIEnacted:     ann.AIEnacted,
			Confidence:    ann.Confidence,
			Method:        ann.Method,
		}); err != nil {
			return err
		}
		idx++

		for _, turn := range turns {
			if turn.Index <= ann.TurnIndex || turn.Role != core.RoleAssistant {
				continue
			}
			if tNode := turnNodeID(convID, turn.Index); g.HasNode(tNode) {
				if err := g.AddEdge(tNode, veNode, EdgeTriggers, nil); err != nil {
					return err
				}
			}
			break
		}
	}
	return nil
}

// addRatificationEdges links every ratifying or accepting move to each
// constraint that was still ratifiable (STATED or ACTIVE) at that turn.
func addRatificationEdges(g *Graph, convID string, turns []core.AnnotatedTurn, track *core.ConstraintTrack) error {
	if track == nil {
		return nil
	}
	for _, turn := range turns {
		for seq, move := range turn.Moves {
			if move.Type != core.MoveRatifyConstraint && move.Type != core.MoveAcceptConstraint {
				continue
			}
			mNode := moveNodeID(convID, turn.Index, seq)
			if !g.HasNode(mNode) {
				continue
			}
			for _, c := range track.Constraints {
				cNode := constraintNodeID(convID, c.ID)
				if !g.HasNode(cNode) {
					continue
				}
				if s := c.StateAt(turn.Index); s == core.StateStated || s == core.StateActive {
					if err := g.AddEdge(mNode, cNode, EdgeRatifies, nil); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// checkInvariants verifies the structural guarantees downstream consumers
// rely on. Violations come back as errors, never panics.
func checkInvariants(g *Graph, convID string) error {
	convNode := conversationNodeID(convID)
	if !g.HasNode(convNode) {
		return fmt.Errorf("%w: missing root conversation node %s", ErrInvariantViolated, convNode)
	}

	for _, n := range g.NodesOfType(NodeTurn) {
		contained := false
		for _, e := range g.InEdges(n.ID, EdgeContains) {
			if e.From == convNode {
				contained = true
				break
			}
		}
		if !contained {
			return fmt.Errorf("%w: turn %s not contained by %s", ErrInvariantViolated, n.ID, convNode)
		}
	}

	for _, n := range g.NodesOfType(NodeMove) {
		if len(g.InEdges(n.ID, EdgeHasMove)) == 0 {
			return fmt.Errorf("%w: move %s has no parent turn", ErrInvariantViolated, n.ID)
		}
	}

	for _, n := range g.NodesOfType(NodeViolationEvent) {
		attrs, ok := n.Attrs.(ViolationAttrs)
		if !ok {
			return fmt.Errorf("%w: violation event %s has wrong payload type", ErrInvariantViolated, n.ID)
		}
		if attrs.ConstraintID != "mode" && len(g.OutEdges(n.ID, EdgeViolates)) == 0 {
			return fmt.Errorf("%w: violation event %s violates nothing", ErrInvariantViolated, n.ID)
		}
		if len(g.InEdges(n.ID, EdgeTriggers)) == 0 {
			return fmt.Errorf("%w: violation event %s has no triggering turn", ErrInvariantViolated, n.ID)
		}
	}
	return nil
}
