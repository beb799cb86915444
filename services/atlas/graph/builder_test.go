// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacting93/Cartographer/services/atlas/core"
)

// fixture builds a six-turn conversation with one constraint that gets
// violated and repaired, plus one mode violation.
func fixture() ([]core.AnnotatedTurn, *core.ConstraintTrack, []core.ModeAnnotation, core.Classification) {
	turns := []core.AnnotatedTurn{
		{Index: 0, Role: core.RoleUser, Content: "My goal is a report. It must be under 500 words.", Moves: []core.Move{
			{Type: core.MoveStateGoal, TextSpan: "goal is a report", Confidence: 0.9, Method: core.MethodPattern, Actor: core.RoleUser},
			{Type: core.MoveProposeConstraint, TextSpan: "must be under 500 words", Confidence: 0.85, Method: core.MethodPattern, Actor: core.RoleUser},
		}},
		{Index: 1, Role: core.RoleAssistant, Content: "Understood, I understand you want under 500 words.", Moves: []core.Move{
			{Type: core.MoveAcceptConstraint, TextSpan: "understood", Confidence: 0.8, Method: core.MethodPattern, Actor: core.RoleAssistant},
		}},
		{Index: 2, Role: core.RoleUser, Content: "Which structure would you recommend for it?", Moves: []core.Move{}},
		{Index: 3, Role: core.RoleAssistant, Content: "Here is a 900 word draft with everything included.", Moves: []core.Move{
			{Type: core.MoveViolateConstraint, TextSpan: "[violates: must be under 500 words] too long", Confidence: 0.9, Method: core.MethodSemantic, Actor: core.RoleAssistant},
		}},
		{Index: 4, Role: core.RoleUser, Content: "I said under 500 words", Moves: []core.Move{
			{Type: core.MoveRepairInitiate, TextSpan: "i said under 500 words", Confidence: 0.9, Method: core.MethodPattern, Actor: core.RoleUser},
		}},
		{Index: 5, Role: core.RoleAssistant, Content: "You're right, here's the corrected version.", Moves: []core.Move{
			{Type: core.MoveRepairExecute, TextSpan: "you're right", Confidence: 0.85, Method: core.MethodPattern, Actor: core.RoleAssistant},
		}},
	}

	c := core.NewConstraint("c_0", "must be under 500 words", core.HardnessHard, 0)
	c.Transition(0, core.StateActive)
	c.Transition(3, core.StateViolated)
	c.Transition(5, core.StateRepaired)
	c.Finalize(len(turns))

	track := &core.ConstraintTrack{
		ConversationID: "conv1",
		Constraints:    []*core.Constraint{c},
	}

	annotations := []core.ModeAnnotation{
		{TurnIndex: 2, UserRequested: core.ModeAdvisor, AIEnacted: core.ModeExecutor,
			IsViolation: true, ViolationKind: core.ViolationPrematureExecution,
			Confidence: 0.8, Method: core.MethodPattern},
		{TurnIndex: 4, UserRequested: core.ModeExecutor, AIEnacted: core.ModeExecutor,
			Confidence: 0.85, Method: core.MethodPattern},
	}

	classification := core.Classification{
		TaskGoal:           "write a report",
		PrimaryConstraints: []string{"must be under 500 words"},
		StabilityClass:     "stable",
		TaskArchitecture:   "single_deliverable",
		ConstraintHardness: "hard",
		Source:             "test",
		Domain:             "writing",
	}
	return turns, track, annotations, classification
}

func TestBuildStructure(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)
	assert.True(t, g.Frozen())

	// 1 conversation + 6 turns + 6 moves + 1 constraint + 2 violation
	// events + 2 mode annotations.
	assert.Equal(t, 18, g.NodeCount())

	s := Summarize(g)
	assert.Equal(t, map[string]int{
		"Conversation":    1,
		"Turn":            6,
		"Move":            6,
		"Constraint":      1,
		"ViolationEvent":  2,
		"InteractionMode": 2,
	}, s.NodeTypes)
	assert.Equal(t, map[string]int{
		"CONTAINS":    6,
		"NEXT":        5,
		"HAS_MOVE":    6,
		"INTRODUCES":  1,
		"VIOLATES":    1,
		"TRIGGERS":    2,
		"REPAIRS":     1,
		"OPERATES_IN": 4,
		"RATIFIES":    1,
	}, s.EdgeTypes)
}

func TestBuildNodeIDs(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	for _, id := range []string{
		"conv_conv1", "t_conv1_0", "t_conv1_5", "m_conv1_0_0", "m_conv1_0_1",
		"c_conv1_c_0", "v_conv1_0", "v_conv1_1", "mode_conv1_2", "mode_conv1_4",
	} {
		assert.True(t, g.HasNode(id), "missing node %s", id)
	}
}

func TestConstraintViolationEvent(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	ve := g.Node("v_conv1_0")
	require.NotNil(t, ve)
	attrs, ok := ve.Attrs.(ViolationAttrs)
	require.True(t, ok)
	assert.Equal(t, 3, attrs.TurnIndex)
	assert.Equal(t, "c_0", attrs.ConstraintID)
	assert.Equal(t, core.ConstraintViolationType, attrs.ViolationType)
	assert.True(t, attrs.WasRepaired)
	assert.Equal(t, 1, attrs.Ordinal)

	// Triggered by the violating turn, repaired by the first repair turn
	// after it.
	triggers := g.InEdges("v_conv1_0", EdgeTriggers)
	require.Len(t, triggers, 1)
	assert.Equal(t, "t_conv1_3", triggers[0].From)

	repairs := g.InEdges("v_conv1_0", EdgeRepairs)
	require.Len(t, repairs, 1)
	assert.Equal(t, "t_conv1_4", repairs[0].From)

	violates := g.OutEdges("v_conv1_0", EdgeViolates)
	require.Len(t, violates, 1)
	assert.Equal(t, "c_conv1_c_0", violates[0].To)
	assert.Equal(t, 3, violates[0].Attrs["at_turn"])
}

func TestModeViolationEvent(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	ve := g.Node("v_conv1_1")
	require.NotNil(t, ve)
	attrs := ve.Attrs.(ViolationAttrs)
	assert.Equal(t, "mode", attrs.ConstraintID)
	assert.Equal(t, string(core.ViolationPrematureExecution), attrs.ViolationType)
	assert.False(t, attrs.WasRepaired)
	assert.Equal(t, core.ModeAdvisor, attrs.UserRequested)
	assert.Equal(t, core.ModeExecutor, attrs.AIEnacted)

	// Mode breaches carry no VIOLATES edge; they are triggered by the
	// assistant turn of the pair.
	assert.Empty(t, g.OutEdges("v_conv1_1", EdgeViolates))
	triggers := g.InEdges("v_conv1_1", EdgeTriggers)
	require.Len(t, triggers, 1)
	assert.Equal(t, "t_conv1_3", triggers[0].From)

	// The non-violating pair produced a mode node but no event.
	assert.False(t, g.HasNode("v_conv1_2"))
}

func TestIntroducesAndRatifies(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	intro := g.InEdges("c_conv1_c_0", EdgeIntroduces)
	require.Len(t, intro, 1)
	// The PROPOSE_CONSTRAINT move is the second move of turn 0.
	assert.Equal(t, "m_conv1_0_1", intro[0].From)

	ratifies := g.InEdges("c_conv1_c_0", EdgeRatifies)
	require.Len(t, ratifies, 1)
	assert.Equal(t, "m_conv1_1_0", ratifies[0].From)
}

func TestTurnPreviewAndOrdering(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	turn0 := g.Node("t_conv1_0")
	attrs := turn0.Attrs.(TurnAttrs)
	assert.Equal(t, core.RoleUser, attrs.Role)
	assert.Equal(t, len(turns[0].Content), attrs.ContentLength)
	assert.Equal(t, 2, attrs.MoveCount)
	assert.False(t, strings.Contains(attrs.ContentPreview, "\n"))

	next := g.OutEdges("t_conv1_0", EdgeNext)
	require.Len(t, next, 1)
	assert.Equal(t, "t_conv1_1", next[0].To)
	// The last turn has no successor.
	assert.Empty(t, g.OutEdges("t_conv1_5", EdgeNext))
}

func TestFrozenGraphRejectsMutation(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	assert.ErrorIs(t, g.AddNode("x", NodeTurn, TurnAttrs{Role: core.RoleUser}), ErrFrozen)
	assert.ErrorIs(t, g.AddEdge("conv_conv1", "t_conv1_0", EdgeContains, nil), ErrFrozen)
}

func TestAddEdgeRequiresEndpoints(t *testing.T) {
	g := New("c")
	require.NoError(t, g.AddNode("a", NodeTurn, TurnAttrs{Role: core.RoleUser}))
	assert.ErrorIs(t, g.AddEdge("a", "missing", EdgeNext, nil), ErrNodeNotFound)
	assert.ErrorIs(t, g.AddEdge("missing", "a", EdgeNext, nil), ErrNodeNotFound)
}

func TestDuplicateNodeRejected(t *testing.T) {
	g := New("c")
	require.NoError(t, g.AddNode("a", NodeTurn, TurnAttrs{Role: core.RoleUser}))
	assert.ErrorIs(t, g.AddNode("a", NodeTurn, TurnAttrs{Role: core.RoleUser}), ErrDuplicateNode)
}

func TestValidateCatchesBadPayload(t *testing.T) {
	g := New("c")
	// A turn node carrying the wrong payload type.
	require.NoError(t, g.AddNode("t_c_0", NodeTurn, ConversationAttrs{ConvID: "c"}))
	err := Validate(g)
	assert.ErrorIs(t, err, ErrSchemaInvalid)
}

func TestValidateCatchesConstraintViolations(t *testing.T) {
	g := New("c")
	// Confidence outside [0, 1].
	require.NoError(t, g.AddNode("m", NodeMove, core.Move{
		Type: core.MoveStateGoal, Confidence: 1.5, Method: core.MethodPattern, Actor: core.RoleUser,
	}))
	assert.ErrorIs(t, Validate(g), ErrSchemaInvalid)
}

func TestInvariantOrphanViolationEvent(t *testing.T) {
	g := New("c")
	require.NoError(t, g.AddNode("conv_c", NodeConversation, ConversationAttrs{ConvID: "c"}))
	require.NoError(t, g.AddNode("v_c_0", NodeViolationEvent, ViolationAttrs{
		ViolationEvent: core.ViolationEvent{ConstraintID: "mode", ViolationType: "x", Ordinal: 1},
	}))
	err := checkInvariants(g, "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvariantViolated)
	assert.Contains(t, err.Error(), "no triggering turn")
}

func TestNodeLinkExport(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	nl, err := ToNodeLink(g)
	require.NoError(t, err)
	assert.True(t, nl.Directed)
	assert.True(t, nl.Multigraph)
	assert.Len(t, nl.Nodes, g.NodeCount())
	assert.Len(t, nl.Links, g.EdgeCount())

	assert.Equal(t, "conv_conv1", nl.Nodes[0]["id"])
	assert.Equal(t, "Conversation", nl.Nodes[0]["node_type"])
	assert.Equal(t, "write a report", nl.Nodes[0]["task_goal"])

	// Parallel edges between the same pair get increasing keys.
	keys := make(map[string][]int)
	for _, link := range nl.Links {
		pair := link["source"].(string) + "|" + link["target"].(string)
		keys[pair] = append(keys[pair], link["key"].(int))
	}
	for pair, ks := range keys {
		for i, k := range ks {
			assert.Equal(t, i, k, "pair %s", pair)
		}
	}
}

func TestGEXFExport(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	out, err := MarshalGEXF(g)
	require.NoError(t, err)
	body := string(out)
	assert.Contains(t, body, "<?xml")
	assert.Contains(t, body, "gexf.net/1.2draft")
	assert.Contains(t, body, `node id="conv_conv1"`)
	assert.Contains(t, body, `label="CONTAINS"`)
	// Booleans come through as strings.
	assert.Contains(t, body, `value="True"`)
}

func TestMarshalJSONRoundTrips(t *testing.T) {
	turns, track, anns, cls := fixture()
	g, err := Build("conv1", turns, track, anns, cls)
	require.NoError(t, err)

	raw, err := MarshalJSON(g)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"directed": true`)
}
