// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/graph"
)

// buildFixture assembles a six-turn conversation graph with one repaired
// constraint violation and one mode violation.
func buildFixture(t *testing.T) *graph.Graph {
	t.Helper()

	turns := []core.AnnotatedTurn{
		{Index: 0, Role: core.RoleUser, Content: "My goal is a report. It must be under 500 words.", Moves: []core.Move{
			{Type: core.MoveStateGoal, TextSpan: "goal is a report", Confidence: 0.9, Method: core.MethodPattern, Actor: core.RoleUser},
			{Type: core.MoveProposeConstraint, TextSpan: "must be under 500 words", Confidence: 0.85, Method: core.MethodPattern, Actor: core.RoleUser},
		}},
		{Index: 1, Role: core.RoleAssistant, Content: "Understood, under 500 words.", Moves: []core.Move{
			{Type: core.MoveAcceptConstraint, TextSpan: "understood", Confidence: 0.8, Method: core.MethodPattern, Actor: core.RoleAssistant},
		}},
		{Index: 2, Role: core.RoleUser, Content: "Which structure would you recommend?", Moves: []core.Move{}},
		{Index: 3, Role: core.RoleAssistant, Content: "Here is a 900 word draft.", Moves: []core.Move{
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
	track := &core.ConstraintTrack{ConversationID: "conv1", Constraints: []*core.Constraint{c}}

	anns := []core.ModeAnnotation{
		{TurnIndex: 2, UserRequested: core.ModeAdvisor, AIEnacted: core.ModeExecutor,
			IsViolation: true, ViolationKind: core.ViolationPrematureExecution,
			Confidence: 0.8, Method: core.MethodPattern},
		{TurnIndex: 4, UserRequested: core.ModeExecutor, AIEnacted: core.ModeExecutor,
			Confidence: 0.85, Method: core.MethodPattern},
	}

	g, err := graph.Build("conv1", turns, track, anns, core.Classification{
		TaskGoal:           "write a report",
		PrimaryConstraints: []string{"must be under 500 words"},
		StabilityClass:     "stable",
		TaskArchitecture:   "single_deliverable",
		ConstraintHardness: "hard",
	})
	require.NoError(t, err)
	return g
}

func TestComputeFixture(t *testing.T) {
	g := buildFixture(t)
	m := Compute(g)

	assert.Equal(t, "conv1", m.ConversationID)
	assert.Equal(t, "stable", m.StabilityClass)
	assert.Equal(t, "single_deliverable", m.TaskArchitecture)
	assert.Equal(t, "hard", m.ConstraintHardness)

	assert.Equal(t, 6, m.TotalTurns)
	assert.Equal(t, 2, m.TotalViolations)
	assert.Equal(t, 1, m.TotalConstraints)
	// Repair totals count initiations only.
	assert.Equal(t, 1, m.TotalRepairs)

	// One VIOLATES edge over six turns.
	assert.Equal(t, 0.1667, m.DriftVelocity)
	// Two repair moves over two violation events.
	assert.Equal(t, 1.0, m.AgencyTax)
	// Violated at turn 3, introduced at 0.
	require.NotNil(t, m.ConstraintHalfLife)
	assert.Equal(t, 3.0, *m.ConstraintHalfLife)
	assert.Equal(t, 1.0, m.ConstraintSurvivalRate)
	// One violating pair of two.
	assert.Equal(t, 0.5, m.ModeViolationRate)
	// The single constraint violation was repaired.
	assert.Equal(t, 1.0, m.RepairSuccessRate)
	assert.Equal(t, 6.0, m.MeanConstraintLifespan)
	// Two requested modes, evenly split.
	assert.Equal(t, 1.0, m.ModeEntropy)
	// Five of six turns carry at least one move.
	assert.Equal(t, 0.8333, m.MoveCoverage)
}

func TestComputeEmptyGraph(t *testing.T) {
	g, err := graph.Build("empty", nil, &core.ConstraintTrack{ConversationID: "empty"}, nil, core.Classification{})
	require.NoError(t, err)

	m := Compute(g)
	assert.Equal(t, 0.0, m.DriftVelocity)
	assert.Equal(t, 0.0, m.AgencyTax)
	assert.Nil(t, m.ConstraintHalfLife)
	assert.Equal(t, 0.0, m.ConstraintSurvivalRate)
	assert.Equal(t, 0.0, m.ModeViolationRate)
	assert.Equal(t, 0.0, m.RepairSuccessRate)
	assert.Equal(t, 0.0, m.MeanConstraintLifespan)
	assert.Equal(t, 0.0, m.ModeEntropy)
	assert.Equal(t, 0.0, m.MoveCoverage)
	assert.Equal(t, 0, m.TotalTurns)
}

func TestHalfLifeMedian(t *testing.T) {
	assert.Equal(t, 3.0, median([]float64{3}))
	assert.Equal(t, 2.5, median([]float64{1, 4, 2, 3}))
	assert.Equal(t, 2.0, median([]float64{4, 1, 2}))
}

func halfLife(v float64) *float64 { return &v }

func TestAggregate(t *testing.T) {
	all := []core.ConversationMetrics{
		{ConversationID: "a", DriftVelocity: 0.2, AgencyTax: 1.0, ConstraintHalfLife: halfLife(2),
			ConstraintSurvivalRate: 1.0, StabilityClass: "stable", TaskArchitecture: "single_deliverable",
			ConstraintHardness: "hard", TotalViolations: 2, TotalRepairs: 1, TotalConstraints: 1},
		{ConversationID: "b", DriftVelocity: 0.4, AgencyTax: 0.5,
			ConstraintSurvivalRate: 0.5, StabilityClass: "drifting", TaskArchitecture: "single_deliverable",
			TotalViolations: 4, TotalRepairs: 2, TotalConstraints: 2},
	}

	agg := Aggregate(all)
	assert.Equal(t, 2, agg.Total)
	assert.Equal(t, 2, agg.Overall.N)
	assert.InDelta(t, 0.3, agg.Overall.MeanDriftVelocity, 1e-9)
	assert.InDelta(t, 0.75, agg.Overall.MeanAgencyTax, 1e-9)
	// Only conversation "a" has a half-life, so the mean skips "b".
	require.NotNil(t, agg.Overall.MeanConstraintHalfLife)
	assert.Equal(t, 2.0, *agg.Overall.MeanConstraintHalfLife)
	assert.Equal(t, 6, agg.Overall.TotalViolations)
	assert.Equal(t, 3, agg.Overall.TotalRepairs)

	assert.Len(t, agg.ByStabilityClass, 2)
	assert.Equal(t, 1, agg.ByStabilityClass["stable"].N)
	assert.Equal(t, 1, agg.ByStabilityClass["drifting"].N)
	assert.Equal(t, 2, agg.ByArchitecture["single_deliverable"].N)
	// Unlabeled hardness lands in Unknown.
	assert.Equal(t, 1, agg.ByHardness["Unknown"].N)
	assert.Equal(t, 1, agg.ByHardness["hard"].N)
}

func TestAggregateEmpty(t *testing.T) {
	agg := Aggregate(nil)
	assert.Equal(t, 0, agg.Total)
	assert.Equal(t, 0, agg.Overall.N)
	assert.Nil(t, agg.Overall.MeanConstraintHalfLife)
}

func TestReport(t *testing.T) {
	g := buildFixture(t)
	report := Report([]core.ConversationMetrics{Compute(g)})

	assert.Contains(t, report, "# Atlas Graph Metrics Report")
	assert.Contains(t, report, "**Conversations Analyzed:** 1")
	assert.Contains(t, report, "## Overall Metrics")
	assert.Contains(t, report, "## By Task Stability Class")
	assert.Contains(t, report, "## By Task Architecture")
	assert.Contains(t, report, "## By Constraint Hardness")
	assert.Contains(t, report, "| stable | 1 |")
	assert.Contains(t, report, "| Drift Velocity (violations/turn) | 0.1667 |")
}

func TestReportNoHalfLife(t *testing.T) {
	report := Report([]core.ConversationMetrics{{ConversationID: "x"}})
	assert.Contains(t, report, "| Constraint Half-Life (turns) | N/A |")
}
