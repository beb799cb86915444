// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package metrics derives the per-conversation diagnostic numbers from a
// built diagnosis graph, and aggregates them across conversations.
//
// All ratios are zero-safe: a graph with no constraints, violations or
// mode annotations yields zeros, never NaN. Constraint half-life is the
// one nullable metric; it is nil when no constraint was ever violated.
package metrics

import (
	"math"
	"sort"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/graph"
)

func round4(x float64) float64 { return math.Round(x*10000) / 10000 }
func round2(x float64) float64 { return math.Round(x*100) / 100 }

// DriftVelocity is the number of VIOLATES edges per turn.
func DriftVelocity(g *graph.Graph) float64 {
	turns := len(g.NodesOfType(graph.NodeTurn))
	violates := 0
	for _, e := range g.Edges() {
		if e.Type == graph.EdgeViolates {
			violates++
		}
	}
	if turns < 1 {
		turns = 1
	}
	return round4(float64(violates) / float64(turns))
}

// AgencyTax is the number of repair moves (initiations and executions) per
// violation event: how much corrective effort each breach cost.
func AgencyTax(g *graph.Graph) float64 {
	repairMoves := 0
	for _, n := range g.NodesOfType(graph.NodeMove) {
		if m, ok := n.Attrs.(core.Move); ok &&
			(m.Type == core.MoveRepairInitiate || m.Type == core.MoveRepairExecute) {
			repairMoves++
		}
	}
	events := len(g.NodesOfType(graph.NodeViolationEvent))
	if events == 0 {
		return 0.0
	}
	return round4(float64(repairMoves) / float64(events))
}

// ConstraintHalfLife is the median number of turns from a constraint's
// introduction to its first violation, across violated constraints only.
// Returns nil when no constraint was violated.
func ConstraintHalfLife(g *graph.Graph) *float64 {
	var lifetimes []float64

	for _, cn := range g.NodesOfType(graph.NodeConstraint) {
		attrs, ok := cn.Attrs.(graph.ConstraintAttrs)
		if !ok || attrs.TimesViolated == 0 {
			continue
		}

		firstViolation := -1
		for _, e := range g.InEdges(cn.ID, graph.EdgeViolates) {
			ve := g.Node(e.From)
			if ve == nil {
				continue
			}
			va, ok := ve.Attrs.(graph.ViolationAttrs)
			if !ok {
				continue
			}
			if firstViolation < 0 || va.TurnIndex < firstViolation {
				firstViolation = va.TurnIndex
			}
		}
		if firstViolation < 0 {
			continue
		}
		if lifetime := firstViolation - attrs.IntroducedAt; lifetime >= 0 {
			lifetimes = append(lifetimes, float64(lifetime))
		}
	}

	if len(lifetimes) == 0 {
		return nil
	}
	m := round2(median(lifetimes))
	return &m
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// ConstraintSurvivalRate is the fraction of constraints that ended the
// conversation in SURVIVED.
func ConstraintSurvivalRate(g *graph.Graph) float64 {
	cs := g.NodesOfType(graph.NodeConstraint)
	if len(cs) == 0 {
		return 0.0
	}
	survived := 0
	for _, n := range cs {
		if attrs, ok := n.Attrs.(graph.ConstraintAttrs); ok && attrs.CurrentState == core.StateSurvived {
			survived++
		}
	}
	return round4(float64(survived) / float64(len(cs)))
}

// ModeViolationRate is the fraction of turn-pair annotations that mismatch.
func ModeViolationRate(g *graph.Graph) float64 {
	ms := g.NodesOfType(graph.NodeInteractionMode)
	if len(ms) == 0 {
		return 0.0
	}
	violations := 0
	for _, n := range ms {
		if ann, ok := n.Attrs.(core.ModeAnnotation); ok && ann.IsViolation {
			violations++
		}
	}
	return round4(float64(violations) / float64(len(ms)))
}

// RepairSuccessRate is the fraction of constraint violation events that
// were later repaired. Mode violations are excluded; they never track
// repair.
func RepairSuccessRate(g *graph.Graph) float64 {
	total, repaired := 0, 0
	for _, n := range g.NodesOfType(graph.NodeViolationEvent) {
		attrs, ok := n.Attrs.(graph.ViolationAttrs)
		if !ok || attrs.ViolationType != core.ConstraintViolationType {
			continue
		}
		total++
		if attrs.WasRepaired {
			repaired++
		}
	}
	if total == 0 {
		return 0.0
	}
	return round4(float64(repaired) / float64(total))
}

// MeanConstraintLifespan is the average lifespan across all constraints.
func MeanConstraintLifespan(g *graph.Graph) float64 {
	cs := g.NodesOfType(graph.NodeConstraint)
	if len(cs) == 0 {
		return 0.0
	}
	sum := 0
	for _, n := range cs {
		if attrs, ok := n.Attrs.(graph.ConstraintAttrs); ok {
			sum += attrs.Lifespan
		}
	}
	return round2(float64(sum) / float64(len(cs)))
}

// ModeEntropy is the Shannon entropy (bits) of the user-requested mode
// distribution. Zero when every pair requested the same mode.
func ModeEntropy(g *graph.Graph) float64 {
	counts := make(map[core.InteractionMode]int)
	total := 0
	for _, n := range g.NodesOfType(graph.NodeInteractionMode) {
		if ann, ok := n.Attrs.(core.ModeAnnotation); ok {
			counts[ann.UserRequested]++
			total++
		}
	}
	if total == 0 {
		return 0.0
	}
	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return round4(entropy)
}

// MoveCoverage is the fraction of turns carrying at least one move.
func MoveCoverage(g *graph.Graph) float64 {
	turns := g.NodesOfType(graph.NodeTurn)
	if len(turns) == 0 {
		return 0.0
	}
	covered := 0
	for _, turn := range turns {
		if turnHasMove(g, turn.ID) {
			covered++
		}
	}
	return round4(float64(covered) / float64(len(turns)))
}

func turnHasMove(g *graph.Graph, turnID string) bool {
	for _, e := range g.OutEdges(turnID, "") {
		if n := g.Node(e.To); n != nil && n.Type == graph.NodeMove {
			return true
		}
	}
	for _, e := range g.InEdges(turnID, "") {
		if n := g.Node(e.From); n != nil && n.Type == graph.NodeMove {
			return true
		}
	}
	return false
}

// Compute derives the full metrics record from one conversation graph.
// Conversation identity and classification labels come from the graph's
// root node.
func Compute(g *graph.Graph) core.ConversationMetrics {
	m := core.ConversationMetrics{
		DriftVelocity:          DriftVelocity(g),
		AgencyTax:              AgencyTax(g),
		ConstraintHalfLife:     ConstraintHalfLife(g),
		ConstraintSurvivalRate: ConstraintSurvivalRate(g),
		ModeViolationRate:      ModeViolationRate(g),
		RepairSuccessRate:      RepairSuccessRate(g),
		MeanConstraintLifespan: MeanConstraintLifespan(g),
		ModeEntropy:            ModeEntropy(g),
		MoveCoverage:           MoveCoverage(g),
		TotalTurns:             len(g.NodesOfType(graph.NodeTurn)),
		TotalViolations:        len(g.NodesOfType(graph.NodeViolationEvent)),
		TotalConstraints:       len(g.NodesOfType(graph.NodeConstraint)),
	}

	for _, n := range g.NodesOfType(graph.NodeMove) {
		if mv, ok := n.Attrs.(core.Move); ok && mv.Type == core.MoveRepairInitiate {
			m.TotalRepairs++
		}
	}

	for _, n := range g.NodesOfType(graph.NodeConversation) {
		if attrs, ok := n.Attrs.(graph.ConversationAttrs); ok {
			m.ConversationID = attrs.ConvID
			m.StabilityClass = attrs.StabilityClass
			m.TaskArchitecture = attrs.TaskArchitecture
			m.ConstraintHardness = attrs.ConstraintHardness
			break
		}
	}
	return m
}
