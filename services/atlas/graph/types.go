// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"

	"github.com/issacting93/Cartographer/services/atlas/core"
)

// NodeType identifies what a graph node represents.
type NodeType string

const (
	NodeConversation    NodeType = "Conversation"
	NodeTurn            NodeType = "Turn"
	NodeMove            NodeType = "Move"
	NodeConstraint      NodeType = "Constraint"
	NodeViolationEvent  NodeType = "ViolationEvent"
	NodeInteractionMode NodeType = "InteractionMode"
)

// EdgeType identifies the relationship an edge encodes.
type EdgeType string

const (
	EdgeContains   EdgeType = "CONTAINS"
	EdgeNext       EdgeType = "NEXT"
	EdgeHasMove    EdgeType = "HAS_MOVE"
	EdgeIntroduces EdgeType = "INTRODUCES"
	EdgeAbandons   EdgeType = "ABANDONS"
	EdgeViolates   EdgeType = "VIOLATES"
	EdgeTriggers   EdgeType = "TRIGGERS"
	EdgeRepairs    EdgeType = "REPAIRS"
	EdgeOperatesIn EdgeType = "OPERATES_IN"
	EdgeRatifies   EdgeType = "RATIFIES"
)

// ConversationAttrs is the payload of the root Conversation node.
type ConversationAttrs struct {
	ConvID             string `json:"conv_id" validate:"required"`
	Source             string `json:"source"`
	Domain             string `json:"domain"`
	TotalTurns         int    `json:"total_turns" validate:"gte=0"`
	StabilityClass     string `json:"stability_class"`
	TaskArchitecture   string `json:"task_architecture"`
	ConstraintHardness string `json:"constraint_hardness"`
	TaskGoal           string `json:"task_goal"`
}

// TurnAttrs is the payload of a Turn node. Content is reduced to a length
// and a whitespace-normalized preview; the graph never stores full turn
// text.
type TurnAttrs struct {
	TurnIndex      int       `json:"turn_index" validate:"gte=0"`
	Role           core.Role `json:"role" validate:"required"`
	ContentLength  int       `json:"content_length" validate:"gte=0"`
	ContentPreview string    `json:"content_preview"`
	MoveCount      int       `json:"move_count" validate:"gte=0"`
}

// ConstraintAttrs is the payload of a Constraint node: the final lifecycle
// record of one tracked constraint.
type ConstraintAttrs struct {
	ConstraintID  string               `json:"constraint_id" validate:"required"`
	Text          string               `json:"text"`
	Hardness      core.Hardness        `json:"hardness" validate:"oneof=hard soft goal"`
	CurrentState  core.ConstraintState `json:"current_state" validate:"required"`
	StateHistory  []core.StateEntry    `json:"state_history"`
	IntroducedAt  int                  `json:"introduced_at" validate:"gte=0"`
	TimesViolated int                  `json:"times_violated" validate:"gte=0"`
	TimesRepaired int                  `json:"times_repaired" validate:"gte=0"`
	Lifespan      int                  `json:"lifespan" validate:"gte=0"`
}

// ViolationAttrs is the payload of a ViolationEvent node. The mode fields
// are populated for mode violations only.
type ViolationAttrs struct {
	core.ViolationEvent

	UserRequested core.InteractionMode `json:"user_requested,omitempty"`
	AIEnacted     core.InteractionMode `json:"ai_enacted,omitempty"`
	Confidence    float64              `json:"confidence,omitempty"`
	Method        core.DetectionMethod `json:"method,omitempty"`
}

// Node is one attributed graph node. Attrs holds the per-type payload
// struct (ConversationAttrs, TurnAttrs, core.Move, ConstraintAttrs,
// ViolationAttrs, or core.ModeAnnotation).
type Node struct {
	ID    string
	Type  NodeType
	Attrs any
}

// Edge is one directed, typed edge. Parallel edges between the same pair
// of nodes are allowed. Attrs carries edge-local ordering data (order,
// sequence, violation_ord, at_turn) and may be nil.
type Edge struct {
	From  string
	To    string
	Type  EdgeType
	Attrs map[string]any
}

// Graph is a directed multigraph for one conversation. Node and edge
// insertion order is preserved, so identical inputs always produce an
// identical graph.
type Graph struct {
	ConversationID string

	nodes  []*Node
	byID   map[string]*Node
	edges  []*Edge
	frozen bool
}

// New creates an empty graph for the given conversation.
func New(conversationID string) *Graph {
	return &Graph{
		ConversationID: conversationID,
		byID:           make(map[string]*Node),
	}
}

// AddNode inserts a node. Fails on a frozen graph or a duplicate ID.
func (g *Graph) AddNode(id string, typ NodeType, attrs any) error {
	if g.frozen {
		return ErrFrozen
	}
	if _, exists := g.byID[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	n := &Node{ID: id, Type: typ, Attrs: attrs}
	g.nodes = append(g.nodes, n)
	g.byID[id] = n
	return nil
}

// AddEdge inserts a directed edge. Both endpoints must already exist.
func (g *Graph) AddEdge(from, to string, typ EdgeType, attrs map[string]any) error {
	if g.frozen {
		return ErrFrozen
	}
	if _, ok := g.byID[from]; !ok {
		return fmt.Errorf("%w: edge source %s", ErrNodeNotFound, from)
	}
	if _, ok := g.byID[to]; !ok {
		return fmt.Errorf("%w: edge target %s", ErrNodeNotFound, to)
	}
	g.edges = append(g.edges, &Edge{From: from, To: to, Type: typ, Attrs: attrs})
	return nil
}

// Freeze makes the graph read-only. Idempotent.
func (g *Graph) Freeze() { g.frozen = true }

// Frozen reports whether the graph is read-only.
func (g *Graph) Frozen() bool { return g.frozen }

// HasNode reports whether a node with the given ID exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.byID[id]
	return ok
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id string) *Node { return g.byID[id] }

// Nodes returns all nodes in insertion order. The slice is shared; callers
// must not mutate it.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Edges returns all edges in insertion order. The slice is shared; callers
// must not mutate it.
func (g *Graph) Edges() []*Edge { return g.edges }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of edges, counting parallel edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// NodesOfType returns all nodes of the given type, in insertion order.
func (g *Graph) NodesOfType(typ NodeType) []*Node {
	var out []*Node
	for _, n := range g.nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// InEdges returns the edges pointing at id, optionally filtered by type
// (pass "" for all).
func (g *Graph) InEdges(id string, typ EdgeType) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.To == id && (typ == "" || e.Type == typ) {
			out = append(out, e)
		}
	}
	return out
}

// OutEdges returns the edges leaving id, optionally filtered by type
// (pass "" for all).
func (g *Graph) OutEdges(id string, typ EdgeType) []*Edge {
	var out []*Edge
	for _, e := range g.edges {
		if e.From == id && (typ == "" || e.Type == typ) {
			out = append(out, e)
		}
	}
	return out
}
