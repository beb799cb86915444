// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/issacting93/Cartographer/services/atlas/core"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every node's payload against the schema for its node
// type and every edge for endpoint integrity. All problems are collected
// before failing, so one pass reports everything wrong with a graph.
func Validate(g *Graph) error {
	var problems []string

	for _, n := range g.Nodes() {
		if n.Type == "" {
			problems = append(problems, fmt.Sprintf("node %s is missing a node type", n.ID))
			continue
		}
		if err := validateNodePayload(n); err != nil {
			problems = append(problems, fmt.Sprintf("node %s failed %s validation: %v", n.ID, n.Type, err))
		}
	}

	for _, e := range g.Edges() {
		if !g.HasNode(e.From) {
			problems = append(problems, fmt.Sprintf("edge (%s -> %s) references missing source", e.From, e.To))
		}
		if !g.HasNode(e.To) {
			problems = append(problems, fmt.Sprintf("edge (%s -> %s) references missing target", e.From, e.To))
		}
		if e.Type == "" {
			problems = append(problems, fmt.Sprintf("edge (%s -> %s) is missing an edge type", e.From, e.To))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %d problem(s), first: %s", ErrSchemaInvalid, len(problems), problems[0])
	}
	return nil
}

// validateNodePayload checks that the node carries the payload struct its
// type requires and that the payload passes its field constraints.
func validateNodePayload(n *Node) error {
	switch n.Type {
	case NodeConversation:
		if _, ok := n.Attrs.(ConversationAttrs); !ok {
			return fmt.Errorf("payload is %T, want ConversationAttrs", n.Attrs)
		}
	case NodeTurn:
		if _, ok := n.Attrs.(TurnAttrs); !ok {
			return fmt.Errorf("payload is %T, want TurnAttrs", n.Attrs)
		}
	case NodeMove:
		if _, ok := n.Attrs.(core.Move); !ok {
			return fmt.Errorf("payload is %T, want core.Move", n.Attrs)
		}
	case NodeConstraint:
		if _, ok := n.Attrs.(ConstraintAttrs); !ok {
			return fmt.Errorf("payload is %T, want ConstraintAttrs", n.Attrs)
		}
	case NodeViolationEvent:
		if _, ok := n.Attrs.(ViolationAttrs); !ok {
			return fmt.Errorf("payload is %T, want ViolationAttrs", n.Attrs)
		}
	case NodeInteractionMode:
		if _, ok := n.Attrs.(core.ModeAnnotation); !ok {
			return fmt.Errorf("payload is %T, want core.ModeAnnotation", n.Attrs)
		}
	default:
		return fmt.Errorf("unknown node type %q", n.Type)
	}
	return validate.Struct(n.Attrs)
}
