// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph builds the per-conversation diagnosis graph: a typed,
// attributed, directed multigraph over conversation, turn, move,
// constraint, violation and mode nodes.
//
// # Lifecycle
//
// A typical graph lifecycle:
//  1. Create with New(conversationID)
//  2. Build with AddNode() and AddEdge() calls (usually via Build)
//  3. Call Freeze() to finalize
//  4. Query and export
//
// The graph is NOT safe for concurrent use while building. After Freeze()
// it is read-only and safe to share across goroutines.
package graph

import "errors"

// Sentinel errors for graph operations.
var (
	// ErrFrozen is returned when attempting to modify a frozen graph.
	// Once Freeze() is called, the graph becomes read-only.
	ErrFrozen = errors.New("graph is frozen and cannot be modified")

	// ErrNodeNotFound is returned when an edge references a non-existent
	// node. Both endpoints must exist before an edge can be created.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when adding a node with an ID that
	// already exists in the graph.
	ErrDuplicateNode = errors.New("duplicate node ID")

	// ErrSchemaInvalid is returned when a node's attributes fail schema
	// validation or an edge is structurally broken.
	ErrSchemaInvalid = errors.New("graph schema validation failed")

	// ErrInvariantViolated is returned when the built graph breaks a
	// structural invariant (orphan turn, unanchored move, untriggered
	// violation event).
	ErrInvariantViolated = errors.New("graph invariant violated")
)
