// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/graph"
)

// fixtureMessages builds a deterministic ten-turn conversation: a goal and
// a hard constraint up front, then alternating filler turns long enough to
// trigger the default assistant move.
func fixtureMessages() []core.Message {
	msgs := []core.Message{
		{Role: core.RoleUser, Content: "My goal is to write a product launch post. It must be under 500 words."},
		{Role: core.RoleAssistant, Content: "Here is an outline for the launch post, structured around the announcement, the key features, and the call to action so the final text stays tight."},
	}
	for i := 0; i < 4; i++ {
		msgs = append(msgs,
			core.Message{Role: core.RoleUser, Content: fmt.Sprintf("Please expand section %d with more detail about the feature set.", i+1)},
			core.Message{Role: core.RoleAssistant, Content: fmt.Sprintf("Section %d now covers the feature set in more depth, including the rollout plan and the migration notes users asked about previously.", i+1)},
		)
	}
	return msgs
}

func fixtureClassification() core.Classification {
	return core.Classification{
		TaskGoal:           "write a product launch post",
		PrimaryConstraints: []string{"must be under 500 words"},
		Evidence:           core.Evidence{ConstraintTurns: []int{0}},
		StabilityClass:     "stable",
		TaskArchitecture:   "single_deliverable",
		ConstraintHardness: "hard",
	}
}

func TestProcessTooShort(t *testing.T) {
	p := &Pipeline{}
	_, err := p.Process(context.Background(), "conv1", []core.Message{
		{Role: core.RoleUser, Content: "hello"},
		{Role: core.RoleAssistant, Content: "hi"},
	}, core.Classification{})
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestProcessDeterministic(t *testing.T) {
	p := &Pipeline{}
	res, err := p.Process(context.Background(), "conv1", fixtureMessages(), fixtureClassification())
	require.NoError(t, err)

	assert.Equal(t, "conv1", res.ConversationID)
	assert.Equal(t, 10, res.Metrics.TotalTurns)
	assert.Equal(t, 1, res.Metrics.TotalConstraints)
	assert.Equal(t, "stable", res.Metrics.StabilityClass)

	assert.Equal(t, 1, res.Summary.NodeTypes[string(graph.NodeConversation)])
	assert.Equal(t, 10, res.Summary.NodeTypes[string(graph.NodeTurn)])
	assert.Equal(t, 1, res.Summary.NodeTypes[string(graph.NodeConstraint)])
	assert.True(t, json.Valid(res.GraphJSON))
	assert.False(t, res.FromCache)
}

func TestProcessIsIdempotent(t *testing.T) {
	p := &Pipeline{}
	first, err := p.Process(context.Background(), "conv1", fixtureMessages(), fixtureClassification())
	require.NoError(t, err)
	second, err := p.Process(context.Background(), "conv1", fixtureMessages(), fixtureClassification())
	require.NoError(t, err)

	assert.Equal(t, first.Metrics, second.Metrics)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, string(first.GraphJSON), string(second.GraphJSON))
}

func TestProcessMinTurnsOverride(t *testing.T) {
	p := &Pipeline{MinTurns: 2}
	res, err := p.Process(context.Background(), "conv1", []core.Message{
		{Role: core.RoleUser, Content: "My goal is a short summary of the quarterly report for the board."},
		{Role: core.RoleAssistant, Content: "The quarterly summary highlights revenue growth, the new hires across engineering, and the updated forecast for the next two quarters."},
	}, core.Classification{TaskGoal: "summary"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metrics.TotalTurns)
}

func TestErrorTag(t *testing.T) {
	assert.Equal(t, "raw_not_found", ErrorTag(fmt.Errorf("%w: x.json", ErrRawNotFound)))
	assert.Equal(t, "too_short", ErrorTag(fmt.Errorf("%w: 3 turns", ErrTooShort)))
	assert.Equal(t, "schema_invalid", ErrorTag(fmt.Errorf("wrap: %w", graph.ErrSchemaInvalid)))
	assert.Equal(t, "boom", ErrorTag(errors.New("boom")))
}

func TestMetricTagBoundsLabelSpace(t *testing.T) {
	assert.Equal(t, "too_short", metricTag(fmt.Errorf("%w: 3 turns", ErrTooShort)))
	assert.Equal(t, "internal", metricTag(errors.New("connection reset by peer")))
}
