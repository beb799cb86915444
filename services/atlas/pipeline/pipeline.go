// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline runs a conversation through the full diagnosis chain:
// move classification and mode detection (concurrent), constraint tracking,
// graph construction, and metrics.
//
// The batch runner on top fans the pipeline out over a set of upstream
// classification entries with bounded concurrency, caching results per
// conversation so reruns are idempotent.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/issacting93/Cartographer/services/atlas/constraints"
	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/graph"
	"github.com/issacting93/Cartographer/services/atlas/metrics"
	"github.com/issacting93/Cartographer/services/atlas/modes"
	"github.com/issacting93/Cartographer/services/atlas/moves"
	"github.com/issacting93/Cartographer/services/llm"
)

var tracer = otel.Tracer("cartographer.pipeline")

var (
	// ErrRawNotFound means the raw conversation file could not be loaded
	// from its recorded path or from the source directory.
	ErrRawNotFound = errors.New("raw conversation not found")

	// ErrTooShort means the conversation has too few turns to diagnose.
	ErrTooShort = errors.New("conversation too short")
)

// DefaultMinTurns is the minimum message count a conversation needs before
// the diagnosis is meaningful.
const DefaultMinTurns = 10

// Result is the pipeline output for one conversation. GraphJSON holds the
// node-link export of the diagnosis graph.
type Result struct {
	ConversationID string                   `json:"conversation_id"`
	Metrics        core.ConversationMetrics `json:"metrics"`
	Summary        graph.Summary            `json:"graph_summary"`
	GraphJSON      json.RawMessage          `json:"graph,omitempty"`
	FromCache      bool                     `json:"-"`
}

// Pipeline processes single conversations. A nil Classifier runs the
// deterministic detectors only. The zero value is usable.
type Pipeline struct {
	Classifier llm.Classifier
	Tracker    constraints.Tracker

	// MinTurns overrides DefaultMinTurns when positive.
	MinTurns int
}

func (p *Pipeline) minTurns() int {
	if p.MinTurns > 0 {
		return p.MinTurns
	}
	return DefaultMinTurns
}

// Process runs the full chain on one conversation. Move classification and
// mode detection run concurrently; everything after them is deterministic.
func (p *Pipeline) Process(ctx context.Context, conversationID string, messages []core.Message, classification core.Classification) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Int("conversation.turns", len(messages)),
	)

	if len(messages) < p.minTurns() {
		return nil, fmt.Errorf("%w: %d turns, need at least %d", ErrTooShort, len(messages), p.minTurns())
	}

	var (
		turns       []core.AnnotatedTurn
		annotations []core.ModeAnnotation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cl := &moves.Classifier{Client: p.Classifier}
		var err error
		turns, err = cl.Classify(gctx, messages, classification)
		if err != nil {
			return fmt.Errorf("classify moves: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		det := &modes.Detector{Client: p.Classifier}
		var err error
		annotations, err = det.Detect(gctx, messages)
		if err != nil {
			return fmt.Errorf("detect modes: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	track := p.Tracker.Track(conversationID, turns, classification)

	dg, err := graph.Build(conversationID, turns, track, annotations, classification)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	graphJSON, err := graph.MarshalJSON(dg)
	if err != nil {
		return nil, fmt.Errorf("export graph: %w", err)
	}

	result := &Result{
		ConversationID: conversationID,
		Metrics:        metrics.Compute(dg),
		Summary:        graph.Summarize(dg),
		GraphJSON:      graphJSON,
	}
	slog.Debug("conversation processed",
		"conversation_id", conversationID,
		"turns", len(messages),
		"violations", result.Metrics.TotalViolations,
		"constraints", result.Metrics.TotalConstraints)
	return result, nil
}

// ErrorTag maps a pipeline error to its stable tag for error reports.
// Unknown errors pass their message through.
func ErrorTag(err error) string {
	switch {
	case errors.Is(err, ErrRawNotFound):
		return "raw_not_found"
	case errors.Is(err, ErrTooShort):
		return "too_short"
	case errors.Is(err, graph.ErrSchemaInvalid):
		return "schema_invalid"
	default:
		return err.Error()
	}
}
