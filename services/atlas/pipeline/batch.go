// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/issacting93/Cartographer/services/atlas/core"
	"github.com/issacting93/Cartographer/services/atlas/graph"
)

// DefaultConcurrency bounds the number of conversations in flight at once.
const DefaultConcurrency = 10

// BatchError is one failed conversation in a batch run.
type BatchError struct {
	ConversationID string `json:"conversation_id"`
	Error          string `json:"error"`
}

// Batch is the outcome of one batch run. Results and Errors partition the
// input entries; their combined length equals the entry count.
type Batch struct {
	RunID    string
	Results  []*Result
	Errors   []BatchError
	Duration time.Duration
}

// Metrics collects the per-conversation metrics of the successful results,
// ready for aggregation.
func (b *Batch) Metrics() []core.ConversationMetrics {
	out := make([]core.ConversationMetrics, 0, len(b.Results))
	for _, r := range b.Results {
		out = append(out, r.Metrics)
	}
	return out
}

// Runner fans the pipeline out over enriched entries with bounded
// concurrency. A nil Cache disables caching; Force reprocesses cached
// conversations.
type Runner struct {
	Pipeline    *Pipeline
	Cache       *Cache
	SourceDir   string
	Concurrency int
	Force       bool
}

func (r *Runner) concurrency() int {
	if r.Concurrency > 0 {
		return r.Concurrency
	}
	return DefaultConcurrency
}

// Run processes every entry. Per-conversation failures are recorded, not
// fatal; only context cancellation aborts the batch early.
func (r *Runner) Run(ctx context.Context, entries []EnrichedEntry) *Batch {
	batch := &Batch{RunID: uuid.NewString()}
	start := time.Now()

	slog.Info("batch started",
		"run_id", batch.RunID,
		"entries", len(entries),
		"concurrency", r.concurrency(),
		"force", r.Force)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency())

	for _, entry := range entries {
		g.Go(func() error {
			result, err := r.processEntry(gctx, entry)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				tag := ErrorTag(err)
				conversationsTotal.WithLabelValues("error").Inc()
				conversationErrors.WithLabelValues(metricTag(err)).Inc()
				batch.Errors = append(batch.Errors, BatchError{
					ConversationID: entryID(entry),
					Error:          tag,
				})
				return nil
			}
			conversationsTotal.WithLabelValues("ok").Inc()
			batch.Results = append(batch.Results, result)
			return nil
		})
	}
	// Goroutines record their own failures and return nil.
	_ = g.Wait()

	batch.Duration = time.Since(start)
	batchDuration.Observe(batch.Duration.Seconds())
	slog.Info("batch complete",
		"run_id", batch.RunID,
		"ok", len(batch.Results),
		"errors", len(batch.Errors),
		"duration", batch.Duration.Round(time.Millisecond))
	return batch
}

func (r *Runner) processEntry(ctx context.Context, entry EnrichedEntry) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := entryID(entry)

	if r.Cache != nil && !r.Force {
		cached, ok, err := r.Cache.Get(id)
		if err != nil {
			slog.Warn("cache read failed", "conversation_id", id, "error", err.Error())
		} else if ok {
			cacheHitsTotal.Inc()
			cached.FromCache = true
			return cached, nil
		}
	}

	raw, err := ResolveConversation(entry.FilePath, r.SourceDir)
	if err != nil {
		return nil, err
	}

	result, err := r.Pipeline.Process(ctx, id, raw.Messages, entry.ToClassification())
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		if err := r.Cache.Put(id, result); err != nil {
			slog.Warn("cache write failed", "conversation_id", id, "error", err.Error())
		}
	}
	return result, nil
}

func entryID(entry EnrichedEntry) string {
	if entry.ID != "" {
		return entry.ID
	}
	return "unknown"
}

// metricTag keeps the error-tag label space bounded: known tags pass
// through, everything else is "internal".
func metricTag(err error) string {
	switch {
	case errors.Is(err, ErrRawNotFound), errors.Is(err, ErrTooShort), errors.Is(err, graph.ErrSchemaInvalid):
		return ErrorTag(err)
	default:
		return "internal"
	}
}
