// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// conversationsTotal counts processed conversations by final status.
	conversationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartographer_conversations_total",
		Help: "Conversations processed, by final status",
	}, []string{"status"})

	// conversationErrors counts failed conversations by error tag.
	conversationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartographer_conversation_errors_total",
		Help: "Conversation processing failures, by error tag",
	}, []string{"tag"})

	// cacheHitsTotal counts results served from the cache.
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartographer_cache_hits_total",
		Help: "Pipeline results served from the result cache",
	})

	// batchDuration tracks wall-clock duration of batch runs.
	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cartographer_batch_duration_seconds",
		Help:    "Batch run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
