// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Bounded caps the number of in-flight classifier calls across all
// conversations with a fixed-size weighted semaphore. Calls beyond the bound
// block until a slot frees or the context is cancelled.
type Bounded struct {
	inner Classifier
	sem   *semaphore.Weighted
}

// NewBounded wraps inner with a concurrency bound of n (minimum 1).
func NewBounded(inner Classifier, n int64) *Bounded {
	if n < 1 {
		n = 1
	}
	return &Bounded{inner: inner, sem: semaphore.NewWeighted(n)}
}

// Complete implements the Classifier interface.
func (b *Bounded) Complete(ctx context.Context, req Request) (string, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer b.sem.Release(1)
	return b.inner.Complete(ctx, req)
}
