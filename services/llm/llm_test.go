// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClassifier returns canned errors for the first len(errs) calls, then
// succeeds with out.
type fakeClassifier struct {
	mu    sync.Mutex
	errs  []error
	out   string
	calls int
}

func (f *fakeClassifier) Complete(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.errs) {
		return "", f.errs[idx]
	}
	return f.out, nil
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(errors.New("429 Too Many Requests")))
	assert.True(t, IsTransient(errors.New("context deadline exceeded")))
	assert.True(t, IsTransient(errors.New("connection reset by peer")))
	assert.False(t, IsTransient(errors.New("invalid api key")))
	assert.False(t, IsTransient(nil))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
	assert.Equal(t, "plain text", StripFences("  plain text  "))
}

func TestRetryingRecoversFromTransient(t *testing.T) {
	inner := &fakeClassifier{
		errs: []error{errors.New("429 rate limited"), errors.New("503 unavailable")},
		out:  "```json\n{\"violations\":[]}\n```",
	}
	r := NewRetrying(inner, 3, time.Millisecond)

	out, err := r.Complete(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, `{"violations":[]}`, out)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("invalid api key")
	inner := &fakeClassifier{errs: []error{permanent, permanent, permanent}}
	r := NewRetrying(inner, 3, time.Millisecond)

	_, err := r.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, inner.calls)
}

func TestRetryingExhaustsAttempts(t *testing.T) {
	transient := errors.New("timeout waiting for response")
	inner := &fakeClassifier{errs: []error{transient, transient, transient, transient}}
	r := NewRetrying(inner, 3, time.Millisecond)

	_, err := r.Complete(context.Background(), Request{})
	require.ErrorIs(t, err, transient)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryingMinimumOneAttempt(t *testing.T) {
	inner := &fakeClassifier{out: "ok"}
	r := NewRetrying(inner, 0, time.Millisecond)

	out, err := r.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

// slowClassifier tracks the peak number of concurrent calls.
type slowClassifier struct {
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (s *slowClassifier) Complete(ctx context.Context, req Request) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return "done", nil
}

func TestBoundedCapsConcurrency(t *testing.T) {
	inner := &slowClassifier{}
	b := NewBounded(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := b.Complete(context.Background(), Request{})
			assert.NoError(t, err)
			assert.Equal(t, "done", out)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.peak.Load(), int64(2))
}

func TestBoundedHonorsCancellation(t *testing.T) {
	b := NewBounded(&slowClassifier{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Complete(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOpenAIClassifierRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIClassifier("gpt-4o-mini", 5)
	assert.Error(t, err)
}
