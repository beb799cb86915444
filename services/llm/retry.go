// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"time"
)

// Transient failure signatures. Anything else is permanent for that call and
// the caller degrades to "no additional output".
var transientSignatures = []string{
	"429", "rate", "limit", "timeout", "deadline",
	"503", "502", "500", "connection",
}

// IsTransient reports whether an error looks retriable (timeout, rate limit,
// 5xx, connection reset).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\n?")
	fenceClose = regexp.MustCompile("\n?```$")
)

// StripFences removes a surrounding markdown code fence, which chat models
// add around JSON output despite instructions not to.
func StripFences(s string) string {
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Retrying wraps a Classifier with exponential backoff on transient
// failures and fence-stripping on success.
type Retrying struct {
	inner     Classifier
	maxTries  int
	baseDelay time.Duration
}

// NewRetrying wraps inner with up to maxTries attempts (minimum 1) and the
// given base delay, doubled per attempt with up to 500ms of jitter.
func NewRetrying(inner Classifier, maxTries int, baseDelay time.Duration) *Retrying {
	if maxTries < 1 {
		maxTries = 1
	}
	return &Retrying{inner: inner, maxTries: maxTries, baseDelay: baseDelay}
}

// Complete implements the Classifier interface.
func (r *Retrying) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	delay := r.baseDelay
	for attempt := 0; attempt < r.maxTries; attempt++ {
		out, err := r.inner.Complete(ctx, req)
		if err == nil {
			return StripFences(out), nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.maxTries-1 {
			break
		}
		jitter := time.Duration(rand.Int63n(int64(500 * time.Millisecond)))
		slog.Warn("classifier call failed, retrying",
			"attempt", attempt+1,
			"max_attempts", r.maxTries,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return "", lastErr
}
