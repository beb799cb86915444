// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package textmatch

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("only use python", "Only Use Python"))
	assert.Equal(t, 0.0, Jaccard("alpha beta", "gamma delta"))
	assert.Equal(t, 0.0, Jaccard("", "anything"))
	assert.Equal(t, 0.0, Jaccard("anything", "   "))

	// {use, python} vs {use, python, always}: 2/3.
	assert.InDelta(t, 2.0/3.0, Jaccard("use python", "always use python"), 1e-9)
}

func TestTokenOverlap(t *testing.T) {
	// Every token of the constraint appears in the span.
	assert.Equal(t, 1.0, TokenOverlap("use python", "you said to USE PYTHON here"))
	assert.Equal(t, 0.0, TokenOverlap("", "anything"))
	// One of two tokens found.
	assert.InDelta(t, 0.5, TokenOverlap("python java", "switching to python"), 1e-9)
}

func TestPatternSetCountMatches(t *testing.T) {
	ps := MustCompile(`\bmust\b`, `\bnever\b`, `\balways\b`)
	assert.Equal(t, 2, ps.CountMatches("You MUST do this and never stop"))
	assert.Equal(t, 0, ps.CountMatches("nothing imperative here"))
}

func TestPatternSetFirstMatch(t *testing.T) {
	ps := MustCompile(`never \w+`)
	start, end, ok := ps.FirstMatch("please never mention that again")
	require.True(t, ok)
	assert.Equal(t, "never mention", "please never mention that again"[start:end])

	_, _, ok = ps.FirstMatch("no match here")
	assert.False(t, ok)
	assert.True(t, ps.AnyMatch("never again"))
	assert.False(t, ps.AnyMatch("always again"))
}

func TestFirstMatchOffsetsIndexOriginalText(t *testing.T) {
	// U+0130 lowercases to a longer byte sequence; matching a lowered copy
	// would shift every offset after it.
	text := "İstanbul trip: never do that again"
	ps := MustCompile(`never do that`)

	start, end, ok := ps.FirstMatch(text)
	require.True(t, ok)
	assert.Equal(t, "never do that", text[start:end])

	span := Span(text, start, end, 5, 0, 120)
	assert.True(t, utf8.ValidString(span))
	assert.Equal(t, "rip: never do that", span)
}

func TestSpan(t *testing.T) {
	text := "aaaa never do that bbbb"
	ps := MustCompile(`never do that`)
	start, end, ok := ps.FirstMatch(text)
	require.True(t, ok)

	assert.Equal(t, "never do that", Span(text, start, end, 0, 0, 100))
	// Window widened past the bounds gets clamped and trimmed.
	assert.Equal(t, "aaaa never do that bbbb", Span(text, start, end, 100, 100, 100))
	// Truncation applies after widening.
	assert.Equal(t, "aaaa never", Span(text, start, end, 100, 100, 10))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "exact", Truncate("exact", 5))
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	// Never splits a multi-byte rune.
	assert.Equal(t, "héllo"[:3], Truncate("héllo", 3))
	assert.Equal(t, "h", Truncate("héllo", 2))
}
