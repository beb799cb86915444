// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package textmatch provides the fuzzy text matching primitives shared by
// the move classifier, mode detector and constraint tracker: token-set
// (Jaccard) similarity and compiled pattern-set helpers.
package textmatch

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Tokens returns the lowercase whitespace-split token set of text.
func Tokens(text string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard computes token-level Jaccard similarity between two strings:
// |intersection| / |union| of their lowercase token sets. Returns 0 when
// either side has no tokens.
func Jaccard(a, b string) float64 {
	ta := Tokens(a)
	tb := Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// TokenOverlap returns the fraction of a's tokens that appear as substrings
// of b (lowercased). Used for direct violation-span matching, where the
// classifier output usually quotes the constraint text.
func TokenOverlap(a, b string) float64 {
	ta := Tokens(a)
	if len(ta) == 0 {
		return 0.0
	}
	lower := strings.ToLower(b)
	hit := 0
	for tok := range ta {
		if strings.Contains(lower, tok) {
			hit++
		}
	}
	return float64(hit) / float64(len(ta))
}

// PatternSet is a pre-compiled list of case-insensitive patterns.
type PatternSet []*regexp.Regexp

// MustCompile compiles every expression with the case-insensitive flag.
// Panics on a bad expression; pattern tables are package-level constants.
func MustCompile(exprs ...string) PatternSet {
	set := make(PatternSet, 0, len(exprs))
	for _, e := range exprs {
		set = append(set, regexp.MustCompile(`(?i)`+e))
	}
	return set
}

// CountMatches returns how many patterns in the set match text at all.
func (ps PatternSet) CountMatches(text string) int {
	n := 0
	for _, re := range ps {
		if re.MatchString(text) {
			n++
		}
	}
	return n
}

// FirstMatch returns the [start, end) byte offsets of the first pattern that
// matches, or ok=false when none does. Matching runs on text as given: the
// patterns are case-insensitive, and lowercasing first would shift offsets
// for runes whose lowercase form has a different byte length.
func (ps PatternSet) FirstMatch(text string) (start, end int, ok bool) {
	for _, re := range ps {
		if loc := re.FindStringIndex(text); loc != nil {
			return loc[0], loc[1], true
		}
	}
	return 0, 0, false
}

// AnyMatch reports whether any pattern matches text.
func (ps PatternSet) AnyMatch(text string) bool {
	_, _, ok := ps.FirstMatch(text)
	return ok
}

// Span extracts a trimmed context window around [start, end) from text,
// widened by before/after bytes and truncated to maxLen runes-worth of
// bytes. Offsets are clamped to the text bounds.
func Span(text string, start, end, before, after, maxLen int) string {
	s := start - before
	if s < 0 {
		s = 0
	}
	e := end + after
	if e > len(text) {
		e = len(text)
	}
	span := strings.TrimSpace(text[s:e])
	return Truncate(span, maxLen)
}

// Truncate cuts s to at most n bytes without splitting the final rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
