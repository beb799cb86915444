// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package moves

import (
	"strings"

	"github.com/issacting93/Cartographer/services/atlas/textmatch"
)

// aspirationalPatterns match quality-standard boilerplate ("be accurate",
// "provide correct output") that cannot be verified pass/fail.
var aspirationalPatterns = textmatch.MustCompile(
	`^(be |provide |ensure |maintain )(accurate|correct|proper|good|clear|helpful|high.quality|appropriate)`,
	`^(code|output|response|answer|result).{0,20}(must |should )?(be |remain )?(correct|accurate|functional|proper|good|valid)`,
	`^(deliver|produce|create|generate) (high.quality|accurate|correct|proper)`,
	`^(accurate|correct|helpful|clear|proper|appropriate) (response|output|answer|information|code)`,
)

var qualityWords = map[string]struct{}{
	"accurate": {}, "correct": {}, "proper": {}, "good": {}, "clear": {},
	"helpful": {}, "appropriate": {}, "valid": {}, "functional": {},
	"quality": {}, "consistent": {},
}

var aspirationalStopwords = map[string]struct{}{
	"be": {}, "must": {}, "should": {}, "the": {}, "a": {}, "an": {},
	"and": {}, "or": {}, "is": {}, "are": {}, "provide": {}, "ensure": {},
	"maintain": {},
}

// IsAspirational reports whether a constraint is a subjective quality
// standard rather than a verifiable requirement. Aspirational constraints
// are excluded from violation detection: "provide accurate information"
// cannot be objectively breached, "no more than 500 words" can.
func IsAspirational(text string) bool {
	lower := strings.TrimSpace(strings.ToLower(text))
	if aspirationalPatterns.AnyMatch(lower) {
		return true
	}

	// Very short constraints made of nothing but quality words.
	content := make(map[string]struct{})
	for tok := range textmatch.Tokens(lower) {
		if _, stop := aspirationalStopwords[tok]; !stop {
			content[tok] = struct{}{}
		}
	}
	if len(content) > 3 {
		return false
	}
	for tok := range content {
		if _, ok := qualityWords[tok]; ok {
			return true
		}
	}
	return false
}
