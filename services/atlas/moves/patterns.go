// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package moves

import "github.com/issacting93/Cartographer/services/atlas/textmatch"

// User-side pattern families.
var (
	// repairMarkers signal the user pushing back on assistant output.
	repairMarkers = textmatch.MustCompile(
		`no,?\s*(i\s+)?meant`,
		`that'?s not what i`,
		`let me clarify`,
		`i said`,
		`as i mentioned`,
		`i already told you`,
		`again,`,
		`for the \w+ time`,
		`no[,.]?\s+(i\s+)?(want|need|said)`,
		`not\s+\w+[,.]?\s+(but|instead)`,
		`\?\?+`,
		`did you (even )?(read|understand|see)`,
	)

	// Deontic constraint families, tagged by hardness.
	constraintHard = textmatch.MustCompile(
		`\b(must|have to|need to|require|only|never|always)\b`,
		`\b(no more than|at least|maximum|minimum|exactly)\b`,
		`\b(cannot|can't|won't|will not)\b`,
	)
	constraintSoft = textmatch.MustCompile(
		`\b(prefer|ideally|if possible|would like|hope)\b`,
		`\b(rather|better if|nice to have)\b`,
	)
	constraintGoal = textmatch.MustCompile(
		`\b(goal|objective|aim|target|trying to|want to|looking for)\b`,
	)

	// passivePatterns match short, whole-message acknowledgements.
	passivePatterns = textmatch.MustCompile(
		`^(ok|okay|sure|alright|fine|got it|i see|thanks)\.?$`,
		`^(sounds good|that works|perfect)\.?$`,
		`^(yes|yeah|yep|yup)\.?$`,
	)
)

// Assistant-side pattern families.
var (
	acceptPatterns = textmatch.MustCompile(
		`\b(i'll make sure|i will make sure|i'll ensure|i will ensure)\b`,
		`\b(noted|understood|i understand)\b.*\b(you want|your|the constraint|the requirement)\b`,
		`\b(keeping in mind|with that in mind|taking into account)\b`,
		`\b(i'll focus on|i will focus on|focusing on)\b`,
		`\b(as you (requested|specified|mentioned|asked))\b`,
		`\b(per your (request|instruction|requirement))\b`,
		`\b(i'll stick to|i will stick to|sticking to)\b`,
		`\b(absolutely|of course)[,.]?\s*(i'll|i will|let me)\b`,
	)

	repairExecutePatterns = textmatch.MustCompile(
		`\b(i apologize|my apologies|sorry about that|you'?re right)\b`,
		`\b(let me (correct|fix|adjust|revise|redo|try again))\b`,
		`\b(i (misunderstood|missed that|overlooked))\b`,
		`\b(here'?s the (corrected|revised|updated|fixed) version)\b`,
		`\b(i see what you mean|good catch|thanks for clarifying)\b`,
	)

	clarificationPatterns = textmatch.MustCompile(
		`\b(could you (clarify|specify|elaborate|explain))\b`,
		`\b(do you mean|did you mean|are you (referring|looking))\b`,
		`\b(can you (tell me more|provide more|give me more))\b`,
		`\b(what (exactly|specifically) (do you|would you|are you))\b`,
		`\b(just to (clarify|confirm|make sure))\b`,
		`\b(before i (proceed|continue|start|begin))\b.*\?`,
		`\b(a few questions|some questions|i have a question)\b`,
	)
)
