// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package core defines the shared vocabulary of the atlas pipeline.
//
// Every downstream stage (move classification, mode detection, constraint
// tracking, graph construction, metrics) speaks in these types. All of them
// are plain values: once a stage emits a record it is never mutated, with the
// single exception of Constraint, which advances only through its
// Transition method.
package core

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MoveType classifies a communicative act within one turn.
//
// The taxonomy has 13 types in four categories:
//
//	Constraint lifecycle: PROPOSE_CONSTRAINT, ACCEPT_CONSTRAINT,
//	                      VIOLATE_CONSTRAINT, RATIFY_CONSTRAINT
//	Repair:               REPAIR_INITIATE, REPAIR_EXECUTE, ABANDON_CONSTRAINT
//	Task structure:       STATE_GOAL, TASK_SHIFT, GENERATE_OUTPUT
//	Interactional:        REQUEST_CLARIFICATION, PROVIDE_INFORMATION,
//	                      PASSIVE_ACCEPT
type MoveType string

const (
	MoveProposeConstraint    MoveType = "PROPOSE_CONSTRAINT"
	MoveAcceptConstraint     MoveType = "ACCEPT_CONSTRAINT"
	MoveViolateConstraint    MoveType = "VIOLATE_CONSTRAINT"
	MoveRatifyConstraint     MoveType = "RATIFY_CONSTRAINT"
	MoveRepairInitiate       MoveType = "REPAIR_INITIATE"
	MoveRepairExecute        MoveType = "REPAIR_EXECUTE"
	MoveAbandonConstraint    MoveType = "ABANDON_CONSTRAINT"
	MoveStateGoal            MoveType = "STATE_GOAL"
	MoveTaskShift            MoveType = "TASK_SHIFT"
	MoveGenerateOutput       MoveType = "GENERATE_OUTPUT"
	MoveRequestClarification MoveType = "REQUEST_CLARIFICATION"
	MoveProvideInformation   MoveType = "PROVIDE_INFORMATION"
	MovePassiveAccept        MoveType = "PASSIVE_ACCEPT"
)

// singularMoveTypes holds the move types of which a turn may retain at most
// one instance. Among competing candidates the highest-confidence one wins.
var singularMoveTypes = map[MoveType]bool{
	MoveStateGoal:            true,
	MoveTaskShift:            true,
	MoveAcceptConstraint:     true,
	MoveRepairExecute:        true,
	MoveRequestClarification: true,
	MoveRatifyConstraint:     true,
	MoveGenerateOutput:       true,
	MovePassiveAccept:        true,
	MoveAbandonConstraint:    true,
}

// Singular reports whether at most one move of this type may survive
// per-turn deduplication.
func (t MoveType) Singular() bool { return singularMoveTypes[t] }

// DetectionMethod records how a move or mode annotation was produced.
type DetectionMethod string

const (
	// MethodPattern marks deterministic pattern-rule detections.
	MethodPattern DetectionMethod = "pattern"

	// MethodInferred marks moves derived from local turn context rather
	// than from the turn's own text.
	MethodInferred DetectionMethod = "inferred"

	// MethodSemantic marks judgments delegated to the external semantic
	// classifier.
	MethodSemantic DetectionMethod = "semantic"
)

// Move is one classified communicative act attached to a turn.
// Immutable once emitted by the classifier.
type Move struct {
	Type       MoveType        `json:"move_type" validate:"required"`
	TextSpan   string          `json:"text_span"`
	Confidence float64         `json:"confidence" validate:"gte=0,lte=1"`
	Method     DetectionMethod `json:"method" validate:"required"`
	Actor      Role            `json:"actor" validate:"oneof=user assistant"`
}

// Message is one raw conversational utterance as received from upstream.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// AnnotatedTurn is a raw message plus its conversation-scoped index and the
// moves the classifier assigned to it.
type AnnotatedTurn struct {
	Index   int    `json:"turn_index"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Moves   []Move `json:"moves"`
}

// HasMove reports whether any move of the given type was assigned.
func (t AnnotatedTurn) HasMove(mt MoveType) bool {
	for _, m := range t.Moves {
		if m.Type == mt {
			return true
		}
	}
	return false
}

// ConstraintState is one phase of the constraint lifecycle.
//
// Legal transitions:
//
//	STATED -> ACTIVE -> VIOLATED -> REPAIRED -> ACTIVE   (cycle)
//	VIOLATED -> ABANDONED                                 (terminal)
//	STATED|ACTIVE -> SURVIVED at conversation end         (terminal)
type ConstraintState string

const (
	StateStated    ConstraintState = "STATED"
	StateActive    ConstraintState = "ACTIVE"
	StateViolated  ConstraintState = "VIOLATED"
	StateRepaired  ConstraintState = "REPAIRED"
	StateAbandoned ConstraintState = "ABANDONED"
	StateSurvived  ConstraintState = "SURVIVED"
)

// Hardness classifies how binding a constraint is.
type Hardness string

const (
	HardnessHard Hardness = "hard"
	HardnessSoft Hardness = "soft"
	HardnessGoal Hardness = "goal"
)

// StateEntry is one (turn, state) pair in a constraint's transition log.
type StateEntry struct {
	Turn  int             `json:"turn"`
	State ConstraintState `json:"state"`
}

// Constraint is one tracked requirement and its lifecycle record.
//
// State advances only through Transition; callers never touch CurrentState
// or History directly. The history is append-only and every entry's turn is
// clamped to at least IntroducedAt.
type Constraint struct {
	ID              string          `json:"constraint_id" validate:"required"`
	Text            string          `json:"text"`
	Hardness        Hardness        `json:"hardness" validate:"oneof=hard soft goal"`
	CurrentState    ConstraintState `json:"current_state" validate:"required"`
	History         []StateEntry    `json:"state_history"`
	IntroducedAt    int             `json:"introduced_at" validate:"gte=0"`
	LastViolationAt int             `json:"last_violation_at"`
	TimesViolated   int             `json:"times_violated" validate:"gte=0"`
	TimesRepaired   int             `json:"times_repaired" validate:"gte=0"`
	Lifespan        int             `json:"lifespan" validate:"gte=0"`
}

// NewConstraint seeds a constraint in STATED at its introduction turn.
func NewConstraint(id, text string, hardness Hardness, introducedAt int) *Constraint {
	return &Constraint{
		ID:              id,
		Text:            text,
		Hardness:        hardness,
		CurrentState:    StateStated,
		History:         []StateEntry{{Turn: introducedAt, State: StateStated}},
		IntroducedAt:    introducedAt,
		LastViolationAt: -1,
	}
}

// Transition advances the state machine at the given turn.
//
// The effective turn is clamped to the introduction turn so history never
// records a transition before the constraint existed. A REPAIRED transition
// cascades straight back to ACTIVE, appending both entries and bumping the
// repair counter. A VIOLATED transition bumps the violation counter and
// records the violating turn un-clamped (it feeds half-life, not history).
func (c *Constraint) Transition(turn int, next ConstraintState) {
	effective := turn
	if effective < c.IntroducedAt {
		effective = c.IntroducedAt
	}

	c.CurrentState = next
	c.History = append(c.History, StateEntry{Turn: effective, State: next})
	c.Lifespan = effective - c.IntroducedAt

	switch next {
	case StateViolated:
		c.TimesViolated++
		c.LastViolationAt = turn
	case StateRepaired:
		c.TimesRepaired++
		c.CurrentState = StateActive
		c.History = append(c.History, StateEntry{Turn: effective, State: StateActive})
	}
}

// Finalize marks a still-open constraint as SURVIVED at conversation end.
// Lifespan becomes the full distance from introduction to the turn count.
func (c *Constraint) Finalize(totalTurns int) {
	if c.CurrentState != StateActive && c.CurrentState != StateStated {
		return
	}
	c.CurrentState = StateSurvived
	c.History = append(c.History, StateEntry{Turn: totalTurns, State: StateSurvived})
	c.Lifespan = totalTurns - c.IntroducedAt
}

// StateAt returns the effective state at turn t, or "" if the constraint had
// no history entry at or before t.
func (c *Constraint) StateAt(t int) ConstraintState {
	var last ConstraintState
	for _, e := range c.History {
		if e.Turn > t {
			break
		}
		last = e.State
	}
	return last
}

// ConstraintTrack aggregates the per-constraint lifecycle data for one
// conversation, plus the count of violations that matched no constraint.
type ConstraintTrack struct {
	ConversationID      string        `json:"conversation_id"`
	Constraints         []*Constraint `json:"constraints"`
	UnmatchedViolations int           `json:"unmatched_violations"`
}

// SurvivedCount returns how many constraints ended in SURVIVED.
func (ct *ConstraintTrack) SurvivedCount() int {
	n := 0
	for _, c := range ct.Constraints {
		if c.CurrentState == StateSurvived {
			n++
		}
	}
	return n
}

// InteractionMode is the behavioral register of a turn pair.
type InteractionMode string

const (
	// ModeListener means the user is providing information, not asking
	// for output.
	ModeListener InteractionMode = "LISTENER"

	// ModeAdvisor means the user wants evaluation or recommendation.
	ModeAdvisor InteractionMode = "ADVISOR"

	// ModeExecutor means the user wants a deliverable produced.
	ModeExecutor InteractionMode = "EXECUTOR"

	// ModeAmbiguous means the user turn carries no clear mode signal.
	ModeAmbiguous InteractionMode = "AMBIGUOUS"
)

// ModeViolationKind names a requested/enacted mode mismatch.
type ModeViolationKind string

const (
	// ViolationUnsolicitedAdvice: user was in LISTENER mode, assistant
	// advised or executed anyway.
	ViolationUnsolicitedAdvice ModeViolationKind = "UNSOLICITED_ADVICE"

	// ViolationPrematureExecution: user wanted evaluation, assistant
	// produced the deliverable.
	ViolationPrematureExecution ModeViolationKind = "PREMATURE_EXECUTION"

	// ViolationExecutionAvoidance: user wanted a deliverable, assistant
	// kept listening or advising.
	ViolationExecutionAvoidance ModeViolationKind = "EXECUTION_AVOIDANCE"
)

// ModeAnnotation is one user/assistant turn-pair judgment. TurnIndex is the
// user turn of the pair. Immutable.
type ModeAnnotation struct {
	TurnIndex     int               `json:"turn_index" validate:"gte=0"`
	UserRequested InteractionMode   `json:"user_requested" validate:"required"`
	AIEnacted     InteractionMode   `json:"ai_enacted" validate:"required"`
	IsViolation   bool              `json:"is_violation"`
	ViolationKind ModeViolationKind `json:"violation_type,omitempty"`
	Confidence    float64           `json:"confidence" validate:"gte=0,lte=1"`
	Method        DetectionMethod   `json:"method" validate:"required"`
}

// ViolationEvent is a discrete breach of a constraint or of the interaction
// mode. ConstraintID is the literal "mode" for mode breaches.
type ViolationEvent struct {
	Index         int    `json:"violation_idx" validate:"gte=0"`
	TurnIndex     int    `json:"turn_index" validate:"gte=0"`
	ConstraintID  string `json:"constraint_id" validate:"required"`
	ViolationType string `json:"violation_type" validate:"required"`
	WasRepaired   bool   `json:"was_repaired"`
	Ordinal       int    `json:"violation_ord" validate:"gte=1"`
}

// ConstraintViolationType is the ViolationType for constraint breaches; mode
// breaches carry their ModeViolationKind instead.
const ConstraintViolationType = "constraint_violation"

// Evidence carries the upstream classifier's turn-index hints.
type Evidence struct {
	ConstraintTurns []int `json:"constraint_turns"`
	ViolationTurns  []int `json:"violation_turns"`
	RepairTurns     []int `json:"repair_turns"`
}

// Classification is the upstream per-conversation classification record the
// core consumes. StabilityClass, TaskArchitecture and ConstraintHardness
// pass through untouched to the graph's Conversation node.
type Classification struct {
	TaskGoal           string   `json:"task_goal"`
	PrimaryConstraints []string `json:"primary_constraints"`
	Evidence           Evidence `json:"evidence"`
	StabilityClass     string   `json:"stability_class"`
	TaskArchitecture   string   `json:"task_architecture"`
	ConstraintHardness string   `json:"constraint_hardness"`
	Source             string   `json:"source"`
	Domain             string   `json:"domain"`
}

// ConversationMetrics is the per-conversation diagnostic record. All ratios
// are zero-safe; ConstraintHalfLife is nil when no constraint was violated.
type ConversationMetrics struct {
	ConversationID         string   `json:"conversation_id"`
	DriftVelocity          float64  `json:"drift_velocity"`
	AgencyTax              float64  `json:"agency_tax"`
	ConstraintHalfLife     *float64 `json:"constraint_half_life"`
	ConstraintSurvivalRate float64  `json:"constraint_survival_rate"`
	ModeViolationRate      float64  `json:"mode_violation_rate"`
	RepairSuccessRate      float64  `json:"repair_success_rate"`
	MeanConstraintLifespan float64  `json:"mean_constraint_lifespan"`
	ModeEntropy            float64  `json:"mode_entropy"`
	MoveCoverage           float64  `json:"move_coverage"`
	TotalViolations        int      `json:"total_violations"`
	TotalRepairs           int      `json:"total_repairs"`
	TotalConstraints       int      `json:"total_constraints"`
	TotalTurns             int      `json:"total_turns"`
	StabilityClass         string   `json:"stability_class"`
	TaskArchitecture       string   `json:"task_architecture"`
	ConstraintHardness     string   `json:"constraint_hardness"`
}
