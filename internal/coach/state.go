// Package coach infers structured coaching state from user utterances.
//
// The tracker is a pure function over (previous state, utterance): no I/O,
// no clock, no randomness. Merges are monotonic — established facts are only
// overwritten when the new utterance carries fresh evidence, so a noisy turn
// never erases what earlier turns established.
package coach

import "slices"

// Stage identifies the process layer a user is operating in.
type Stage string

const (
	// StageReflexive covers habitual, automatic behavior.
	StageReflexive Stage = "reflexive"
	// StageRegulatory covers externally imposed rules, plans and monitoring.
	StageRegulatory Stage = "regulatory"
	// StageOngoingReflective covers active self-evaluation of current behavior.
	StageOngoingReflective Stage = "ongoing_reflective"
	// StageInitiatingReflective covers first deliberation about starting a change.
	StageInitiatingReflective Stage = "initiating_reflective"
)

// confidenceThreshold is the minimum stage score required to commit a stage
// to state. Evidence below it sets PendingQuestion instead.
const confidenceThreshold = 0.7

// State is the structured coaching state inferred from a conversation.
// The zero value is the state of a brand-new session.
type State struct {
	Stage           Stage    `json:"stage,omitempty"`
	StageConfidence float64  `json:"stage_confidence,omitempty"`
	Barrier         string   `json:"barrier,omitempty"`
	Activities      []string `json:"activities,omitempty"`
	TimeAvailable   string   `json:"time_available,omitempty"`

	// PendingQuestion marks that the last utterance carried stage evidence
	// too weak to commit, so the next reply should ask a clarifying question.
	PendingQuestion bool `json:"pending_question,omitempty"`
}

// Clone returns a deep copy. Activities is the only reference field.
func (s State) Clone() State {
	out := s
	out.Activities = slices.Clone(s.Activities)
	return out
}

// HasActivity reports whether the activity was already observed.
func (s State) HasActivity(name string) bool {
	return slices.Contains(s.Activities, name)
}
