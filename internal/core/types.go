// Package core contains the core domain types for parley.
package core

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the current phase of a debate session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusStarting     Status = "starting"
	StatusDebating     Status = "debating"
	StatusSynthesizing Status = "synthesizing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// CanTransition reports whether the session may move from one status to
// another. Transitions are monotonic; error is reachable from any
// non-terminal state.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	switch from {
	case StatusIdle:
		return to == StatusStarting
	case StatusStarting:
		return to == StatusDebating
	case StatusDebating:
		return to == StatusSynthesizing
	case StatusSynthesizing:
		return to == StatusComplete
	}
	return false
}

// HumanParticipantID attributes interjection messages in the transcript.
const HumanParticipantID = "human"

// Participant is one debating AI persona, bound to a backend and role.
// Built once at session start; immutable for the session's lifetime.
type Participant struct {
	ID           string `json:"id"`
	BackendID    string `json:"backend_id"`
	Role         string `json:"role"`
	Name         string `json:"name"`
	SystemPrompt string `json:"-"`
}

// InterjectionKind classifies a human interjection.
type InterjectionKind string

const (
	InterjectClarification InterjectionKind = "clarification"
	InterjectChallenge     InterjectionKind = "challenge"
	InterjectRedirect      InterjectionKind = "redirect"
)

// Valid reports whether the kind is one of the known values.
func (k InterjectionKind) Valid() bool {
	switch k {
	case InterjectClarification, InterjectChallenge, InterjectRedirect:
		return true
	}
	return false
}

// Interjection is a human-authored message steering a running debate.
type Interjection struct {
	Content         string           `json:"content"`
	Kind            InterjectionKind `json:"kind"`
	TargetMessageID string           `json:"target_message_id,omitempty"`
}

// Message is a single turn's contribution in the transcript.
// Append-only; the voting subsystem attaches tallies externally by ID.
type Message struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Role          string    `json:"role"`
	Turn          int       `json:"turn"`
	Content       string    `json:"content"`
	Reasoning     string    `json:"reasoning,omitempty"`
	IsAgreement   bool      `json:"is_agreement"`
	Interjection  *Interjection `json:"interjection,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Consensus is the synthesized, unified answer produced once a debate
// concludes. ImplementedAt is set by an external caller after the user
// acts on it.
type Consensus struct {
	Summary       string     `json:"summary"`
	ActionItems   []string   `json:"action_items,omitempty"`
	ImplementedAt *time.Time `json:"implemented_at,omitempty"`
}

// CostRow is one backend's accumulated usage within a session.
type CostRow struct {
	BackendID    string  `json:"backend_id"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// CostSnapshot is the per-backend and total token/cost accounting for a
// session. Derived additively; never decreases within a session.
type CostSnapshot struct {
	Rows              []CostRow `json:"rows,omitempty"`
	TotalInputTokens  int       `json:"total_input_tokens"`
	TotalOutputTokens int       `json:"total_output_tokens"`
	TotalCost         float64   `json:"total_cost"`
}

// Session is one debate: its transcript, status, cost accounting, and
// eventual consensus. Owned exclusively by the orchestrator running it.
type Session struct {
	ID           string        `json:"id"`
	Question     string        `json:"question"`
	AppContext   string        `json:"app_context,omitempty"`
	Participants []Participant `json:"participants"`
	Messages     []*Message    `json:"messages"`
	Status       Status        `json:"status"`
	StatusReason string        `json:"status_reason,omitempty"`
	MaxTurns     int           `json:"max_turns"`
	Cost         CostSnapshot  `json:"cost"`
	Consensus    *Consensus    `json:"consensus,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
}

// SessionSummary is a lightweight representation for listing sessions.
type SessionSummary struct {
	ID           string    `json:"id"`
	Question     string    `json:"question"`
	Status       Status    `json:"status"`
	MessageCount int       `json:"message_count"`
	TotalCost    float64   `json:"total_cost"`
	CreatedAt    time.Time `json:"created_at"`
}

// ParticipantByID returns the session participant with the given ID, or
// nil for unknown IDs (including the human).
func (s *Session) ParticipantByID(id string) *Participant {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return &s.Participants[i]
		}
	}
	return nil
}

// LastMessage returns the most recent transcript message, or nil.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// NewID generates a unique identifier.
func NewID() string {
	return uuid.New().String()
}
