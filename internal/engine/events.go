package engine

import (
	"time"

	"github.com/parleyhq/parley/internal/core"
)

// EventType identifies what an Event carries.
type EventType string

const (
	// EventChunk is a streamed fragment of a participant's in-progress turn.
	EventChunk EventType = "chunk"
	// EventMessage is a completed message appended to the session log.
	EventMessage EventType = "message"
	// EventStatus is a session status transition.
	EventStatus EventType = "status"
	// EventError is a fatal session error. Always followed by a status
	// event carrying core.StatusError.
	EventError EventType = "error"
)

// Event is what subscribers receive as a debate progresses. Exactly one
// of the payload fields is set, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Time      time.Time `json:"time"`

	Chunk   *ChunkEvent   `json:"chunk,omitempty"`
	Message *core.Message `json:"message,omitempty"`
	Status  core.Status   `json:"status,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// ChunkEvent is a streamed text fragment attributed to a participant.
type ChunkEvent struct {
	ParticipantID string `json:"participantId"`
	Turn          int    `json:"turn"`
	Text          string `json:"text"`
	Reasoning     bool   `json:"reasoning,omitempty"`
}
