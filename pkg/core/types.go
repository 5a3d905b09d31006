package core

import (
	"github.com/memgate/memgate-go/pkg/gate"
	"github.com/memgate/memgate-go/pkg/planner"
	"github.com/memgate/memgate-go/pkg/storage"
)

// Message roles, matching the conventions of chat completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation transcript.
type Message struct {
	// Role is the speaker: system, user, or assistant.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// TurnState carries what PreTurn decided about a turn into PostTurn.
//
// It is a plain value scoped to a single turn: the caller receives it from
// PreTurn and hands it back to PostTurn for the same turn. The engine keeps
// no per-turn state of its own, so concurrent turns for different users (or
// the same user) cannot observe each other's decisions.
type TurnState struct {
	// FirstTurn is true when the turn opened the conversation.
	FirstTurn bool

	// CommandHandled is true when the user input was consumed as a
	// command, successfully or not. It forces PostTurn to skip saving.
	CommandHandled bool

	// InjectionMode records how memories were selected for the turn.
	InjectionMode planner.Mode
}

// PreTurnResult is what the engine produced before the model is called.
type PreTurnResult struct {
	// State must be passed to PostTurn for this turn.
	State TurnState

	// CommandResponse is the command output to show the user. Non-empty
	// only when State.CommandHandled is true; the model should not be
	// called for the turn.
	CommandResponse string

	// Injection is the rendered memory block to prepend to the model
	// context. Empty when nothing was injected.
	Injection string

	// Plan is the full selection outcome, for callers that want the
	// individual memories and scores.
	Plan planner.Plan
}

// PostTurnResult reports what the engine persisted after a turn.
type PostTurnResult struct {
	// Saved is true when a memory was persisted.
	Saved bool

	// Memory is the persisted record. Nil unless Saved is true.
	Memory *storage.Memory

	// Reason explains a skip. gate.SkipNone when Saved is true.
	Reason gate.SkipReason
}
