// Package turn implements the conversation engine: the state machine that
// turns segmented user speech into transcribed user turns, drives reply
// generation and synthesis for agent turns, and enforces the barge-in
// protocol that lets the user interrupt the agent mid-utterance.
//
// The [Coordinator] is the hub of the pipeline. No stage talks to another
// directly: segment events, transcripts, reply sentences, and synthesized
// audio all pass through it, which is what makes cancellation and ordering
// tractable.
package turn

import "time"

// Role identifies which party a turn belongs to.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// UserTurnState tracks a user turn from first detected speech to its
// terminal state.
type UserTurnState int

const (
	// UserListening means the segment is open and audio is streaming to the
	// recognizer.
	UserListening UserTurnState = iota

	// UserTranscribing means the segment has closed and the final transcript
	// is pending.
	UserTranscribing

	// UserFinalized means a non-empty final transcript was produced and the
	// turn entered history.
	UserFinalized

	// UserDiscarded means the segment produced no usable speech; the turn is
	// dropped without reaching the planner or history.
	UserDiscarded
)

// String returns the lowercase state name.
func (s UserTurnState) String() string {
	switch s {
	case UserListening:
		return "listening"
	case UserTranscribing:
		return "transcribing"
	case UserFinalized:
		return "finalized"
	case UserDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// AgentTurnState tracks an agent turn from planning to its terminal state.
type AgentTurnState int

const (
	// AgentPlanning means reply generation is in flight but no sentence has
	// been produced yet.
	AgentPlanning AgentTurnState = iota

	// AgentSynthesizing means at least one reply sentence has been handed to
	// the synthesizer but no audio has reached the sink.
	AgentSynthesizing

	// AgentSpeaking means synthesized audio is flowing to the sink.
	AgentSpeaking

	// AgentInterrupted means the turn was barged in on; its cancel token has
	// fired and remaining output is being discarded.
	AgentInterrupted

	// AgentCompleted is the terminal state for every agent turn, interrupted
	// or not.
	AgentCompleted
)

// String returns the lowercase state name.
func (s AgentTurnState) String() string {
	switch s {
	case AgentPlanning:
		return "planning"
	case AgentSynthesizing:
		return "synthesizing"
	case AgentSpeaking:
		return "speaking"
	case AgentInterrupted:
		return "interrupted"
	case AgentCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Turn is one archived conversational exchange. Turns are immutable once
// appended to the [History].
type Turn struct {
	// ID is the turn's unique identifier.
	ID string

	// Role is who produced the turn.
	Role Role

	// Text is the user's transcript or the agent's reply text. For an
	// interrupted agent turn it holds only what was actually generated before
	// the cut.
	Text string

	// Interrupted marks an agent turn that was barged in on.
	Interrupted bool

	// At is when the turn reached its terminal state.
	At time.Time
}
