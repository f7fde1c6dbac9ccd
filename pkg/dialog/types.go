// Package dialog runs the conversation loop: listen, generate, speak, and
// the barge-in race between playback and interruption detection.
//
// The Coordinator owns the turn state machine. Playback owns one cancellable
// speaking session. Everything device- or collaborator-facing is injected as
// an interface so the loop itself is testable without hardware.
package dialog

// TurnState is the coordinator's current phase.
type TurnState int

const (
	// StateIdle is between turns.
	StateIdle TurnState = iota

	// StateListening is an active listening session.
	StateListening

	// StateGenerating is an in-flight generation request.
	StateGenerating

	// StateSpeakingAndListening is the barge-in race: playback running
	// with a dedicated interruption listener alongside it.
	StateSpeakingAndListening

	// StateShuttingDown is the terminal state after app-level cancellation.
	StateShuttingDown
)

// String returns the state name.
func (s TurnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateGenerating:
		return "generating"
	case StateSpeakingAndListening:
		return "speaking"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// SpeakResult is the terminal outcome of one playback session.
type SpeakResult int

const (
	// SpeakCompleted means the audio played to its natural end.
	SpeakCompleted SpeakResult = iota

	// SpeakInterrupted means cancellation stopped playback early.
	SpeakInterrupted

	// SpeakFailed means synthesis or the playback device failed.
	SpeakFailed
)

// String returns the result name.
func (r SpeakResult) String() string {
	switch r {
	case SpeakCompleted:
		return "completed"
	case SpeakInterrupted:
		return "interrupted"
	case SpeakFailed:
		return "failed"
	default:
		return "unknown"
	}
}
