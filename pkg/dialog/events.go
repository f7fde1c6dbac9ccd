package dialog

// EventSink receives loop events for observability surfaces (dashboard,
// logs). Implementations must not block; they run on the coordinator
// goroutine.
type EventSink interface {
	// OnStateChange fires on every turn-state transition.
	OnStateChange(turnID string, state TurnState)

	// OnTranscript fires when a listening session produces text.
	OnTranscript(turnID string, text string, final bool)

	// OnReply fires when generation produces a response.
	OnReply(turnID string, text string)

	// OnSpeak fires when a playback session reaches a terminal outcome.
	OnSpeak(turnID string, result SpeakResult)

	// OnError fires on turn-boundary errors.
	OnError(turnID string, err error)
}

// NopEventSink discards all events.
type NopEventSink struct{}

func (NopEventSink) OnStateChange(string, TurnState)   {}
func (NopEventSink) OnTranscript(string, string, bool) {}
func (NopEventSink) OnReply(string, string)            {}
func (NopEventSink) OnSpeak(string, SpeakResult)       {}
func (NopEventSink) OnError(string, error)             {}

var _ EventSink = NopEventSink{}
