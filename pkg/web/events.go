package web

import (
	"time"

	"github.com/voxloop/voxloop/pkg/dialog"
)

// Event is one loop event frame broadcast to dashboard clients.
type Event struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id"`
	State  string `json:"state,omitempty"`
	Text   string `json:"text,omitempty"`
	Final  bool   `json:"final,omitempty"`
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Time   string `json:"time"`
}

func newEvent(eventType, turnID string) Event {
	return Event{
		Type:   eventType,
		TurnID: turnID,
		Time:   time.Now().Format(time.RFC3339),
	}
}

// OnStateChange implements dialog.EventSink.
func (s *Server) OnStateChange(turnID string, state dialog.TurnState) {
	e := newEvent("state", turnID)
	e.State = state.String()
	_ = s.statusHub.BroadcastJSON(e)
}

// OnTranscript implements dialog.EventSink.
func (s *Server) OnTranscript(turnID string, text string, final bool) {
	e := newEvent("transcript", turnID)
	e.Text = text
	e.Final = final
	s.addLog("transcript", text)
	_ = s.statusHub.BroadcastJSON(e)
}

// OnReply implements dialog.EventSink.
func (s *Server) OnReply(turnID string, text string) {
	e := newEvent("reply", turnID)
	e.Text = text
	s.addLog("reply", text)
	_ = s.statusHub.BroadcastJSON(e)
}

// OnSpeak implements dialog.EventSink.
func (s *Server) OnSpeak(turnID string, result dialog.SpeakResult) {
	e := newEvent("speak", turnID)
	e.Result = result.String()
	_ = s.statusHub.BroadcastJSON(e)
}

// OnError implements dialog.EventSink.
func (s *Server) OnError(turnID string, err error) {
	e := newEvent("error", turnID)
	if err != nil {
		e.Error = err.Error()
	}
	s.addLog("error", e.Error)
	_ = s.statusHub.BroadcastJSON(e)
}

// Verify Server implements dialog.EventSink at compile time.
var _ dialog.EventSink = (*Server)(nil)
