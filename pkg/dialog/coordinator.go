package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxloop/voxloop/pkg/generate"
	"github.com/voxloop/voxloop/pkg/transcribe"
)

// Recognizer runs one listening session. *transcribe.Listener implements it.
type Recognizer interface {
	Recognize(ctx context.Context, maxDuration time.Duration) (transcribe.Utterance, error)
}

// Responder generates one typed reply. *generate.Responder implements it.
type Responder interface {
	Respond(ctx context.Context, utterance string) generate.Reply
}

// Speaker runs one playback session. *Playback implements it.
type Speaker interface {
	Speak(ctx context.Context, text string) (SpeakResult, error)
}

// CoordinatorConfig holds loop timing.
type CoordinatorConfig struct {
	// ListenTimeout bounds a primary listening session.
	ListenTimeout time.Duration

	// BargeTimeout bounds the interruption listener during playback.
	BargeTimeout time.Duration

	// ErrorBackoff is the pause after a turn-boundary error before the
	// loop re-listens.
	ErrorBackoff time.Duration
}

// DefaultCoordinatorConfig returns a CoordinatorConfig with sensible defaults.
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ListenTimeout: 15 * time.Second,
		BargeTimeout:  60 * time.Second,
		ErrorBackoff:  time.Second,
	}
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithConfig sets the loop timing.
func WithConfig(cfg CoordinatorConfig) CoordinatorOption {
	return func(c *Coordinator) {
		c.cfg = cfg
	}
}

// WithEventSink sets the event sink.
func WithEventSink(sink EventSink) CoordinatorOption {
	return func(c *Coordinator) {
		c.events = sink
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *MetricsCollector) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// Coordinator runs the conversation-turn state machine.
//
// Each iteration is one turn: listen (or consume a pending interruption),
// generate, then speak while listening for barge-in. A barge-in utterance
// carries into the next turn as its input, skipping the listen phase.
type Coordinator struct {
	listener Recognizer
	reply    Responder
	playback Speaker

	cfg     CoordinatorConfig
	logger  *slog.Logger
	events  EventSink
	metrics *MetricsCollector

	mu     sync.Mutex
	state  TurnState
	turnID string
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(listener Recognizer, responder Responder, playback Speaker, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		listener: listener,
		reply:    responder,
		playback: playback,
		cfg:      DefaultCoordinatorConfig(),
		logger:   logger.With("component", "dialog.coordinator"),
		events:   NopEventSink{},
		metrics:  NewMetricsCollector(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetEventSink replaces the event sink. Call before Run.
func (c *Coordinator) SetEventSink(sink EventSink) {
	if sink == nil {
		sink = NopEventSink{}
	}
	c.events = sink
}

// State returns the current turn state and turn ID.
func (c *Coordinator) State() (TurnState, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.turnID
}

// Metrics returns the metrics collector.
func (c *Coordinator) Metrics() *MetricsCollector {
	return c.metrics
}

func (c *Coordinator) setState(state TurnState, turnID string) {
	c.mu.Lock()
	c.state = state
	c.turnID = turnID
	c.mu.Unlock()

	c.logger.Debug("state change", "state", state.String(), "turn_id", turnID)
	c.events.OnStateChange(turnID, state)
}

// Run drives the loop until ctx is cancelled. Turn-boundary errors are
// logged and absorbed with a short backoff; only shutdown ends the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("dialogue loop starting",
		"listen_timeout", c.cfg.ListenTimeout,
		"barge_timeout", c.cfg.BargeTimeout,
	)

	var pending string
	for {
		if ctx.Err() != nil {
			c.shutdown()
			return nil
		}

		turnID := uuid.NewString()
		err := c.safeTurn(ctx, turnID, &pending)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			c.shutdown()
			return nil
		}

		c.logger.Error("turn failed", "turn_id", turnID, "error", err)
		c.events.OnError(turnID, err)
		c.metrics.Record(TurnMetrics{TurnID: turnID, Outcome: "failed"})
		pending = ""

		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-time.After(c.cfg.ErrorBackoff):
		}
	}
}

func (c *Coordinator) shutdown() {
	c.setState(StateShuttingDown, "")
	c.logger.Info("dialogue loop stopped")
}

// safeTurn converts a turn panic into a turn-boundary error so a bug in
// one turn never takes the process down.
func (c *Coordinator) safeTurn(ctx context.Context, turnID string, pending *string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("turn panicked: %v", r)
		}
	}()
	return c.runTurn(ctx, turnID, pending)
}

func (c *Coordinator) runTurn(ctx context.Context, turnID string, pending *string) error {
	var m TurnMetrics
	m.TurnID = turnID

	input := *pending
	*pending = ""

	if input == "" {
		c.setState(StateListening, turnID)

		listenStart := time.Now()
		utt, err := c.listener.Recognize(ctx, c.cfg.ListenTimeout)
		m.ListenMs = time.Since(listenStart).Milliseconds()
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		if utt.IsEmpty() {
			c.logger.Debug("nothing heard, re-listening", "turn_id", turnID)
			c.setState(StateIdle, turnID)
			m.Outcome = "empty"
			c.metrics.Record(m)
			return nil
		}

		input = utt.Text
		c.logger.Info("heard", "turn_id", turnID, "text", input, "segments", utt.Segments)
		c.events.OnTranscript(turnID, input, true)
	} else {
		c.logger.Info("processing interruption", "turn_id", turnID, "text", input)
	}

	c.setState(StateGenerating, turnID)
	reply := c.reply.Respond(ctx, input)
	m.GenerateMs = reply.LatencyMs

	switch reply.Kind {
	case generate.ReplyEmpty:
		c.setState(StateIdle, turnID)
		m.Outcome = "empty"
		c.metrics.Record(m)
		return nil
	case generate.ReplyFailed:
		// Dropped turn, not a loop failure: log and re-listen.
		c.logger.Warn("generation failed, dropping turn", "turn_id", turnID, "error", reply.Err)
		c.events.OnError(turnID, reply.Err)
		c.setState(StateIdle, turnID)
		m.Outcome = "failed"
		c.metrics.Record(m)
		return nil
	}

	c.events.OnReply(turnID, reply.Text)
	c.setState(StateSpeakingAndListening, turnID)

	speakStart := time.Now()
	interruption, result := c.raceSpeakListen(ctx, turnID, reply.Text)
	m.SpeakMs = time.Since(speakStart).Milliseconds()

	*pending = interruption
	m.BargedIn = interruption != ""
	m.Outcome = result.String()
	c.metrics.Record(m)

	c.setState(StateIdle, turnID)
	return nil
}

// raceSpeakListen runs playback against a dedicated interruption listener
// under a shared child scope, decides the turn on the first decisive event,
// and drains both operations before returning.
//
// Decisive events: playback reaching any terminal outcome, or the listener
// returning a non-empty utterance. A listener that ends empty (or fails)
// while playback is still running is not decisive; playback continues. Once
// playback completes first, any partial text the cancelled listener returns
// is discarded.
func (c *Coordinator) raceSpeakListen(ctx context.Context, turnID, text string) (string, SpeakResult) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type speakOutcome struct {
		result SpeakResult
		err    error
	}
	type listenOutcome struct {
		utt transcribe.Utterance
		err error
	}

	speakCh := make(chan speakOutcome, 1)
	listenCh := make(chan listenOutcome, 1)

	go func() {
		result, err := c.playback.Speak(raceCtx, text)
		speakCh <- speakOutcome{result, err}
	}()
	go func() {
		utt, err := c.listener.Recognize(raceCtx, c.cfg.BargeTimeout)
		listenCh <- listenOutcome{utt, err}
	}()

	var (
		speak      *speakOutcome
		listen     *listenOutcome
		decided    bool
		pendingIn  string
		speakFinal SpeakResult
	)

	for speak == nil || listen == nil {
		select {
		case s := <-speakCh:
			speak = &s
			if !decided {
				decided = true
				speakFinal = s.result
				// Playback done first: stop the listener and discard
				// whatever partial text it unwinds with.
				cancel()
			}

		case l := <-listenCh:
			listen = &l
			switch {
			case decided:
				// Race already settled by playback; drain only.
			case l.err == nil && !l.utt.IsEmpty():
				// Barge-in: a settled, non-empty utterance pre-empts
				// playback. Interims never reach this point.
				decided = true
				pendingIn = l.utt.Text
				c.logger.Info("barge-in detected", "turn_id", turnID, "text", pendingIn)
				c.events.OnTranscript(turnID, pendingIn, true)
				cancel()
			case l.err != nil:
				// Listener died; playback keeps going.
				c.logger.Warn("interruption listener failed", "turn_id", turnID, "error", l.err)
			default:
				// Listener ended with nothing; playback keeps going.
				c.logger.Debug("interruption listener ended empty", "turn_id", turnID)
			}
		}
	}

	if decided && pendingIn != "" {
		speakFinal = SpeakInterrupted
	} else if speak != nil {
		speakFinal = speak.result
	}
	if speak.err != nil {
		c.logger.Warn("playback failed", "turn_id", turnID, "error", speak.err)
		c.events.OnError(turnID, speak.err)
	}

	c.events.OnSpeak(turnID, speakFinal)
	c.logger.Info("turn spoken",
		"turn_id", turnID,
		"result", speakFinal.String(),
		"barged_in", pendingIn != "",
	)
	return pendingIn, speakFinal
}
