package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voxloop/voxloop/pkg/generate"
	"github.com/voxloop/voxloop/pkg/transcribe"
)

type fakeListener struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, ctx context.Context, maxDuration time.Duration) (transcribe.Utterance, error)
}

func (f *fakeListener) Recognize(ctx context.Context, maxDuration time.Duration) (transcribe.Utterance, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call, ctx, maxDuration)
}

func (f *fakeListener) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResponder struct {
	mu     sync.Mutex
	inputs []string
	fn     func(input string) generate.Reply
}

func (f *fakeResponder) Respond(ctx context.Context, utterance string) generate.Reply {
	f.mu.Lock()
	f.inputs = append(f.inputs, utterance)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(utterance)
	}
	return generate.Reply{Kind: generate.ReplyOK, Text: "re: " + utterance}
}

func (f *fakeResponder) got() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.inputs))
	copy(out, f.inputs)
	return out
}

type fakeSpeaker struct {
	mu    sync.Mutex
	texts []string
	fn    func(ctx context.Context, text string) (SpeakResult, error)
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) (SpeakResult, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, text)
	}
	return SpeakCompleted, nil
}

func (f *fakeSpeaker) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.texts))
	copy(out, f.texts)
	return out
}

type eventRecorder struct {
	mu      sync.Mutex
	speaks  []SpeakResult
	errs    []error
	onSpeak func(SpeakResult)
}

func (e *eventRecorder) OnStateChange(string, TurnState)   {}
func (e *eventRecorder) OnTranscript(string, string, bool) {}
func (e *eventRecorder) OnReply(string, string)            {}

func (e *eventRecorder) OnSpeak(turnID string, result SpeakResult) {
	e.mu.Lock()
	e.speaks = append(e.speaks, result)
	cb := e.onSpeak
	e.mu.Unlock()
	if cb != nil {
		cb(result)
	}
}

func (e *eventRecorder) OnError(turnID string, err error) {
	e.mu.Lock()
	e.errs = append(e.errs, err)
	e.mu.Unlock()
}

func (e *eventRecorder) speakResults() []SpeakResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]SpeakResult, len(e.speaks))
	copy(out, e.speaks)
	return out
}

// blockEmpty models a listener session that hears nothing until cancelled.
func blockEmpty(ctx context.Context) (transcribe.Utterance, error) {
	<-ctx.Done()
	return transcribe.Utterance{Interrupted: true}, nil
}

func heard(text string) transcribe.Utterance {
	return transcribe.Utterance{Text: text, Segments: 1}
}

func fastConfig() CoordinatorConfig {
	return CoordinatorConfig{
		ListenTimeout: time.Second,
		BargeTimeout:  time.Second,
		ErrorBackoff:  10 * time.Millisecond,
	}
}

func runLoop(t *testing.T, c *Coordinator, ctx context.Context) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestTurnCompletesNaturally(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		if call == 1 {
			return heard("hello"), nil
		}
		return blockEmpty(ctx)
	}}
	responder := &fakeResponder{}
	speaker := &fakeSpeaker{fn: func(ctx context.Context, text string) (SpeakResult, error) {
		time.Sleep(20 * time.Millisecond)
		return SpeakCompleted, nil
	}}
	events := &eventRecorder{onSpeak: func(SpeakResult) { cancel() }}

	c := NewCoordinator(listener, responder, speaker, nil,
		WithConfig(fastConfig()), WithEventSink(events))
	runLoop(t, c, ctx)

	if got := responder.got(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("responder inputs = %v, want [hello]", got)
	}
	if got := speaker.spoken(); len(got) != 1 || got[0] != "re: hello" {
		t.Errorf("spoken = %v, want [re: hello]", got)
	}
	if results := events.speakResults(); len(results) != 1 || results[0] != SpeakCompleted {
		t.Errorf("speak results = %v, want [completed]", results)
	}

	state, _ := c.State()
	if state != StateShuttingDown {
		t.Errorf("final state = %s, want shutting_down", state)
	}
}

func TestBargeInCarriesPendingInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		switch call {
		case 1:
			return heard("hi"), nil
		case 2:
			// Interruption during turn 1 playback.
			time.Sleep(30 * time.Millisecond)
			return heard("stop"), nil
		default:
			return blockEmpty(ctx)
		}
	}}
	responder := &fakeResponder{fn: func(input string) generate.Reply {
		if input == "stop" {
			// Turn 2 reached generation without a new listen; done.
			cancel()
		}
		return generate.Reply{Kind: generate.ReplyOK, Text: "re: " + input}
	}}
	speaker := &fakeSpeaker{fn: func(ctx context.Context, text string) (SpeakResult, error) {
		// Playback that would run far longer than the interruption.
		<-ctx.Done()
		return SpeakInterrupted, nil
	}}
	metrics := NewMetricsCollector()

	c := NewCoordinator(listener, responder, speaker, nil,
		WithConfig(fastConfig()), WithMetrics(metrics))
	runLoop(t, c, ctx)

	got := responder.got()
	if len(got) != 2 || got[0] != "hi" || got[1] != "stop" {
		t.Fatalf("responder inputs = %v, want [hi stop]", got)
	}
	// Turn 2 must not have run a primary listen: call 1 primary, call 2
	// barge, call 3 at most (turn 2's barge under a cancelled scope).
	if n := listener.callCount(); n > 3 {
		t.Errorf("listener called %d times, interruption input was re-listened", n)
	}
	if s := metrics.Snapshot(); s.BargeIns != 1 {
		t.Errorf("got %d barge-ins, want 1", s.BargeIns)
	}
}

func TestPlaybackCompletionDiscardsListenerPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		switch call {
		case 1:
			return heard("hi"), nil
		case 2:
			// Barge listener: nothing settles before playback ends; it
			// unwinds with a partial once cancelled.
			<-ctx.Done()
			return transcribe.Utterance{Text: "partial", Segments: 1, Interrupted: true}, nil
		default:
			cancel()
			return transcribe.Utterance{}, nil
		}
	}}
	responder := &fakeResponder{}
	speaker := &fakeSpeaker{fn: func(ctx context.Context, text string) (SpeakResult, error) {
		time.Sleep(30 * time.Millisecond)
		return SpeakCompleted, nil
	}}
	metrics := NewMetricsCollector()

	c := NewCoordinator(listener, responder, speaker, nil,
		WithConfig(fastConfig()), WithMetrics(metrics))
	runLoop(t, c, ctx)

	got := responder.got()
	if len(got) != 1 || got[0] != "hi" {
		t.Fatalf("responder inputs = %v, want [hi]: cancelled-listener partials must be discarded", got)
	}
	if s := metrics.Snapshot(); s.BargeIns != 0 {
		t.Errorf("got %d barge-ins, want 0", s.BargeIns)
	}
}

func TestEmptyListenReListens(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		if call >= 3 {
			cancel()
		}
		return transcribe.Utterance{}, nil
	}}
	responder := &fakeResponder{}
	speaker := &fakeSpeaker{}

	c := NewCoordinator(listener, responder, speaker, nil, WithConfig(fastConfig()))
	runLoop(t, c, ctx)

	if listener.callCount() < 3 {
		t.Errorf("listener called %d times, want re-listening on empty", listener.callCount())
	}
	if got := responder.got(); len(got) != 0 {
		t.Errorf("responder called with %v for empty utterances", got)
	}
	if got := speaker.spoken(); len(got) != 0 {
		t.Errorf("speaker called with %v for empty utterances", got)
	}
}

func TestGenerationFailureDropsTurn(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		if call == 1 {
			return heard("hi"), nil
		}
		cancel()
		return transcribe.Utterance{}, nil
	}}
	responder := &fakeResponder{fn: func(string) generate.Reply {
		return generate.Reply{Kind: generate.ReplyFailed, Err: errors.New("model down")}
	}}
	speaker := &fakeSpeaker{}
	metrics := NewMetricsCollector()

	c := NewCoordinator(listener, responder, speaker, nil,
		WithConfig(fastConfig()), WithMetrics(metrics))
	runLoop(t, c, ctx)

	if got := speaker.spoken(); len(got) != 0 {
		t.Errorf("speaker called with %v after failed generation", got)
	}
	if s := metrics.Snapshot(); s.FailedTurns != 1 {
		t.Errorf("got %d failed turns, want 1", s.FailedTurns)
	}
}

func TestListenerErrorBacksOffAndContinues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		if call == 1 {
			return transcribe.Utterance{}, errors.New("mic exploded")
		}
		cancel()
		return transcribe.Utterance{}, nil
	}}
	events := &eventRecorder{}
	metrics := NewMetricsCollector()

	c := NewCoordinator(listener, &fakeResponder{}, &fakeSpeaker{}, nil,
		WithConfig(fastConfig()), WithEventSink(events), WithMetrics(metrics))
	runLoop(t, c, ctx)

	if listener.callCount() < 2 {
		t.Error("loop did not continue after listener error")
	}
	if s := metrics.Snapshot(); s.FailedTurns != 1 {
		t.Errorf("got %d failed turns, want 1", s.FailedTurns)
	}
	events.mu.Lock()
	errCount := len(events.errs)
	events.mu.Unlock()
	if errCount != 1 {
		t.Errorf("got %d error events, want 1", errCount)
	}
}

func TestPanicInTurnIsContained(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		if call == 1 {
			return heard("hi"), nil
		}
		cancel()
		return transcribe.Utterance{}, nil
	}}
	responder := &fakeResponder{fn: func(string) generate.Reply {
		panic("generator bug")
	}}
	metrics := NewMetricsCollector()

	c := NewCoordinator(listener, responder, &fakeSpeaker{}, nil,
		WithConfig(fastConfig()), WithMetrics(metrics))
	runLoop(t, c, ctx)

	if listener.callCount() < 2 {
		t.Error("loop did not survive the panic")
	}
	if s := metrics.Snapshot(); s.FailedTurns != 1 {
		t.Errorf("got %d failed turns, want 1", s.FailedTurns)
	}
}

func TestShutdownDuringListen(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	listener := &fakeListener{fn: func(call int, ctx context.Context, _ time.Duration) (transcribe.Utterance, error) {
		return blockEmpty(ctx)
	}}

	c := NewCoordinator(listener, &fakeResponder{}, &fakeSpeaker{}, nil, WithConfig(fastConfig()))

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	runLoop(t, c, ctx)

	state, _ := c.State()
	if state != StateShuttingDown {
		t.Errorf("final state = %s, want shutting_down", state)
	}
}
