package transcribe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxloop/voxloop/pkg/audioio"
)

func mockSources(opts ...audioio.MockSourceOption) audioio.SourceFactory {
	return func() (audioio.Source, error) {
		cfg := audioio.DefaultConfig()
		cfg.Backend = audioio.BackendMock
		opts = append(opts, audioio.WithRealtime())
		return audioio.NewMockSource(cfg, nil, opts...), nil
	}
}

func scriptedProvider(t *testing.T, script []ScriptStep, opts ...ScriptOption) (*MockProvider, *ScriptedStream) {
	t.Helper()
	stream := NewScriptedStream(script, opts...)
	provider := &MockProvider{
		OpenFunc: func(ctx context.Context, cfg StreamConfig) (Stream, error) {
			return stream, nil
		},
	}
	return provider, stream
}

func TestRecognizeAggregatesFinalsOnly(t *testing.T) {
	provider, _ := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "hal", Final: false, Stability: 0.4}},
		{Result: Result{Text: "haló", Final: true}},
	})
	l := NewListener(provider, mockSources(), nil)

	utt, err := l.Recognize(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if utt.Text != "haló" {
		t.Errorf("got text %q, want %q", utt.Text, "haló")
	}
	if utt.Segments != 1 {
		t.Errorf("got %d segments, want 1", utt.Segments)
	}
	if utt.Interrupted {
		t.Error("utterance should not be interrupted")
	}
}

func TestRecognizeConcatenatesFinalsInOrder(t *testing.T) {
	provider, _ := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "hel", Final: false}},
		{Result: Result{Text: "hello", Final: true}},
		{Result: Result{Text: "wor", Final: false}},
		{Result: Result{Text: "world", Final: true}},
	})
	l := NewListener(provider, mockSources(), nil)

	utt, err := l.Recognize(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if utt.Text != "hello world" {
		t.Errorf("got text %q, want %q", utt.Text, "hello world")
	}
	if utt.Segments != 2 {
		t.Errorf("got %d segments, want 2", utt.Segments)
	}
}

func TestRecognizeCancelAfterFinalReturnsPartial(t *testing.T) {
	provider, _ := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "stop", Final: true}},
		// Never reached: the session is cancelled after the first final.
		{Result: Result{Text: "never", Final: true}, Delay: time.Minute},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := NewListener(provider, mockSources(), nil,
		WithResultObserver(func(r Result) {
			if r.Final {
				cancel()
			}
		}),
	)

	utt, err := l.Recognize(ctx, time.Minute)
	if err != nil {
		t.Fatalf("cancelled session must not return an error, got: %v", err)
	}
	if utt.Text != "stop" {
		t.Errorf("got text %q, want %q", utt.Text, "stop")
	}
	if !utt.Interrupted {
		t.Error("utterance should be marked interrupted")
	}
}

func TestRecognizeCancelWithoutFinalsReturnsEmpty(t *testing.T) {
	provider, _ := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "mumble", Final: false}},
		{Result: Result{Text: "never", Final: true}, Delay: time.Minute},
	})
	l := NewListener(provider, mockSources(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	utt, err := l.Recognize(ctx, time.Minute)
	if err != nil {
		t.Fatalf("cancelled session must not return an error, got: %v", err)
	}
	if !utt.IsEmpty() {
		t.Errorf("got text %q, want empty", utt.Text)
	}
	if utt.Segments != 0 {
		t.Errorf("got %d segments, want 0", utt.Segments)
	}
	if !utt.Interrupted {
		t.Error("utterance should be marked interrupted")
	}
}

func TestRecognizeNoDeviceShortCircuits(t *testing.T) {
	provider := &MockProvider{}
	l := NewListener(provider, mockSources(audioio.WithNoDevice()), nil)

	_, err := l.Recognize(context.Background(), time.Second)
	if !errors.Is(err, audioio.ErrNoDevice) {
		t.Fatalf("got %v, want ErrNoDevice", err)
	}
	if n := provider.CallCount("Open"); n != 0 {
		t.Errorf("stream opened %d times despite missing device, want 0", n)
	}
}

func TestRecognizeStreamErrorFoldsToPartial(t *testing.T) {
	provider, _ := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "partial", Final: true}},
	}, WithEndError(errors.New("connection reset")))
	l := NewListener(provider, mockSources(), nil)

	utt, err := l.Recognize(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("stream error must fold into the utterance, got: %v", err)
	}
	if utt.Text != "partial" {
		t.Errorf("got text %q, want %q", utt.Text, "partial")
	}
}

func TestRecognizeStreamErrorWithoutTextIsEmpty(t *testing.T) {
	provider, _ := scriptedProvider(t, nil, WithEndError(errors.New("boom")))
	l := NewListener(provider, mockSources(), nil)

	utt, err := l.Recognize(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("stream error must fold into the utterance, got: %v", err)
	}
	if !utt.IsEmpty() {
		t.Errorf("got text %q, want empty", utt.Text)
	}
}

func TestRecognizeDeadlineDrainsTrailingFinal(t *testing.T) {
	provider, stream := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "trailing", Final: true}, AfterCloseSend: true},
	})
	l := NewListener(provider, mockSources(), nil)

	utt, err := l.Recognize(context.Background(), 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if utt.Text != "trailing" {
		t.Errorf("got text %q, want %q (flushed after end-of-audio)", utt.Text, "trailing")
	}
	if !stream.SendClosed() {
		t.Error("end-of-audio was never signalled")
	}
	if utt.Interrupted {
		t.Error("deadline completion should not be marked interrupted")
	}
}

func TestRecognizeForwardsAudio(t *testing.T) {
	provider, stream := scriptedProvider(t, []ScriptStep{
		{Result: Result{Text: "ok", Final: true}, Delay: 100 * time.Millisecond},
	})
	l := NewListener(provider, mockSources(), nil)

	if _, err := l.Recognize(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}
	if len(stream.Sent()) == 0 {
		t.Error("no audio chunks reached the stream")
	}
	if l.BytesSent() == 0 {
		t.Error("byte counter not incremented")
	}
}

func TestRecognizeStreamConfig(t *testing.T) {
	provider, _ := scriptedProvider(t, nil)
	l := NewListener(provider, mockSources(), nil, WithLanguage("hu-HU"))

	if _, err := l.Recognize(context.Background(), time.Second); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d Open calls, want 1", len(calls))
	}
	cfg := calls[0].Config
	if cfg.Encoding != "linear16" {
		t.Errorf("got encoding %q, want linear16", cfg.Encoding)
	}
	if cfg.SampleRate != 16000 {
		t.Errorf("got sample rate %d, want 16000", cfg.SampleRate)
	}
	if cfg.Language != "hu-HU" {
		t.Errorf("got language %q, want hu-HU", cfg.Language)
	}
	if !cfg.SingleUtterance {
		t.Error("single utterance mode not requested")
	}
}

func TestRecognizeStreamConfigToggles(t *testing.T) {
	provider, _ := scriptedProvider(t, nil)
	l := NewListener(provider, mockSources(), nil,
		WithPunctuation(false),
		WithInterimResults(false),
	)

	if _, err := l.Recognize(context.Background(), time.Second); err != nil {
		t.Fatalf("Recognize failed: %v", err)
	}

	calls := provider.Calls()
	if len(calls) != 1 {
		t.Fatalf("got %d Open calls, want 1", len(calls))
	}
	cfg := calls[0].Config
	if cfg.Punctuate {
		t.Error("punctuation requested despite being disabled")
	}
	if cfg.InterimResults {
		t.Error("interim results requested despite being disabled")
	}
}
