package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/voxloop/voxloop/pkg/audioio"
)

// ListenerConfig holds listening-session settings.
type ListenerConfig struct {
	// Language is the BCP-47 language code for recognition.
	Language string

	// Punctuate enables automatic punctuation.
	Punctuate bool

	// InterimResults enables provisional results between finals.
	InterimResults bool

	// SingleUtterance asks the collaborator to end the stream after the
	// first settled utterance, so a session completes as soon as the
	// user stops speaking.
	SingleUtterance bool

	// DrainTimeout bounds how long a session waits for trailing results
	// after signalling end-of-audio.
	DrainTimeout time.Duration
}

// DefaultListenerConfig returns a ListenerConfig with sensible defaults.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		Language:        "en-US",
		Punctuate:       true,
		InterimResults:  true,
		SingleUtterance: true,
		DrainTimeout:    3 * time.Second,
	}
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithLanguage sets the recognition language.
func WithLanguage(lang string) ListenerOption {
	return func(l *Listener) {
		l.cfg.Language = lang
	}
}

// WithPunctuation controls automatic punctuation.
func WithPunctuation(on bool) ListenerOption {
	return func(l *Listener) {
		l.cfg.Punctuate = on
	}
}

// WithInterimResults controls provisional results between finals.
func WithInterimResults(on bool) ListenerOption {
	return func(l *Listener) {
		l.cfg.InterimResults = on
	}
}

// WithSingleUtterance controls single-utterance mode.
func WithSingleUtterance(on bool) ListenerOption {
	return func(l *Listener) {
		l.cfg.SingleUtterance = on
	}
}

// WithDrainTimeout sets the trailing-results drain bound.
func WithDrainTimeout(d time.Duration) ListenerOption {
	return func(l *Listener) {
		l.cfg.DrainTimeout = d
	}
}

// WithResultObserver registers a callback invoked for every result event,
// final or interim. Used to surface live transcripts; it must not block.
func WithResultObserver(fn func(Result)) ListenerOption {
	return func(l *Listener) {
		l.onResult = fn
	}
}

// Listener runs complete listening sessions: a fresh capture source per
// call, one transcription stream, and finals-only aggregation.
type Listener struct {
	provider Provider
	sources  audioio.SourceFactory
	cfg      ListenerConfig
	logger   *slog.Logger
	onResult func(Result)

	bytesSent atomic.Int64
}

// NewListener creates a Listener.
func NewListener(provider Provider, sources audioio.SourceFactory, logger *slog.Logger, opts ...ListenerOption) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		provider: provider,
		sources:  sources,
		cfg:      DefaultListenerConfig(),
		logger:   logger.With("component", "transcribe.listener"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BytesSent returns the total audio bytes forwarded across all sessions.
func (l *Listener) BytesSent() int64 {
	return l.bytesSent.Load()
}

// Recognize runs one listening session and returns its utterance.
//
// The session completes on the first of: maxDuration elapsing, ctx
// cancellation, or the result stream ending. Final segments are aggregated
// in arrival order; interim segments are observed but never aggregated.
//
// Cancellation is not an error: a session cancelled after at least one
// final segment returns the partial text as a successful utterance, and a
// session cancelled with zero finals returns an empty utterance with a nil
// error. audioio.ErrNoDevice is returned before any stream is opened.
func (l *Listener) Recognize(ctx context.Context, maxDuration time.Duration) (Utterance, error) {
	src, err := l.sources()
	if err != nil {
		return Utterance{}, err
	}
	defer src.Close()

	if err := src.Start(ctx); err != nil {
		if errors.Is(err, audioio.ErrNoDevice) {
			return Utterance{}, err
		}
		return Utterance{}, fmt.Errorf("start capture: %w", err)
	}
	defer src.Stop()

	sessCtx, cancel := context.WithTimeout(ctx, maxDuration)
	defer cancel()

	// The stream lives under the caller's scope, not the session deadline:
	// a deadline is a normal end of listening and must still close-send and
	// drain trailing finals before the stream is torn down. Only caller
	// cancellation (barge decision, shutdown) aborts the stream outright.
	stream, err := l.provider.Open(ctx, l.streamConfig(src.Config()))
	if err != nil {
		return Utterance{}, fmt.Errorf("open transcription stream: %w", err)
	}
	defer stream.Close()

	go l.pump(sessCtx, src, stream)

	var finals []string
	for {
		select {
		case <-sessCtx.Done():
			// Release the device before any draining so the next
			// session never races this one for the handle.
			_ = src.Stop()

			if ctx.Err() != nil {
				// Cancelled from above (barge decision or shutdown).
				// Whatever finals arrived are the utterance.
				return buildUtterance(finals, true), nil
			}

			// Deadline: normal end of listening. Signal end-of-audio
			// and give the collaborator a chance to flush trailing
			// finals before returning.
			finals = l.drainTrailing(stream, finals)
			return buildUtterance(finals, false), nil

		case res, ok := <-stream.Results():
			if !ok {
				_ = src.Stop()
				if err := stream.Err(); err != nil {
					// Stream errors fold into whatever text was
					// already captured.
					l.logger.Warn("transcription stream failed",
						"error", err,
						"finals", len(finals),
					)
				}
				return buildUtterance(finals, false), nil
			}
			finals = l.observe(res, finals)
		}
	}
}

// observe routes one result event: finals aggregate, interims only log.
func (l *Listener) observe(res Result, finals []string) []string {
	if l.onResult != nil {
		l.onResult(res)
	}
	if res.Final {
		if text := strings.TrimSpace(res.Text); text != "" {
			finals = append(finals, text)
		}
		l.logger.Debug("final segment", "text", res.Text, "segments", len(finals))
		return finals
	}
	l.logger.Debug("interim segment", "text", res.Text, "stability", res.Stability)
	return finals
}

// pump forwards capture chunks into the stream until the session ends.
// Individual chunk-write failures are swallowed while the session is live;
// transient hiccups must not abort a whole listening session.
func (l *Listener) pump(ctx context.Context, src audioio.Source, stream Stream) {
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			return
		}
		if err := stream.Send(chunk.Bytes()); err != nil {
			if errors.Is(err, ErrStreamClosed) || ctx.Err() != nil {
				return
			}
			l.logger.Debug("chunk write failed, continuing", "error", err)
			continue
		}
		l.bytesSent.Add(int64(len(chunk.Samples) * 2))
	}
}

// drainTrailing closes the write side and collects any finals the
// collaborator flushes before stream end, bounded by DrainTimeout.
func (l *Listener) drainTrailing(stream Stream, finals []string) []string {
	_ = stream.CloseSend()

	timer := time.NewTimer(l.cfg.DrainTimeout)
	defer timer.Stop()

	for {
		select {
		case res, ok := <-stream.Results():
			if !ok {
				return finals
			}
			finals = l.observe(res, finals)
		case <-timer.C:
			l.logger.Warn("trailing drain timed out", "finals", len(finals))
			_ = stream.Close()
			return finals
		}
	}
}

func (l *Listener) streamConfig(audioCfg audioio.Config) StreamConfig {
	return StreamConfig{
		Encoding:        "linear16",
		SampleRate:      audioCfg.SampleRate,
		Channels:        audioCfg.Channels,
		Language:        l.cfg.Language,
		Punctuate:       l.cfg.Punctuate,
		InterimResults:  l.cfg.InterimResults,
		SingleUtterance: l.cfg.SingleUtterance,
	}
}

func buildUtterance(finals []string, interrupted bool) Utterance {
	return Utterance{
		Text:        strings.TrimSpace(strings.Join(finals, " ")),
		Segments:    len(finals),
		Interrupted: interrupted,
	}
}
