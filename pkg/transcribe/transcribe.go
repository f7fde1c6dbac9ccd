// Package transcribe streams captured audio to a remote transcription
// service and aggregates its result events into utterances.
//
// The package has three layers:
//   - Provider opens one streaming session per listening session.
//   - Stream is the bidirectional session: audio bytes in, Results out.
//   - Listener owns a full listening session: it opens a capture source,
//     pumps chunks into a Stream, and folds final results into an Utterance.
//
// Interim results are reported for observability only; an Utterance is
// always the concatenation of final segments in arrival order.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors.
var (
	// ErrStreamClosed is returned by Send after CloseSend or Close.
	ErrStreamClosed = errors.New("transcribe: stream is closed")

	// ErrNotConfigured is returned when a provider is missing its endpoint.
	ErrNotConfigured = errors.New("transcribe: provider not configured")
)

// ProviderError wraps an error from a transcription provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("transcribe provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// Result is one transcription event from the collaborator.
type Result struct {
	// Text is the transcript for this event.
	Text string

	// Final marks the text as settled. Only final results contribute to
	// the aggregated utterance.
	Final bool

	// Stability is the collaborator's confidence that an interim result
	// will not change, in [0, 1]. Zero for finals.
	Stability float64
}

// Utterance is the finalized text of one listening session.
type Utterance struct {
	// Text is the trimmed concatenation of final segments in arrival order.
	Text string

	// Segments is the number of final segments that were aggregated.
	Segments int

	// Interrupted reports that the session ended by cancellation rather
	// than by deadline or natural stream end.
	Interrupted bool
}

// IsEmpty reports whether the utterance carries no usable text.
func (u Utterance) IsEmpty() bool {
	return strings.TrimSpace(u.Text) == ""
}

// StreamConfig is the one-time configuration sent when a stream opens.
type StreamConfig struct {
	// Encoding of the audio bytes. Always "linear16" in this loop.
	Encoding string

	// SampleRate of the audio in Hz.
	SampleRate int

	// Channels is the channel count of the audio.
	Channels int

	// Language is the BCP-47 language code, e.g. "en-US".
	Language string

	// Punctuate enables automatic punctuation.
	Punctuate bool

	// InterimResults enables provisional results between finals.
	InterimResults bool

	// SingleUtterance asks the collaborator to end the stream after the
	// first settled utterance instead of listening indefinitely.
	SingleUtterance bool
}

// Stream is one bidirectional transcription session.
// Send and the Results channel may be used from different goroutines.
type Stream interface {
	// Send forwards raw audio bytes to the collaborator.
	// Returns ErrStreamClosed after CloseSend or Close.
	Send(chunk []byte) error

	// CloseSend signals end-of-audio. The collaborator may still flush
	// trailing results afterwards; Results stays open until stream end.
	CloseSend() error

	// Results returns the result event channel. It is closed when the
	// stream ends, after which Err reports any terminal error.
	Results() <-chan Result

	// Err returns the first terminal error, or nil for a clean end.
	// Only valid after Results is closed.
	Err() error

	// Close tears the session down immediately.
	Close() error
}

// Provider opens transcription streams.
type Provider interface {
	// Open dials the collaborator and starts one streaming session.
	Open(ctx context.Context, cfg StreamConfig) (Stream, error)

	// Name returns the provider name for logs and errors.
	Name() string
}
