// Package synth converts response text into playable PCM audio via a
// remote speech-synthesis service.
//
// Synthesis is one-shot: one blocking request returns the complete audio
// buffer and its effective sample rate. Playback decides separately what to
// do with the bytes; this package never touches an audio device.
package synth

import (
	"context"
	"time"
)

// AudioResult is one synthesized response.
type AudioResult struct {
	// Audio is the complete PCM16 little-endian buffer.
	Audio []byte

	// SampleRate is the effective sample rate of Audio in Hz.
	SampleRate int

	// Channels is the channel count of Audio.
	Channels int

	// Voice is the voice that produced the audio.
	Voice string

	// LatencyMs is the synthesis round-trip time in milliseconds.
	LatencyMs int64
}

// Duration returns the playable length of the audio.
func (r *AudioResult) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	samples := len(r.Audio) / 2
	return time.Duration(float64(samples) / float64(r.SampleRate*r.Channels) * float64(time.Second))
}

// Provider synthesizes speech.
type Provider interface {
	// Synthesize converts text to audio in one blocking call.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Name returns the provider name for logs and errors.
	Name() string
}
