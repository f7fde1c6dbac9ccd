package dialog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxloop/voxloop/pkg/audioio"
	"github.com/voxloop/voxloop/pkg/synth"
)

// Playback runs one speaking session: synthesize the full response, then
// play it through a fresh sink, interruptible between chunk writes.
type Playback struct {
	synth  synth.Provider
	sinks  audioio.SinkFactory
	logger *slog.Logger
}

// NewPlayback creates a Playback.
func NewPlayback(provider synth.Provider, sinks audioio.SinkFactory, logger *slog.Logger) *Playback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Playback{
		synth:  provider,
		sinks:  sinks,
		logger: logger.With("component", "dialog.playback"),
	}
}

// Speak synthesizes text and plays it until natural completion,
// cancellation, or failure. Synthesis happens before any device is opened;
// cancellation during synthesis never touches the speaker. The sink is
// released on every exit path before Speak returns.
func (p *Playback) Speak(ctx context.Context, text string) (SpeakResult, error) {
	audio, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return SpeakInterrupted, nil
		}
		return SpeakFailed, fmt.Errorf("synthesize: %w", err)
	}

	// Cancellation decided while synthesis was in flight: abort before
	// the device is opened.
	if ctx.Err() != nil {
		return SpeakInterrupted, nil
	}

	sink, err := p.sinks()
	if err != nil {
		return SpeakFailed, fmt.Errorf("open playback sink: %w", err)
	}
	defer sink.Close()

	if err := sink.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return SpeakInterrupted, nil
		}
		return SpeakFailed, fmt.Errorf("start playback: %w", err)
	}
	defer sink.Stop()

	cfg := sink.Config()
	pcm := audio.Audio
	if audio.SampleRate != cfg.SampleRate {
		pcm = audioio.ResampleBytes(pcm, audio.SampleRate, cfg.SampleRate)
	}

	p.logger.Debug("playback starting",
		"bytes", len(pcm),
		"duration", audio.Duration(),
	)

	chunkBytes := cfg.BufferBytes()
	for off := 0; off < len(pcm); off += chunkBytes {
		if ctx.Err() != nil {
			return p.interrupt(sink)
		}

		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}

		var chunk audioio.AudioChunk
		chunk.FromBytes(pcm[off:end], cfg.SampleRate, cfg.Channels)

		if err := sink.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return p.interrupt(sink)
			}
			return SpeakFailed, fmt.Errorf("write playback: %w", err)
		}
	}

	if err := sink.Flush(ctx); err != nil {
		if ctx.Err() != nil {
			return SpeakInterrupted, nil
		}
		return SpeakFailed, fmt.Errorf("flush playback: %w", err)
	}

	return SpeakCompleted, nil
}

// interrupt discards buffered audio so the speaker goes quiet immediately.
func (p *Playback) interrupt(sink audioio.Sink) (SpeakResult, error) {
	if err := sink.Clear(); err != nil {
		p.logger.Warn("clear on interrupt failed", "error", err)
	}
	return SpeakInterrupted, nil
}
