package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
// A Sink owns its device handle exclusively for the lifetime of one
// playback session.
type Sink interface {
	// Start begins audio playback.
	// Returns ErrNoDevice when no playback device can be opened.
	Start(ctx context.Context) error

	// Stop halts audio playback and releases the device.
	// It is safe to call Stop multiple times, or before Start.
	Stop() error

	// Write sends an audio chunk to the output device.
	// This may block if the output buffer is full.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush waits for all buffered audio to be played.
	Flush(ctx context.Context) error

	// Clear discards all buffered audio immediately.
	// Use this to interrupt playback (e.g., when the user barges in).
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name (e.g., "ffmpeg", "mock").
	Name() string

	// Close releases all resources.
	// After Close, the sink cannot be restarted.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	// ChunksWritten is the total number of chunks written.
	ChunksWritten int64 `json:"chunks_written"`

	// SamplesWritten is the total number of samples written.
	SamplesWritten int64 `json:"samples_written"`

	// Running indicates if the sink is currently playing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

// SinkFactory creates a fresh playback session, one per spoken response.
type SinkFactory func() (Sink, error)
