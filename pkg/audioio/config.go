// Package audioio provides audio capture and playback for the dialogue loop.
//
// This package supports two backends:
//   - FFmpeg - capture via ffmpeg, playback via ffplay (no CGO required)
//   - Mock - CI/testing without hardware
//
// The backend is selected automatically based on what is installed,
// or can be explicitly specified via configuration.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoDevice is returned when no capture or playback device is available.
// Callers must treat it as terminal for the current session and must not
// open any downstream stream after receiving it.
var ErrNoDevice = errors.New("audioio: no audio device available")

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto automatically selects the best available backend.
	BackendAuto Backend = "auto"
	// BackendFFmpeg uses ffmpeg/ffplay subprocesses for audio I/O.
	BackendFFmpeg Backend = "ffmpeg"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	// Default: "auto" (selects best available)
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000 (the fixed profile of the dialogue loop)
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// BufferDuration is the size of audio buffers.
	// Default: 20ms (320 samples at 16kHz)
	BufferDuration time.Duration `yaml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific device identifier.
	// Examples:
	//   - FFmpeg capture: "default", "hw:1,0", ":0"
	//   - Mock: ignored
	Device string `yaml:"device" json:"device"`

	// FFmpegPath overrides the ffmpeg binary used for capture.
	FFmpegPath string `yaml:"ffmpeg_path" json:"ffmpeg_path"`

	// FFplayPath overrides the ffplay binary used for playback.
	FFplayPath string `yaml:"ffplay_path" json:"ffplay_path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000, // PCM16 mono 16kHz, the loop's fixed profile
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
		Device:         "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per buffer.
func (c Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a buffer in bytes (assuming int16 samples).
func (c Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2 // 2 bytes per int16 sample
}
