package synth

import (
	"log/slog"
	"time"
)

// Config holds synthesis client configuration.
type Config struct {
	// URL is the synthesis endpoint, e.g. "https://tts.example.com/v1/speak".
	URL string

	// APIKey authenticates requests via the Authorization header.
	APIKey string

	// Voice is the voice name sent with every request.
	Voice string

	// Language is the BCP-47 language code sent with every request.
	Language string

	// SampleRate is the requested output sample rate in Hz. Used as the
	// fallback when the collaborator does not report an effective rate.
	SampleRate int

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Voice:      "default",
		Language:   "en-US",
		SampleRate: 16000,
		Timeout:    30 * time.Second,
		Logger:     slog.Default(),
	}
}

// Option configures the client.
type Option func(*Config)

// WithURL sets the synthesis endpoint.
func WithURL(url string) Option {
	return func(c *Config) {
		c.URL = url
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithVoice sets the voice name.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithLanguage sets the language code.
func WithLanguage(lang string) Option {
	return func(c *Config) {
		c.Language = lang
	}
}

// WithSampleRate sets the requested output sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrNoURL
	}
	return nil
}
