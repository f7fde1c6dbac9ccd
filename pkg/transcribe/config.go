package transcribe

import (
	"fmt"
	"time"
)

// Config holds websocket provider configuration.
type Config struct {
	// URL is the websocket endpoint of the transcription collaborator,
	// e.g. "wss://stt.example.com/v1/listen". http(s) schemes are
	// rewritten to ws(s).
	URL string

	// APIKey authenticates the session via the Authorization header.
	APIKey string

	// Model selects the collaborator's recognition model.
	Model string

	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration

	// ResultBuffer is the capacity of the result event channel.
	ResultBuffer int

	// SendBuffer is the capacity of the outbound audio queue.
	SendBuffer int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		ResultBuffer: 64,
		SendBuffer:   32,
	}
}

// Option configures the websocket provider.
type Option func(*Config)

// WithURL sets the websocket endpoint.
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

// WithModel sets the recognition model.
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithDialTimeout sets the handshake timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DialTimeout = d
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
		return fmt.Errorf("%w: missing URL", ErrNotConfigured)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial_timeout must be positive, got %v", c.DialTimeout)
	}
	return nil
}
