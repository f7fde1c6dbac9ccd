package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/voxloop/voxloop/internal/httpc"
)

const providerREST = "rest"

// Client is the HTTP-based synthesis provider. One POST per Synthesize
// call; the response body is the raw PCM16 buffer and the effective sample
// rate travels in the X-Sample-Rate response header.
type Client struct {
	config *Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a new synthesis client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config: cfg,
		http:   httpc.NewClient(cfg.Timeout),
		logger: cfg.Logger.With("component", "synth.client"),
	}, nil
}

// Name returns "rest".
func (c *Client) Name() string {
	return providerREST
}

// Synthesize converts text to PCM16 audio in one blocking request.
func (c *Client) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	start := time.Now()

	payload := map[string]string{
		"text":           text,
		"language_code":  c.config.Language,
		"voice_name":     c.config.Voice,
		"audio_encoding": "pcm16",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(providerREST, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerREST, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, WrapError(providerREST, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerREST, fmt.Errorf("read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerREST, fmt.Errorf("empty audio response"))
	}

	sampleRate := c.config.SampleRate
	if h := resp.Header.Get("X-Sample-Rate"); h != "" {
		if rate, err := strconv.Atoi(h); err == nil && rate > 0 {
			sampleRate = rate
		}
	}

	result := &AudioResult{
		Audio:      audio,
		SampleRate: sampleRate,
		Channels:   1,
		Voice:      c.config.Voice,
		LatencyMs:  time.Since(start).Milliseconds(),
	}

	c.logger.Debug("synthesized speech",
		"chars", len(text),
		"bytes", len(audio),
		"sample_rate", sampleRate,
		"latency_ms", result.LatencyMs,
	)
	return result, nil
}

// parseError reads and parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Message != "" {
			message = errResp.Message
		} else if errResp.Error != "" {
			message = errResp.Error
		}
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerREST,
	}
}

// Verify Client implements Provider at compile time.
var _ Provider = (*Client)(nil)
