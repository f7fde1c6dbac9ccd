package generate

import (
	"context"
	"log/slog"
	"strings"
)

// ReplyKind classifies a generation outcome.
type ReplyKind int

const (
	// ReplyOK carries usable response text.
	ReplyOK ReplyKind = iota

	// ReplyEmpty means there was nothing to respond to, or the model
	// produced no text. Not an error; the turn simply re-listens.
	ReplyEmpty

	// ReplyFailed means the collaborator failed. The error is attached
	// but never propagated as a panic or raw transport error.
	ReplyFailed
)

// String returns the kind name.
func (k ReplyKind) String() string {
	switch k {
	case ReplyOK:
		return "ok"
	case ReplyEmpty:
		return "empty"
	case ReplyFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reply is the typed outcome of one generation attempt.
type Reply struct {
	// Kind classifies the outcome.
	Kind ReplyKind

	// Text is the response text. Set only for ReplyOK.
	Text string

	// Err is the underlying failure. Set only for ReplyFailed.
	Err error

	// LatencyMs is the generation round-trip time, when a request was made.
	LatencyMs int64
}

// Responder turns one utterance into one typed Reply. It owns the
// fail-closed policy: empty input never reaches the collaborator, and
// collaborator failures come back as ReplyFailed values.
type Responder struct {
	provider     Provider
	systemPrompt string
	logger       *slog.Logger
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithResponderSystemPrompt sets the system prompt prepended to every request.
func WithResponderSystemPrompt(prompt string) ResponderOption {
	return func(r *Responder) {
		r.systemPrompt = prompt
	}
}

// NewResponder creates a Responder.
func NewResponder(provider Provider, logger *slog.Logger, opts ...ResponderOption) *Responder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Responder{
		provider: provider,
		logger:   logger.With("component", "generate.responder"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond generates a reply to the given utterance.
// Empty input short-circuits to ReplyEmpty without a remote call. Exactly
// one request is made otherwise; its failure becomes ReplyFailed.
func (r *Responder) Respond(ctx context.Context, utterance string) Reply {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return Reply{Kind: ReplyEmpty}
	}

	var messages []Message
	if r.systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: r.systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: text})

	resp, err := r.provider.Chat(ctx, &ChatRequest{Messages: messages})
	if err != nil {
		r.logger.Warn("generation failed", "error", err)
		return Reply{Kind: ReplyFailed, Err: err}
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		r.logger.Warn("generation returned empty text", "model", resp.Model)
		return Reply{Kind: ReplyEmpty, LatencyMs: resp.LatencyMs}
	}

	r.logger.Debug("generated reply",
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", resp.LatencyMs,
	)
	return Reply{Kind: ReplyOK, Text: reply, LatencyMs: resp.LatencyMs}
}
