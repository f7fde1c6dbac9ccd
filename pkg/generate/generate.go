// Package generate turns one user utterance into one response string via a
// remote language-generation service.
//
// Provider is the transport layer: an OpenAI-compatible chat completion,
// exactly one request per call, no retries. Responder is what the dialogue
// loop consumes: it classifies every outcome into a typed Reply so the turn
// state machine never handles a raw transport error.
package generate

import "context"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	// Model overrides the configured model if set.
	Model string

	// Messages is the conversation to complete.
	Messages []Message

	// MaxTokens limits the response length. Zero uses the configured value.
	MaxTokens int

	// Temperature controls sampling. Zero uses the configured value.
	Temperature float64
}

// Usage reports token consumption.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResponse is a chat completion response.
type ChatResponse struct {
	// Text is the generated message content.
	Text string

	// FinishReason is why generation stopped.
	FinishReason string

	// Usage reports token consumption.
	Usage Usage

	// Model is the model that produced the response.
	Model string

	// LatencyMs is the round-trip time in milliseconds.
	LatencyMs int64
}

// Provider generates chat completions.
type Provider interface {
	// Chat generates one completion. Exactly one request per call.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Name returns the provider name for logs and errors.
	Name() string
}
