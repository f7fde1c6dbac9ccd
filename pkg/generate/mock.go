package generate

import (
	"context"
	"sync"
)

// MockCall records a call to the mock provider.
type MockCall struct {
	Method  string
	Request *ChatRequest
}

// MockProvider is a mock generation provider for testing.
type MockProvider struct {
	// ChatFunc is called by Chat if set. If nil, Chat returns a canned
	// response echoing the last user message.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	mu    sync.Mutex
	calls []MockCall
}

// Chat implements Provider.
func (m *MockProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Chat", Request: req})
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}

	content := "mock response"
	if len(req.Messages) > 0 {
		content = "mock reply to: " + req.Messages[len(req.Messages)-1].Content
	}
	return &ChatResponse{
		Text:         content,
		FinishReason: "stop",
		Model:        "mock",
	}, nil
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// Calls returns a copy of all recorded calls.
func (m *MockProvider) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls to the given method.
func (m *MockProvider) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Verify MockProvider implements Provider at compile time.
var _ Provider = (*MockProvider)(nil)
