package synth

import (
	"context"
	"sync"
)

// MockCall records a call to the mock provider.
type MockCall struct {
	Method string
	Text   string
}

// MockProvider is a mock synthesis provider for testing.
type MockProvider struct {
	// SynthesizeFunc is called by Synthesize if set. If nil, Synthesize
	// returns silent PCM16 audio sized to the text length (roughly 100ms
	// of 16kHz audio per character).
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu    sync.Mutex
	calls []MockCall
}

// Synthesize implements Provider.
func (m *MockProvider) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Synthesize", Text: text})
	m.mu.Unlock()

	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	if text == "" {
		return nil, ErrEmptyText
	}

	// 100ms of silence per character: 1600 samples = 3200 bytes at 16kHz.
	return &AudioResult{
		Audio:      make([]byte, len(text)*3200),
		SampleRate: 16000,
		Channels:   1,
		Voice:      "mock",
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
