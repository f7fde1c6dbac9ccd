package transcribe

import (
	"context"
	"sync"
	"time"
)

// MockCall records a call to the mock provider.
type MockCall struct {
	Method string
	Config StreamConfig
}

// MockProvider is a mock transcription provider for testing.
type MockProvider struct {
	// OpenFunc is called by Open if set. If nil, Open returns an empty
	// scripted stream that ends immediately.
	OpenFunc func(ctx context.Context, cfg StreamConfig) (Stream, error)

	mu    sync.Mutex
	calls []MockCall
}

// Open implements Provider.
func (m *MockProvider) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: "Open", Config: cfg})
	m.mu.Unlock()

	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, cfg)
	}
	return NewScriptedStream(nil), nil
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

var _ Provider = (*MockProvider)(nil)

// ScriptStep is one event a ScriptedStream plays back.
type ScriptStep struct {
	// Result to emit.
	Result Result

	// Delay before emitting this step.
	Delay time.Duration

	// AfterCloseSend holds the step until CloseSend is called, modelling
	// a trailing result the collaborator flushes at end-of-audio.
	AfterCloseSend bool
}

// ScriptedStream is a Stream that plays back a fixed script of results.
// It records sent audio and ends (closing Results) once the script is
// exhausted, optionally with a terminal error.
type ScriptedStream struct {
	results chan Result

	mu         sync.Mutex
	sent       [][]byte
	endErr     error
	sendClosed bool
	closed     bool

	closeSendCh chan struct{}
	closeCh     chan struct{}
	closeSend   sync.Once
	close       sync.Once
	done        chan struct{}
}

// ScriptOption configures a ScriptedStream.
type ScriptOption func(*ScriptedStream)

// WithEndError sets the terminal error reported after the script ends.
func WithEndError(err error) ScriptOption {
	return func(s *ScriptedStream) {
		s.endErr = err
	}
}

// NewScriptedStream creates a stream that plays the given script and then
// ends. A nil or empty script ends the stream immediately, after any
// AfterCloseSend gate.
func NewScriptedStream(script []ScriptStep, opts ...ScriptOption) *ScriptedStream {
	s := &ScriptedStream{
		results:     make(chan Result, 64),
		closeSendCh: make(chan struct{}),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.play(script)
	return s
}

func (s *ScriptedStream) play(script []ScriptStep) {
	defer close(s.done)
	defer close(s.results)

	for _, step := range script {
		if step.AfterCloseSend {
			select {
			case <-s.closeSendCh:
			case <-s.closeCh:
				return
			}
		}
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-s.closeCh:
				return
			}
		}
		select {
		case s.results <- step.Result:
		case <-s.closeCh:
			return
		}
	}
}

// Send records the audio chunk.
func (s *ScriptedStream) Send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed || s.closed {
		return ErrStreamClosed
	}
	s.sent = append(s.sent, append([]byte(nil), chunk...))
	return nil
}

// CloseSend releases any AfterCloseSend steps.
func (s *ScriptedStream) CloseSend() error {
	s.closeSend.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		s.mu.Unlock()
		close(s.closeSendCh)
	})
	return nil
}

// Results returns the scripted result channel.
func (s *ScriptedStream) Results() <-chan Result {
	return s.results
}

// Err returns the configured terminal error.
func (s *ScriptedStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endErr
}

// Close aborts playback of the script.
func (s *ScriptedStream) Close() error {
	s.close.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.CloseSend()
		close(s.closeCh)
	})
	<-s.done
	return nil
}

// Sent returns a copy of all audio chunks sent to the stream.
func (s *ScriptedStream) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// SendClosed reports whether CloseSend was called.
func (s *ScriptedStream) SendClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendClosed
}

var _ Stream = (*ScriptedStream)(nil)
