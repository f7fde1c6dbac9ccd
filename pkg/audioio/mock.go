package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const backendMock = "mock"

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithNoDevice makes Start fail with ErrNoDevice, simulating a host with
// no microphone.
func WithNoDevice() MockSourceOption {
	return func(m *MockSource) {
		m.noDevice = true
	}
}

// WithTone makes the source generate a sine tone at the given frequency
// instead of silence.
func WithTone(freq float64) MockSourceOption {
	return func(m *MockSource) {
		m.toneFreq = freq
	}
}

// WithRealtime makes the source pace chunk delivery at the buffer duration,
// like a real microphone would. Without it chunks are produced as fast as
// the consumer reads them.
func WithRealtime() MockSourceOption {
	return func(m *MockSource) {
		m.realtime = true
	}
}

// MockSource is a mock audio source for testing.
// It generates silence (or a tone) without touching any hardware.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	noDevice bool
	toneFreq float64
	realtime bool

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan AudioChunk
	stopCh   chan struct{}
	phase    float64

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
}

// NewMockSource creates a mock audio source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins generating audio chunks.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.noDevice {
		return ErrNoDevice
	}
	if m.running {
		return nil
	}

	m.streamCh = make(chan AudioChunk, 10)
	m.stopCh = make(chan struct{})
	m.running = true

	go m.generate(m.streamCh, m.stopCh)

	m.logger.Debug("mock capture started", "sample_rate", m.cfg.SampleRate)
	return nil
}

func (m *MockSource) generate(ch chan AudioChunk, stop chan struct{}) {
	defer close(ch)

	var ticker *time.Ticker
	if m.realtime {
		ticker = time.NewTicker(m.cfg.BufferDuration)
		defer ticker.Stop()
	}

	for {
		chunk := m.nextChunk()
		if ticker != nil {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
		select {
		case <-stop:
			return
		case ch <- chunk:
			m.chunksRead.Add(1)
			m.samplesRead.Add(int64(len(chunk.Samples)))
		}
	}
}

func (m *MockSource) nextChunk() AudioChunk {
	n := m.cfg.BufferSize() * m.cfg.Channels
	samples := make([]int16, n)
	if m.toneFreq > 0 {
		m.mu.Lock()
		phase := m.phase
		step := 2 * math.Pi * m.toneFreq / float64(m.cfg.SampleRate)
		for i := range samples {
			samples[i] = int16(math.Sin(phase) * 16000)
			phase += step
		}
		m.phase = math.Mod(phase, 2*math.Pi)
		m.mu.Unlock()
	}
	return AudioChunk{
		Samples:    samples,
		SampleRate: m.cfg.SampleRate,
		Channels:   m.cfg.Channels,
	}
}

// Stop halts chunk generation.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

func (m *MockSource) stopLocked() error {
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	m.logger.Debug("mock capture stopped")
	return nil
}

// Read reads the next audio chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	ch := m.streamCh
	m.mu.Unlock()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the audio chunk channel.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return backendMock
}

// Close releases resources.
func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.stopLocked()
}

// Stats returns source statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Running:     running,
		Backend:     backendMock,
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithSinkNoDevice makes Start fail with ErrNoDevice.
func WithSinkNoDevice() MockSinkOption {
	return func(m *MockSink) {
		m.noDevice = true
	}
}

// WithWriteDelay makes each Write block for the given duration, simulating
// a real output buffer. Useful for exercising interruption paths.
func WithWriteDelay(d time.Duration) MockSinkOption {
	return func(m *MockSink) {
		m.writeDelay = d
	}
}

// MockSink is a mock audio sink for testing.
// It records written chunks instead of playing them.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	noDevice   bool
	writeDelay time.Duration

	mu      sync.Mutex
	running bool
	closed  bool
	written []AudioChunk
	cleared bool
	flushed bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// NewMockSink creates a mock audio sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.mock"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the mock playback session.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.noDevice {
		return ErrNoDevice
	}
	m.running = true
	m.cleared = false
	m.flushed = false
	return nil
}

// Write records the chunk, honoring the configured write delay.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	running := m.running
	delay := m.writeDelay
	m.mu.Unlock()

	if !running {
		return io.ErrClosedPipe
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.written = append(m.written, chunk)
	m.mu.Unlock()
	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush marks the session as drained.
func (m *MockSink) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed = true
	return nil
}

// Clear discards buffered audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = true
	m.running = false
	return nil
}

// Stop halts playback.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return backendMock
}

// Close releases resources.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.running = false
	return nil
}

// Written returns a copy of all chunks written so far.
func (m *MockSink) Written() []AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AudioChunk, len(m.written))
	copy(out, m.written)
	return out
}

// Cleared reports whether Clear was called.
func (m *MockSink) Cleared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}

// Flushed reports whether Flush was called.
func (m *MockSink) Flushed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushed
}

// Stats returns sink statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten:  m.chunksWritten.Load(),
		SamplesWritten: m.samplesWritten.Load(),
		Running:        running,
		Backend:        backendMock,
	}
}

var _ SinkWithStats = (*MockSink)(nil)
