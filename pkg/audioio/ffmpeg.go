package audioio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	backendFFmpeg = "ffmpeg"

	// captureStartupGrace is how long ffmpeg gets to fail fast on a bad
	// device before we consider the capture session open.
	captureStartupGrace = 250 * time.Millisecond

	// processStopTimeout bounds how long Stop waits for a subprocess to
	// exit after an interrupt before killing it.
	processStopTimeout = 2 * time.Second
)

func ffmpegBinary(cfg Config) string {
	if cfg.FFmpegPath != "" {
		return cfg.FFmpegPath
	}
	return "ffmpeg"
}

func ffplayBinary(cfg Config) string {
	if cfg.FFplayPath != "" {
		return cfg.FFplayPath
	}
	return "ffplay"
}

// captureInput returns the ffmpeg input format and device for this host.
func captureInput(cfg Config) (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		format, device = "avfoundation", ":0"
	default:
		format, device = "pulse", "default"
	}
	if cfg.Device != "" {
		device = cfg.Device
	}
	return format, device
}

// FFmpegSource captures microphone PCM via an ffmpeg subprocess.
type FFmpegSource struct {
	cfg    Config
	logger *slog.Logger
	binary string

	mu       sync.Mutex
	running  bool
	closed   bool
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   bytes.Buffer
	streamCh chan AudioChunk
	waitErr  chan error

	// Stats
	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newFFmpegSource creates an ffmpeg-backed capture source.
// Returns ErrNoDevice if the ffmpeg binary cannot be found, before any
// subprocess or stream is opened.
func newFFmpegSource(cfg Config, logger *slog.Logger) (*FFmpegSource, error) {
	binary := ffmpegBinary(cfg)
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrNoDevice, binary)
	}
	return &FFmpegSource{
		cfg:    cfg,
		logger: logger.With("component", "audioio.ffmpeg"),
		binary: binary,
	}, nil
}

// Start launches the capture subprocess and begins delivering chunks.
func (f *FFmpegSource) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return io.ErrClosedPipe
	}
	if f.running {
		return nil
	}

	format, device := captureInput(f.cfg)
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", format,
		"-i", device,
		"-ac", strconv.Itoa(f.cfg.Channels),
		"-ar", strconv.Itoa(f.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.Command(f.binary, args...)
	f.stderr.Reset()
	cmd.Stderr = &f.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// ffmpeg exits almost immediately when the device does not exist;
	// surface that as a device error rather than a dead stream.
	select {
	case <-waitErr:
		stdout.Close()
		return fmt.Errorf("%w: %s", ErrNoDevice, strings.TrimSpace(f.stderr.String()))
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		stdout.Close()
		return ctx.Err()
	case <-time.After(captureStartupGrace):
	}

	f.cmd = cmd
	f.stdout = stdout
	f.waitErr = waitErr
	f.streamCh = make(chan AudioChunk, 10)
	f.running = true

	go f.readLoop(stdout, f.streamCh)

	f.logger.Info("capture started",
		"format", format,
		"device", device,
		"sample_rate", f.cfg.SampleRate,
	)
	return nil
}

// readLoop reads fixed-size PCM buffers from ffmpeg stdout and hands them
// to the session as chunks. It runs on its own goroutine; the only state
// it shares with consumers are the atomic counters and the channel.
func (f *FFmpegSource) readLoop(stdout io.Reader, ch chan AudioChunk) {
	defer close(ch)

	buf := make([]byte, f.cfg.BufferBytes())
	for {
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			var chunk AudioChunk
			chunk.FromBytes(buf[:n], f.cfg.SampleRate, f.cfg.Channels)
			select {
			case ch <- chunk:
				f.chunksRead.Add(1)
				f.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				// Consumer is behind; drop rather than block the pipe.
				f.overruns.Add(1)
			}
		}
		if err != nil {
			return
		}
	}
}

// Stop halts capture and releases the device before returning.
func (f *FFmpegSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopLocked()
}

func (f *FFmpegSource) stopLocked() error {
	if !f.running {
		return nil
	}
	f.running = false

	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Signal(os.Interrupt)
		select {
		case <-f.waitErr:
		case <-time.After(processStopTimeout):
			_ = f.cmd.Process.Kill()
			<-f.waitErr
		}
	}
	if f.stdout != nil {
		_ = f.stdout.Close()
		f.stdout = nil
	}
	f.cmd = nil

	f.logger.Info("capture stopped")
	return nil
}

// Read reads the next audio chunk.
func (f *FFmpegSource) Read(ctx context.Context) (AudioChunk, error) {
	f.mu.Lock()
	ch := f.streamCh
	f.mu.Unlock()
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
func (f *FFmpegSource) Stream() <-chan AudioChunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCh
}

// Config returns the audio configuration.
func (f *FFmpegSource) Config() Config {
	return f.cfg
}

// Name returns "ffmpeg".
func (f *FFmpegSource) Name() string {
	return backendFFmpeg
}

// Close releases resources.
func (f *FFmpegSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.stopLocked()
}

// Stats returns source statistics.
func (f *FFmpegSource) Stats() SourceStats {
	f.mu.Lock()
	running := f.running
	f.mu.Unlock()

	return SourceStats{
		ChunksRead:  f.chunksRead.Load(),
		SamplesRead: f.samplesRead.Load(),
		Overruns:    f.overruns.Load(),
		Running:     running,
		Backend:     backendFFmpeg,
	}
}

var _ SourceWithStats = (*FFmpegSource)(nil)

// FFplaySink plays PCM through an ffplay subprocess.
type FFplaySink struct {
	cfg    Config
	logger *slog.Logger
	binary string

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	waitErr chan error

	// Stats
	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

// newFFplaySink creates an ffplay-backed playback sink.
// Returns ErrNoDevice if the ffplay binary cannot be found.
func newFFplaySink(cfg Config, logger *slog.Logger) (*FFplaySink, error) {
	binary := ffplayBinary(cfg)
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("%w: %s not found", ErrNoDevice, binary)
	}
	return &FFplaySink{
		cfg:    cfg,
		logger: logger.With("component", "audioio.ffplay"),
		binary: binary,
	}, nil
}

// Start launches the playback subprocess.
func (f *FFplaySink) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return io.ErrClosedPipe
	}
	if f.running {
		return nil
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nodisp",
		"-autoexit",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.cfg.SampleRate),
		"-ac", strconv.Itoa(f.cfg.Channels),
		"-i", "-",
	}

	cmd := exec.Command(f.binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("playback stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("start playback: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	f.cmd = cmd
	f.stdin = stdin
	f.waitErr = waitErr
	f.running = true

	f.logger.Info("playback started", "sample_rate", f.cfg.SampleRate)
	return nil
}

// Write sends an audio chunk to the player.
func (f *FFplaySink) Write(ctx context.Context, chunk AudioChunk) error {
	f.mu.Lock()
	stdin := f.stdin
	running := f.running
	f.mu.Unlock()

	if !running || stdin == nil {
		return io.ErrClosedPipe
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := stdin.Write(chunk.Bytes()); err != nil {
		return fmt.Errorf("write playback: %w", err)
	}
	f.chunksWritten.Add(1)
	f.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush signals end-of-audio and waits for the player to drain.
// With -autoexit the subprocess exits once the buffered audio has played.
func (f *FFplaySink) Flush(ctx context.Context) error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	if f.stdin != nil {
		_ = f.stdin.Close()
		f.stdin = nil
	}
	waitErr := f.waitErr
	f.mu.Unlock()

	select {
	case err := <-waitErr:
		f.mu.Lock()
		f.running = false
		f.cmd = nil
		f.mu.Unlock()
		if err != nil {
			return fmt.Errorf("playback exited: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = f.Clear()
		return ctx.Err()
	}
}

// Clear discards buffered audio immediately by killing the player.
func (f *FFplaySink) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearLocked()
}

func (f *FFplaySink) clearLocked() error {
	if !f.running {
		return nil
	}
	f.running = false

	if f.stdin != nil {
		_ = f.stdin.Close()
		f.stdin = nil
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
		<-f.waitErr
	}
	f.cmd = nil

	f.logger.Debug("playback cleared")
	return nil
}

// Stop halts playback and releases the device.
func (f *FFplaySink) Stop() error {
	return f.Clear()
}

// Config returns the audio configuration.
func (f *FFplaySink) Config() Config {
	return f.cfg
}

// Name returns "ffmpeg".
func (f *FFplaySink) Name() string {
	return backendFFmpeg
}

// Close releases resources.
func (f *FFplaySink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.clearLocked()
}

// Stats returns sink statistics.
func (f *FFplaySink) Stats() SinkStats {
	f.mu.Lock()
	running := f.running
	f.mu.Unlock()

	return SinkStats{
		ChunksWritten:  f.chunksWritten.Load(),
		SamplesWritten: f.samplesWritten.Load(),
		Running:        running,
		Backend:        backendFFmpeg,
	}
}

var _ SinkWithStats = (*FFplaySink)(nil)
