package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// WSProvider streams audio to the transcription collaborator over a
// websocket: binary frames carry audio, JSON text frames carry results,
// and a CloseStream text message signals end-of-audio.
type WSProvider struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer
}

// NewWSProvider creates a websocket transcription provider.
func NewWSProvider(logger *slog.Logger, opts ...Option) (*WSProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &WSProvider{
		cfg:    cfg,
		logger: logger.With("component", "transcribe.ws"),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
	}, nil
}

// Name returns "websocket".
func (p *WSProvider) Name() string {
	return "websocket"
}

// Open dials the collaborator and starts one streaming session.
// The stream configuration travels as query parameters on the dial URL.
func (p *WSProvider) Open(ctx context.Context, streamCfg StreamConfig) (Stream, error) {
	wsURL, err := buildStreamURL(p.cfg, streamCfg)
	if err != nil {
		return nil, WrapError(p.Name(), err)
	}

	headers := http.Header{}
	if p.cfg.APIKey != "" {
		headers.Set("Authorization", "Token "+p.cfg.APIKey)
	}

	conn, resp, err := p.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, WrapError(p.Name(), fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err))
		}
		return nil, WrapError(p.Name(), fmt.Errorf("dial failed: %w", err))
	}

	s := &wsStream{
		conn:     conn,
		logger:   p.logger,
		results:  make(chan Result, p.cfg.ResultBuffer),
		audio:    make(chan []byte, p.cfg.SendBuffer),
		done:     make(chan struct{}),
		sendQuit: make(chan struct{}),
		readDone: make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		_ = conn.Close()
		close(s.results)
		close(s.done)
	}()

	// The dial context is the abort scope: cancellation tears the stream
	// down immediately, discarding anything in flight. Callers that want
	// trailing results after a deadline must not cancel this context until
	// they have close-sent and drained.
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	p.logger.Debug("transcription stream opened",
		"sample_rate", streamCfg.SampleRate,
		"language", streamCfg.Language,
		"single_utterance", streamCfg.SingleUtterance,
	)
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	results chan Result
	audio   chan []byte

	// sendQuit ends the write side, readDone ends the read side, done
	// marks full teardown. The audio channel itself is never closed, so
	// a Send racing CloseSend can never panic.
	done     chan struct{}
	sendQuit chan struct{}
	readDone chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
}

func (s *wsStream) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	select {
	case <-s.sendQuit:
		return ErrStreamClosed
	default:
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.sendQuit:
		return ErrStreamClosed
	case <-s.done:
		if err := s.terminalErr(); err != nil {
			return err
		}
		return ErrStreamClosed
	}
}

func (s *wsStream) CloseSend() error {
	s.closeSendOnce.Do(func() {
		close(s.sendQuit)
	})
	return nil
}

func (s *wsStream) Results() <-chan Result {
	return s.results
}

func (s *wsStream) Err() error {
	return s.terminalErr()
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.terminalErr()
}

func (s *wsStream) terminalErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// setErr records the first terminal error. Normal closures are not errors;
// they are how the collaborator signals end-of-stream.
func (s *wsStream) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *wsStream) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("send audio: %w", err))
				return
			}
		case <-s.readDone:
			// Read side hit a terminal condition; nothing left to say.
			return
		case <-s.sendQuit:
			s.flushAndSignalEnd()
			return
		}
	}
}

// flushAndSignalEnd writes any audio still queued at CloseSend time, then
// the end-of-audio message so the collaborator flushes trailing results.
func (s *wsStream) flushAndSignalEnd() {
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("send audio: %w", err))
				return
			}
		case <-s.readDone:
			return
		default:
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
				s.setErr(fmt.Errorf("signal end of audio: %w", err))
			}
			return
		}
	}
}

// readLoop consumes result frames until the connection ends. Its exit also
// releases the write side, so a collaborator error folds the whole session
// promptly instead of stalling behind an idle writer.
func (s *wsStream) readLoop() {
	defer func() {
		close(s.readDone)
		// Unblock a writer stuck mid-write; the session is over.
		_ = s.conn.Close()
		s.wg.Done()
	}()

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("read result: %w", err))
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.logger.Debug("dropping unparseable result frame", "error", err)
			continue
		}

		if strings.EqualFold(msg.Type, "Error") {
			message := strings.TrimSpace(msg.Message)
			if message == "" {
				message = "collaborator returned an unknown error"
			}
			s.setErr(fmt.Errorf("collaborator error: %s", message))
			return
		}

		text := msg.transcript()
		if text == "" {
			continue
		}

		s.emit(Result{
			Text:      text,
			Final:     msg.IsFinal || msg.SpeechFinal,
			Stability: msg.Stability,
		})
	}
}

// emit never blocks the read loop; a consumer that stopped draining loses
// results rather than wedging the websocket.
func (s *wsStream) emit(r Result) {
	select {
	case s.results <- r:
	default:
		s.logger.Warn("result channel full, dropping result", "final", r.Final)
	}
}

// wsMessage is the collaborator's result frame. The flat fields are the
// primary schema; the channel block covers deepgram-style payloads.
type wsMessage struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Text        string  `json:"text"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Stability   float64 `json:"stability"`

	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (m wsMessage) transcript() string {
	if text := strings.TrimSpace(m.Text); text != "" {
		return text
	}
	if len(m.Channel.Alternatives) > 0 {
		return strings.TrimSpace(m.Channel.Alternatives[0].Transcript)
	}
	return ""
}

func buildStreamURL(cfg Config, streamCfg StreamConfig) (string, error) {
	base := strings.TrimSpace(cfg.URL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid stream URL: %w", err)
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	q := u.Query()
	q.Set("encoding", streamCfg.Encoding)
	q.Set("sample_rate", strconv.Itoa(streamCfg.SampleRate))
	q.Set("channels", strconv.Itoa(streamCfg.Channels))
	q.Set("punctuate", strconv.FormatBool(streamCfg.Punctuate))
	q.Set("interim_results", strconv.FormatBool(streamCfg.InterimResults))
	q.Set("single_utterance", strconv.FormatBool(streamCfg.SingleUtterance))
	if cfg.Model != "" {
		q.Set("model", cfg.Model)
	}
	if streamCfg.Language != "" {
		q.Set("language", streamCfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ Provider = (*WSProvider)(nil)
var _ Stream = (*wsStream)(nil)
