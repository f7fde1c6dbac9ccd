// Package web serves the live status dashboard: loop state, transcripts,
// and per-turn metrics over HTTP and websocket.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voxloop/voxloop/pkg/dialog"
	"github.com/voxloop/voxloop/pkg/hub"
)

// maxLogEntries bounds the in-memory log buffer.
const maxLogEntries = 500

// StateProvider exposes the loop's current state. *dialog.Coordinator
// implements it.
type StateProvider interface {
	State() (dialog.TurnState, string)
}

// LogEntry is one dashboard log line.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Server is the dashboard server. It also implements dialog.EventSink so
// the coordinator can be wired to it directly.
type Server struct {
	app    *fiber.App
	bind   string
	logger *slog.Logger

	state   StateProvider
	metrics *dialog.MetricsCollector

	statusHub *hub.Hub

	logsMu sync.RWMutex
	logs   []LogEntry
}

// NewServer creates a dashboard server.
func NewServer(bind string, state StateProvider, metrics *dialog.MetricsCollector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		bind:      bind,
		logger:    logger.With("component", "web"),
		state:     state,
		metrics:   metrics,
		statusHub: hub.New("status", logger),
		logs:      make([]LogEntry, 0, maxLogEntries),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxloop dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/log", s.handleLog)
	api.Get("/metrics", s.handleMetrics)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start runs the hub and the HTTP listener until ctx is cancelled.
// Call in a goroutine; it blocks.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	s.logger.Info("dashboard listening", "bind", s.bind)
	return s.app.Listen(s.bind)
}

// Shutdown stops the HTTP listener.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// addLog appends a dashboard log line and broadcasts it.
func (s *Server) addLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()
}
