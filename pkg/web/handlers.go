package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/voxloop/voxloop/pkg/hub"
)

// stateResponse is the /api/state payload.
type stateResponse struct {
	State   string `json:"state"`
	TurnID  string `json:"turn_id"`
	Clients int    `json:"clients"`
}

func (s *Server) currentState() stateResponse {
	resp := stateResponse{Clients: s.statusHub.ClientCount()}
	if s.state != nil {
		state, turnID := s.state.State()
		resp.State = state.String()
		resp.TurnID = turnID
	}
	return resp
}

// handleHealth reports liveness.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleState returns the loop's current state.
func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.currentState())
}

// handleLog returns recent dashboard log lines.
func (s *Server) handleLog(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// handleMetrics returns the per-turn metrics summary.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	if s.metrics == nil {
		return c.JSON(fiber.Map{})
	}
	return c.JSON(s.metrics.Snapshot())
}

// handleStatusWS streams loop events to one dashboard client.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// Snapshot first so a fresh client renders without waiting for the
	// next event.
	_ = c.WriteJSON(s.currentState())

	client, err := hub.NewClient(s.statusHub, c)
	if err != nil {
		// Hub not running (startup race or shutdown); drop the connection
		// and let the dashboard reconnect.
		_ = c.Close()
		return
	}
	client.Run()
}
