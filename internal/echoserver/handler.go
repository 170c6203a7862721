// Package echoserver is a stand-in realtime endpoint for local runs. It
// speaks the same event protocol and answers every committed input buffer
// with the same audio.
package echoserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eleven-am/voice-link/internal/shared"
	"github.com/eleven-am/voice-link/internal/transport"
)

const DefaultChunkSamples = 4800

type Config struct {
	// Token, when set, must be presented as a bearer token.
	Token        string
	ChunkSamples int
}

type Handler struct {
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewHandler(cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ChunkSamples <= 0 {
		cfg.ChunkSamples = DefaultChunkSamples
	}
	return &Handler{
		cfg:    cfg,
		logger: logger.With("component", "echo_server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("", h.HandleConnect)
}

func (h *Handler) HandleConnect(c echo.Context) error {
	if h.cfg.Token != "" && c.Request().Header.Get("Authorization") != "Bearer "+h.cfg.Token {
		return shared.Unauthorized("invalid_token", "missing or invalid bearer token")
	}

	agentID := c.QueryParam("agent_id")
	if agentID == "" {
		return shared.BadRequest("missing_agent_id", "agent_id query parameter is required")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return err
	}

	s := newSession(ws, agentID, h.cfg.ChunkSamples, h.logger)
	h.logger.Info("client connected", "agent_id", agentID)

	go s.writePump()
	s.emit(transport.EventSessionCreated, map[string]any{
		"session": map[string]any{"id": shared.NewID("sess_")},
	})
	s.readPump()

	h.logger.Info("client disconnected", "agent_id", agentID)
	return nil
}
