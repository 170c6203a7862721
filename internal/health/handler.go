package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/voice-link/internal/realtime"
	"github.com/eleven-am/voice-link/internal/shared"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type AgentStats struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
	Queued    int `json:"queued"`
	Buffered  int `json:"buffered"`
}

type Stats struct {
	Agents  AgentStats   `json:"agents"`
	Runtime RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type AgentsResponse struct {
	Total     int                  `json:"total"`
	Connected int                  `json:"connected"`
	Agents    []realtime.AgentInfo `json:"agents"`
}

type InterruptResponse struct {
	AgentID   string `json:"agent_id"`
	Utterance string `json:"utterance,omitempty"`
}

type Handler struct {
	registry  *realtime.Registry
	redis     *redis.Client
	gatherer  prometheus.Gatherer
	version   string
	startTime time.Time
}

// NewHandler builds the local status surface. redis may be nil when event
// fan-out is disabled.
func NewHandler(registry *realtime.Registry, redis *redis.Client, gatherer prometheus.Gatherer, version string) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{
		registry:  registry,
		redis:     redis,
		gatherer:  gatherer,
		version:   version,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
	e.GET("/health/agents", h.Agents)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api/v1")
	api.POST("/agents/:id/interrupt", h.Interrupt)
	api.POST("/agents/:id/connect", h.Connect)
	api.POST("/agents/:id/disconnect", h.Disconnect)
}

func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	agents := h.registry.List()
	components := map[string]ComponentStatus{
		"realtime": h.checkRealtime(agents),
	}
	if h.redis != nil {
		components["redis"] = h.checkRedis(ctx)
	}

	overallStatus := computeOverallStatus(components)

	stats := AgentStats{Total: len(agents)}
	for _, a := range agents {
		if a.Connected {
			stats.Connected++
		}
		stats.Queued += a.Queued
		stats.Buffered += a.Buffered
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Agents: stats,
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

func (h *Handler) Agents(c echo.Context) error {
	agents := h.registry.List()

	connected := 0
	for _, a := range agents {
		if a.Connected {
			connected++
		}
	}

	return c.JSON(http.StatusOK, AgentsResponse{
		Total:     len(agents),
		Connected: connected,
		Agents:    agents,
	})
}

// Interrupt stops whatever the agent is currently saying.
func (h *Handler) Interrupt(c echo.Context) error {
	agentID := c.Param("id")
	client, ok := h.registry.Get(agentID)
	if !ok {
		return shared.NotFound("agent_not_found", "no client registered for agent")
	}

	utterance := client.CurrentUtterance()
	client.InterruptAudio(utterance)

	return c.JSON(http.StatusOK, InterruptResponse{
		AgentID:   agentID,
		Utterance: utterance,
	})
}

// Connect dials an agent that is idle or has exhausted its reconnect
// attempts. The attempt counter starts over.
func (h *Handler) Connect(c echo.Context) error {
	client, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return shared.NotFound("agent_not_found", "no client registered for agent")
	}
	if client.IsConnected() {
		return shared.Conflict("already_connected", "agent is already connected")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return shared.InternalError("connect_failed", err.Error())
	}
	return c.JSON(http.StatusOK, h.agentInfo(client.AgentID()))
}

func (h *Handler) Disconnect(c echo.Context) error {
	client, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return shared.NotFound("agent_not_found", "no client registered for agent")
	}
	client.Disconnect()
	return c.JSON(http.StatusOK, h.agentInfo(client.AgentID()))
}

func (h *Handler) agentInfo(agentID string) realtime.AgentInfo {
	for _, a := range h.registry.List() {
		if a.ID == agentID {
			return a
		}
	}
	return realtime.AgentInfo{ID: agentID}
}

func (h *Handler) checkRealtime(agents []realtime.AgentInfo) ComponentStatus {
	if len(agents) == 0 {
		return ComponentStatus{
			Status: StatusUnhealthy,
			Error:  "no agents registered",
		}
	}

	connected := 0
	for _, a := range agents {
		if a.Connected {
			connected++
		}
	}

	switch {
	case connected == len(agents):
		return ComponentStatus{Status: StatusHealthy}
	case connected > 0:
		return ComponentStatus{Status: StatusDegraded, Error: "some agents disconnected"}
	default:
		return ComponentStatus{Status: StatusUnhealthy, Error: "no agents connected"}
	}
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return ComponentStatus{
			Status:    StatusUnhealthy,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "ping failed",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func computeOverallStatus(components map[string]ComponentStatus) Status {
	if status, ok := components["realtime"]; ok && status.Status == StatusUnhealthy {
		return StatusUnhealthy
	}

	for _, status := range components {
		if status.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
