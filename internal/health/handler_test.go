package health

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/voice-link/internal/metrics"
	"github.com/eleven-am/voice-link/internal/realtime"
)

func newTestRegistry(t *testing.T, agentIDs ...string) *realtime.Registry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := realtime.NewRegistry()
	for _, id := range agentIDs {
		c, err := realtime.New(realtime.Config{URL: "ws://127.0.0.1:1", AgentID: id}, realtime.Callbacks{}, nil, nil, logger)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if err := registry.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	t.Cleanup(registry.CloseAll)
	return registry
}

func serve(h *Handler, method, path string) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestLiveness(t *testing.T) {
	h := NewHandler(newTestRegistry(t), nil, prometheus.NewRegistry(), "test")
	rec := serve(h, http.MethodGet, "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestReadiness_Disconnected(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	h := NewHandler(newTestRegistry(t, "agent_1"), redisClient, prometheus.NewRegistry(), "test")
	rec := serve(h, http.MethodGet, "/health/ready")

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Stats.Agents.Total != 1 || resp.Stats.Agents.Connected != 0 {
		t.Errorf("unexpected agent stats %+v", resp.Stats.Agents)
	}
	if resp.Components["redis"].Status != StatusHealthy {
		t.Errorf("expected healthy redis, got %+v", resp.Components["redis"])
	}
	if resp.Version != "test" {
		t.Errorf("expected version test, got %q", resp.Version)
	}
}

func TestAgents(t *testing.T) {
	h := NewHandler(newTestRegistry(t, "agent_b", "agent_a"), nil, prometheus.NewRegistry(), "test")
	rec := serve(h, http.MethodGet, "/health/agents")

	var resp AgentsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Total != 2 || resp.Connected != 0 {
		t.Errorf("unexpected counts %+v", resp)
	}
	if resp.Agents[0].ID != "agent_a" || resp.Agents[0].State != "idle" {
		t.Errorf("unexpected first agent %+v", resp.Agents[0])
	}
}

func TestInterrupt(t *testing.T) {
	h := NewHandler(newTestRegistry(t, "agent_1"), nil, prometheus.NewRegistry(), "test")

	rec := serve(h, http.MethodPost, "/api/v1/agents/agent_1/interrupt")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(h, http.MethodPost, "/api/v1/agents/missing/interrupt")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestConnectDisconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := realtime.NewRegistry()
	t.Cleanup(registry.CloseAll)
	for id, url := range map[string]string{"live": "ws" + srv.URL[4:], "dead": "ws://127.0.0.1:1"} {
		c, err := realtime.New(realtime.Config{URL: url, AgentID: id}, realtime.Callbacks{}, nil, nil, logger)
		if err != nil {
			t.Fatalf("new client: %v", err)
		}
		if err := registry.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	h := NewHandler(registry, nil, prometheus.NewRegistry(), "test")

	rec := serve(h, http.MethodPost, "/api/v1/agents/live/connect")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var info realtime.AgentInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !info.Connected || info.State != "open" {
		t.Errorf("unexpected agent info %+v", info)
	}

	if rec := serve(h, http.MethodPost, "/api/v1/agents/live/connect"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for second connect, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/api/v1/agents/dead/connect"); rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for unreachable server, got %d", rec.Code)
	}
	if rec := serve(h, http.MethodPost, "/api/v1/agents/missing/connect"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = serve(h, http.MethodPost, "/api/v1/agents/live/disconnect")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if info.Connected || info.State != "closed" {
		t.Errorf("unexpected agent info after disconnect %+v", info)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ReconnectAttempt("agent_1")

	h := NewHandler(newTestRegistry(t), nil, reg, "test")
	rec := serve(h, http.MethodGet, "/metrics")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "voicelink_reconnect_attempts_total") {
		t.Error("metrics output should include registered collectors")
	}
}

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]ComponentStatus
		want       Status
	}{
		{"all healthy", map[string]ComponentStatus{"realtime": {Status: StatusHealthy}, "redis": {Status: StatusHealthy}}, StatusHealthy},
		{"redis down", map[string]ComponentStatus{"realtime": {Status: StatusHealthy}, "redis": {Status: StatusUnhealthy}}, StatusDegraded},
		{"realtime down", map[string]ComponentStatus{"realtime": {Status: StatusUnhealthy}}, StatusUnhealthy},
		{"partial", map[string]ComponentStatus{"realtime": {Status: StatusDegraded}}, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeOverallStatus(tt.components); got != tt.want {
				t.Errorf("computeOverallStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}
