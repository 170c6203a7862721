package bootstrap

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/eleven-am/voice-link/internal/health"
	"github.com/eleven-am/voice-link/internal/realtime"
)

const version = "1.0.0"

func ProvideHealthHandler(registry *realtime.Registry, redis *redis.Client, reg *prometheus.Registry) *health.Handler {
	return health.NewHandler(registry, redis, reg, version)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
