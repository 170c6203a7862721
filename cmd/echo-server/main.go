package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/eleven-am/voice-link/internal/echoserver"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	addr := getEnv("ECHO_ADDR", ":8090")
	chunk, _ := strconv.Atoi(getEnv("ECHO_CHUNK_SAMPLES", "0"))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	handler := echoserver.NewHandler(echoserver.Config{
		Token:        os.Getenv("ECHO_TOKEN"),
		ChunkSamples: chunk,
	}, logger)
	handler.RegisterRoutes(e.Group("/v1/realtime"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("echo server listening", "addr", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("echo server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
