package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/voice-link/internal/events"
)

// events-tail prints the envelopes published for one agent, one JSON object
// per line.
func main() {
	agentID := os.Getenv("AGENT_ID")
	if agentID == "" {
		fmt.Fprintln(os.Stderr, "AGENT_ID env required")
		os.Exit(1)
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		os.Exit(1)
	}

	pub := events.NewRedisPublisher(client, os.Getenv("EVENTS_CHANNEL"), nil)
	fmt.Fprintf(os.Stderr, "Listening on %s\n", pub.Channel(agentID))

	enc := json.NewEncoder(os.Stdout)
	err := pub.Subscribe(ctx, agentID, func(env events.Envelope) {
		_ = enc.Encode(env)
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Subscription failed: %v\n", err)
		os.Exit(1)
	}
}
