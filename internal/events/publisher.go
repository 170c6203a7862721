package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/voice-link/internal/shared"
	"github.com/eleven-am/voice-link/internal/transport"
)

const DefaultChannelPrefix = "voicelink"

type Kind string

const (
	KindStatus Kind = "status"
	KindEvent  Kind = "event"
	KindError  Kind = "error"
)

// Envelope is what subscribers receive for every status change or forwarded
// server event.
type Envelope struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agent_id"`
	Kind      Kind            `json:"kind"`
	Type      string          `json:"type,omitempty"`
	Connected *bool           `json:"connected,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type Publisher interface {
	PublishStatus(ctx context.Context, agentID string, connected bool) error
	PublishEvent(ctx context.Context, agentID string, ev transport.ServerEvent) error
}

type RedisPublisher struct {
	redis  *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisPublisher(redisClient *redis.Client, prefix string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{
		redis:  redisClient,
		prefix: prefix,
		logger: logger.With("component", "events"),
	}
}

// Channel is the pub/sub channel carrying an agent's envelopes.
func (p *RedisPublisher) Channel(agentID string) string {
	return fmt.Sprintf("%s:%s:events", p.prefix, agentID)
}

func (p *RedisPublisher) PublishStatus(ctx context.Context, agentID string, connected bool) error {
	return p.publish(ctx, Envelope{
		AgentID:   agentID,
		Kind:      KindStatus,
		Connected: &connected,
	})
}

func (p *RedisPublisher) PublishEvent(ctx context.Context, agentID string, ev transport.ServerEvent) error {
	kind := KindEvent
	if ev.Type() == transport.EventError {
		kind = KindError
	}
	return p.publish(ctx, Envelope{
		AgentID: agentID,
		Kind:    kind,
		Type:    string(ev.Type()),
		Payload: ev.Raw(),
	})
}

func (p *RedisPublisher) publish(ctx context.Context, env Envelope) error {
	env.ID = shared.NewID("ve_")
	env.Timestamp = time.Now().UTC()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	channel := p.Channel(env.AgentID)
	if err := p.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish envelope: %w", err)
	}

	p.logger.Debug("published envelope",
		"agent_id", env.AgentID,
		"kind", env.Kind,
		"type", env.Type)
	return nil
}

// Subscribe delivers an agent's envelopes until ctx is cancelled.
func (p *RedisPublisher) Subscribe(ctx context.Context, agentID string, handler func(Envelope)) error {
	channel := p.Channel(agentID)
	pubsub := p.redis.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive envelope: %w", err)
		}

		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			p.logger.Error("unmarshal envelope", "error", err, "channel", channel)
			continue
		}
		handler(env)
	}
}

// NopPublisher drops everything. It is used when no Redis address is set.
type NopPublisher struct{}

func (NopPublisher) PublishStatus(context.Context, string, bool) error { return nil }

func (NopPublisher) PublishEvent(context.Context, string, transport.ServerEvent) error { return nil }
