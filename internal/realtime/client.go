package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eleven-am/voice-link/internal/audio"
	"github.com/eleven-am/voice-link/internal/metrics"
	"github.com/eleven-am/voice-link/internal/playback"
	"github.com/eleven-am/voice-link/internal/shared"
	"github.com/eleven-am/voice-link/internal/transport"
)

const (
	DefaultFrameDelay = 5 * time.Millisecond
	DefaultFlushDelay = 5 * time.Millisecond

	transcriptCacheSize = 4096
)

var ErrDisconnected = errors.New("client disconnected")

type Config struct {
	URL     string
	AgentID string
	Token   string

	Session transport.SessionConfig
	Backoff shared.BackoffConfig

	QueueCapacity int
	FrameDelay    time.Duration
	FlushDelay    time.Duration
}

// Callbacks are invoked one at a time, in order, never concurrently, for a
// given client. A callback may call any Client method.
type Callbacks struct {
	OnStatus func(connected bool)
	OnEvent  func(ev transport.ServerEvent)
	OnError  func(ev *transport.ErrorEvent)
}

// Player is the playback side of the client.
type Player interface {
	Enqueue(utteranceID string, samples []float32) error
	Interrupt() int
	Cleanup() error
	IsPlaying() bool
	Current() string
	Pending() int
	Close() error
}

type timer interface {
	Stop() bool
}

// Client is a reconnecting realtime voice connection for one agent.
type Client struct {
	cfg     Config
	cb      Callbacks
	log     *slog.Logger
	metrics *metrics.Metrics
	dialer  *websocket.Dialer

	player      Player
	decoder     *audio.Decoder
	transcripts *lru.Cache[string, struct{}]
	queue       *OutboundQueue

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	ready    bool
	flushing bool
	attempts int
	retry    timer
	gen      uint64

	writeMu sync.Mutex

	cbMu      sync.Mutex
	cbQueue   []func()
	cbRunning bool

	framerMu sync.Mutex
	framer   *audio.Framer

	afterFunc func(d time.Duration, f func()) timer
	pause     func(ctx context.Context, d time.Duration) error
}

// New builds a client. A nil player renders into a NullDevice.
func New(cfg Config, cb Callbacks, player Player, m *metrics.Metrics, log *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("realtime url is required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("agent id is required")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.FrameDelay <= 0 {
		cfg.FrameDelay = DefaultFrameDelay
	}
	if cfg.FlushDelay <= 0 {
		cfg.FlushDelay = DefaultFlushDelay
	}
	cfg.Backoff = shared.NormalizeBackoff(cfg.Backoff)

	log = log.With("component", "realtime", "agent_id", cfg.AgentID)

	if player == nil {
		player = playback.NewScheduler(playback.Config{
			SampleRate: audio.SampleRate,
			AgentID:    cfg.AgentID,
		}, playback.NewNullDevice, m, log)
	}

	transcripts, err := lru.New[string, struct{}](transcriptCacheSize)
	if err != nil {
		return nil, fmt.Errorf("transcript cache: %w", err)
	}

	return &Client{
		cfg:         cfg,
		cb:          cb,
		log:         log,
		metrics:     m,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		player:      player,
		decoder:     audio.NewDecoder(audio.NewDeduplicator()),
		transcripts: transcripts,
		queue:       NewOutboundQueue(cfg.QueueCapacity),
		state:       StateIdle,
		framer:      audio.NewFramer(audio.FrameSamples),
		afterFunc: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
		pause: sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) AgentID() string {
	return c.cfg.AgentID
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Client) ReadyState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) QueueLen() int {
	return c.queue.Len()
}

func (c *Client) IsPlaying() bool {
	return c.player.IsPlaying()
}

// CurrentUtterance returns the utterance whose audio is rendering, if any.
func (c *Client) CurrentUtterance() string {
	return c.player.Current()
}

// BufferedAudio returns how many decoded buffers wait to render.
func (c *Client) BufferedAudio() int {
	return c.player.Pending()
}

// TrackedUtterances returns how many utterances hold dedup state.
func (c *Client) TrackedUtterances() int {
	return c.decoder.Dedup().Utterances()
}

// SendMessage writes ev to the socket, or queues it while the connection is
// not ready. Messages queued before a connect are delivered in order before
// any message sent after it.
func (c *Client) SendMessage(ctx context.Context, ev transport.ClientEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := transport.EncodeClientEvent(ev, shared.NewID("evt_"))
	if err != nil {
		return err
	}
	msg := queuedMessage{eventType: ev.Type(), payload: payload}

	c.mu.Lock()
	conn := c.conn
	if !c.ready || c.flushing || conn == nil {
		err := c.queue.Push(msg)
		c.mu.Unlock()
		if err != nil {
			c.log.Warn("outbound queue full, dropping message", "type", msg.eventType, "capacity", c.queue.Cap())
			c.metrics.MessageDropped(c.cfg.AgentID)
			return err
		}
		c.metrics.MessageQueued(c.cfg.AgentID, c.queue.Len())
		return nil
	}
	c.mu.Unlock()

	return c.write(conn, msg)
}

func (c *Client) write(conn *websocket.Conn, msg queuedMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
		return fmt.Errorf("write %s: %w", msg.eventType, err)
	}
	c.metrics.MessageSent(c.cfg.AgentID, string(msg.eventType))
	return nil
}

// InterruptAudio stops playback and forgets the dedup state of utteranceID.
func (c *Client) InterruptAudio(utteranceID string) {
	dropped := c.player.Interrupt()
	if utteranceID != "" {
		c.decoder.Done(utteranceID)
	}
	c.log.Debug("audio interrupted", "utterance", utteranceID, "dropped", dropped)
}

// CleanupAudio stops playback, releases the output device and clears all
// dedup state.
func (c *Client) CleanupAudio() {
	if err := c.player.Cleanup(); err != nil {
		c.log.Warn("failed to release output device", "error", err)
	}
	c.decoder.Dedup().Reset()
}

// Close disconnects and stops the player.
func (c *Client) Close() error {
	c.Disconnect()
	return c.player.Close()
}

func (c *Client) emitStatus(connected bool) {
	c.metrics.SetConnected(c.cfg.AgentID, connected)
	if c.cb.OnStatus == nil {
		return
	}
	c.dispatch(func() { c.cb.OnStatus(connected) })
}

func (c *Client) emitEvent(ev transport.ServerEvent) {
	if c.cb.OnEvent == nil {
		return
	}
	c.dispatch(func() { c.cb.OnEvent(ev) })
}

func (c *Client) emitError(ev *transport.ErrorEvent) {
	if c.cb.OnError == nil {
		return
	}
	c.dispatch(func() { c.cb.OnError(ev) })
}

// dispatch runs callbacks one at a time in emission order without holding a
// lock while they run. If another callback is already running, fn is queued
// and the running goroutine delivers it next, so a callback may call back
// into the client (Disconnect, Connect, SendMessage) without blocking.
func (c *Client) dispatch(fn func()) {
	c.cbMu.Lock()
	c.cbQueue = append(c.cbQueue, fn)
	if c.cbRunning {
		c.cbMu.Unlock()
		return
	}
	c.cbRunning = true
	for len(c.cbQueue) > 0 {
		next := c.cbQueue[0]
		c.cbQueue[0] = nil
		c.cbQueue = c.cbQueue[1:]
		c.cbMu.Unlock()
		c.invoke(next)
		c.cbMu.Lock()
	}
	c.cbQueue = nil
	c.cbRunning = false
	c.cbMu.Unlock()
}

func (c *Client) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic in realtime callback", "panic", r)
		}
	}()
	fn()
}
