package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/voice-link/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 15 * 1024 * 1024
)

type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connect opens the socket if it is not already open. On success it sends
// the session configuration and then replays queued messages in order. A
// failed dial is returned and also schedules a reconnect.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, true)
}

func (c *Client) connect(ctx context.Context, manual bool) error {
	c.mu.Lock()
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.stopRetryLocked()
	if manual {
		c.attempts = 0
	}
	stale := c.conn
	c.conn = nil
	c.ready = false
	c.state = StateConnecting
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if stale != nil {
		_ = stale.Close()
	}

	conn, err := c.dial(ctx)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrDisconnected
	}
	if err != nil {
		c.state = StateClosed
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.log.Warn("realtime connect failed", "error", err)
		return err
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.ready = true
	c.flushing = true
	c.mu.Unlock()

	c.log.Info("realtime connected", "url", c.cfg.URL)

	done := make(chan struct{})
	go c.readLoop(conn, gen, done)
	go c.pingLoop(conn, done)

	if err := c.sendSession(conn); err != nil {
		c.log.Warn("failed to send session configuration", "error", err)
	}
	c.emitStatus(true)
	c.flushQueue(context.WithoutCancel(ctx), conn, gen)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("agent_id", c.cfg.AgentID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return conn, nil
}

func (c *Client) sendSession(conn *websocket.Conn) error {
	payload, err := transport.EncodeClientEvent(transport.SessionUpdate{Session: c.cfg.Session}, "")
	if err != nil {
		return err
	}
	return c.write(conn, queuedMessage{eventType: transport.EventSessionUpdate, payload: payload})
}

// flushQueue replays queued messages while new sends keep queueing behind
// them. A failed write puts the message back at the tail and stops the flush;
// the read loop notices the dead socket.
func (c *Client) flushQueue(ctx context.Context, conn *websocket.Conn, gen uint64) {
	sent := 0
	defer func() {
		c.mu.Lock()
		if gen == c.gen {
			c.flushing = false
		}
		c.mu.Unlock()
		c.metrics.SetQueueDepth(c.cfg.AgentID, c.queue.Len())
		if sent > 0 {
			c.log.Debug("flushed queued messages", "count", sent)
		}
	}()

	for {
		c.mu.Lock()
		if gen != c.gen || !c.ready {
			c.mu.Unlock()
			return
		}
		msg, ok := c.queue.Pop()
		if !ok {
			c.flushing = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		if sent > 0 {
			if err := c.pause(ctx, c.cfg.FlushDelay); err != nil {
				c.queue.Requeue(msg)
				return
			}
		}

		if err := c.write(conn, msg); err != nil {
			c.log.Warn("failed to flush queued message", "type", msg.eventType, "error", err)
			c.queue.Requeue(msg)
			return
		}
		sent++
	}
}

func (c *Client) readLoop(conn *websocket.Conn, gen uint64, done chan struct{}) {
	defer func() {
		close(done)
		c.handleClose(conn, gen)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("realtime read error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if msgType != websocket.TextMessage {
			continue
		}
		c.route(data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug("ping failed", "error", err)
				return
			}
		}
	}
}

// handleClose runs when a read loop ends. Loops from a connection that was
// replaced or disconnected are ignored.
func (c *Client) handleClose(conn *websocket.Conn, gen uint64) {
	_ = conn.Close()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.ready = false
	c.flushing = false
	c.state = StateClosed
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.log.Info("realtime connection closed")
	c.emitStatus(false)
}

// scheduleReconnectLocked must be called with mu held.
func (c *Client) scheduleReconnectLocked() {
	if c.retry != nil {
		return
	}
	if c.attempts >= c.cfg.Backoff.MaxAttempts {
		c.log.Error("realtime reconnect gave up", "attempts", c.attempts)
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.cfg.Backoff.Delay(attempt)
	gen := c.gen

	c.metrics.ReconnectAttempt(c.cfg.AgentID)
	c.log.Info("realtime reconnect scheduled", "attempt", attempt, "delay", delay)

	c.retry = c.afterFunc(delay, func() {
		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		c.retry = nil
		c.mu.Unlock()

		if err := c.connect(context.Background(), false); err != nil {
			c.log.Debug("realtime reconnect attempt failed", "attempt", attempt, "error", err)
		}
	})
}

func (c *Client) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// Disconnect closes the socket, cancels any pending reconnect, drops queued
// messages and releases audio resources.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopRetryLocked()
	conn := c.conn
	wasReady := c.ready
	c.conn = nil
	c.ready = false
	c.flushing = false
	c.attempts = 0
	c.state = StateClosing
	c.mu.Unlock()

	if dropped := c.queue.Clear(); dropped > 0 {
		c.log.Debug("dropped queued messages on disconnect", "count", dropped)
	}
	c.metrics.SetQueueDepth(c.cfg.AgentID, 0)

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = conn.Close()
	}

	c.framerMu.Lock()
	c.framer.Reset()
	c.framerMu.Unlock()

	c.CleanupAudio()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()

	if wasReady {
		c.log.Info("realtime disconnected")
	}
	c.emitStatus(false)
}

// dropConnection closes the live socket so the read loop reports a close and
// the normal reconnect path runs.
func (c *Client) dropConnection() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}
