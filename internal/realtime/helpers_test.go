package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/voice-link/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeServer struct {
	srv      *httptest.Server
	received chan map[string]any

	mu      sync.Mutex
	conns   []*websocket.Conn
	queries []url.Values
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{received: make(chan map[string]any, 256)}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.queries = append(s.queries, r.URL.Query())
		s.mu.Unlock()

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var m map[string]any
			if err := json.Unmarshal(data, &m); err == nil {
				s.received <- m
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeServer) url() string {
	return "ws" + s.srv.URL[4:]
}

func (s *fakeServer) connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *fakeServer) last() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[len(s.conns)-1]
}

func (s *fakeServer) send(t *testing.T, msg string) {
	t.Helper()
	if err := s.last().WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (s *fakeServer) drop() {
	_ = s.last().Close()
}

func (s *fakeServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case m := <-s.received:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client message")
		return nil
	}
}

func (s *fakeServer) expectType(t *testing.T, want transport.EventType) map[string]any {
	t.Helper()
	m := s.next(t)
	if m["type"] != string(want) {
		t.Fatalf("expected %s, got %v", want, m["type"])
	}
	return m
}

type fakeTimers struct {
	mu      sync.Mutex
	delays  []time.Duration
	fns     []func()
	stopped []bool
}

type fakeTimer struct {
	timers *fakeTimers
	idx    int
}

func (t *fakeTimer) Stop() bool {
	t.timers.mu.Lock()
	defer t.timers.mu.Unlock()
	was := !t.timers.stopped[t.idx]
	t.timers.stopped[t.idx] = true
	return was
}

func (f *fakeTimers) afterFunc(d time.Duration, fn func()) timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	f.stopped = append(f.stopped, false)
	return &fakeTimer{timers: f, idx: len(f.fns) - 1}
}

func (f *fakeTimers) scheduled() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

func (f *fakeTimers) isStopped(i int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped[i]
}

// fire runs the i-th scheduled callback the way an expired timer would.
func (f *fakeTimers) fire(i int) {
	f.mu.Lock()
	fn := f.fns[i]
	f.mu.Unlock()
	fn()
}

type fakePlayer struct {
	mu         sync.Mutex
	enqueued   []string
	interrupts int
	cleanups   int
	playing    bool
	current    string
	pending    int
}

func (p *fakePlayer) Enqueue(utteranceID string, samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enqueued = append(p.enqueued, utteranceID)
	return nil
}

func (p *fakePlayer) Interrupt() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupts++
	p.playing = false
	p.current = ""
	return 0
}

func (p *fakePlayer) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanups++
	return nil
}

func (p *fakePlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *fakePlayer) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *fakePlayer) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

func (p *fakePlayer) Close() error { return nil }

func (p *fakePlayer) counts() (enqueued, interrupts, cleanups int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.enqueued), p.interrupts, p.cleanups
}

type recorder struct {
	status chan bool
	events chan transport.ServerEvent
	errors chan *transport.ErrorEvent
}

func newRecorder() *recorder {
	return &recorder{
		status: make(chan bool, 32),
		events: make(chan transport.ServerEvent, 64),
		errors: make(chan *transport.ErrorEvent, 16),
	}
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStatus: func(connected bool) { r.status <- connected },
		OnEvent:  func(ev transport.ServerEvent) { r.events <- ev },
		OnError:  func(ev *transport.ErrorEvent) { r.errors <- ev },
	}
}

func (r *recorder) nextEvent(t *testing.T) transport.ServerEvent {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (r *recorder) waitStatus(t *testing.T, want bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.status:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for status %v", want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// pauses records every pacing delay instead of sleeping.
type pauses struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *pauses) pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.delays = append(p.delays, d)
	p.mu.Unlock()
	return nil
}

func (p *pauses) recorded() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

type testClient struct {
	*Client
	player *fakePlayer
	timers *fakeTimers
	pauses *pauses
}

// useDeadConn installs a socket that is already closed as the live
// connection, without a read loop, so every write to it fails.
func (c *testClient) useDeadConn(t *testing.T, server *fakeServer) (*websocket.Conn, uint64) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(server.url(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.ready = true
	c.state = StateOpen
	return conn, c.gen
}

func newTestClient(t *testing.T, rawURL string, cb Callbacks, tweak func(*Config)) *testClient {
	t.Helper()
	cfg := Config{
		URL:     rawURL,
		AgentID: "agent_1",
		Session: transport.DefaultSessionConfig(),
	}
	if tweak != nil {
		tweak(&cfg)
	}

	player := &fakePlayer{}
	c, err := New(cfg, cb, player, nil, testLogger())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	timers := &fakeTimers{}
	c.afterFunc = timers.afterFunc
	p := &pauses{}
	c.pause = p.pause
	t.Cleanup(func() { c.Close() })

	return &testClient{Client: c, player: player, timers: timers, pauses: p}
}
