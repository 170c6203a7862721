package echoserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/eleven-am/voice-link/internal/audio"
	"github.com/eleven-am/voice-link/internal/realtime"
	"github.com/eleven-am/voice-link/internal/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg Config) string {
	t.Helper()
	e := echo.New()
	NewHandler(cfg, testLogger()).RegisterRoutes(e.Group("/v1/realtime"))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/realtime"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readEvent(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("invalid json %s: %v", data, err)
	}
	return m
}

func writeEvent(t *testing.T, ws *websocket.Conn, ev transport.ClientEvent) {
	t.Helper()
	data, err := transport.EncodeClientEvent(ev, "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandleConnect_Rejects(t *testing.T) {
	url := newTestServer(t, Config{Token: "secret"})

	tests := []struct {
		name       string
		query      string
		token      string
		wantStatus int
	}{
		{"missing token", "?agent_id=a", "", http.StatusUnauthorized},
		{"wrong token", "?agent_id=a", "nope", http.StatusUnauthorized},
		{"missing agent", "", "secret", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.token != "" {
				header.Set("Authorization", "Bearer "+tt.token)
			}
			_, resp, err := websocket.DefaultDialer.Dial(url+tt.query, header)
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %v, want %d", resp, tt.wantStatus)
			}
		})
	}
}

func TestSession_EchoesCommittedAudio(t *testing.T) {
	url := newTestServer(t, Config{})
	ws := dial(t, url+"?agent_id=a", nil)

	if m := readEvent(t, ws); m["type"] != string(transport.EventSessionCreated) {
		t.Fatalf("first event = %v, want session.created", m["type"])
	}

	writeEvent(t, ws, transport.InputAudioCommit{})
	m := readEvent(t, ws)
	errBody, _ := m["error"].(map[string]any)
	if m["type"] != "error" || errBody["code"] != "input_audio_buffer_commit_empty" {
		t.Fatalf("expected commit_empty error, got %v", m)
	}

	samples := make([]int16, DefaultChunkSamples+100)
	for i := range samples {
		samples[i] = int16(i % 1000)
	}
	writeEvent(t, ws, transport.InputAudioAppend{Audio: audio.EncodePCM16(samples)})
	writeEvent(t, ws, transport.InputAudioCommit{})

	want := []transport.EventType{
		transport.EventInputAudioCommitted,
		transport.EventInputTranscriptionCompleted,
		transport.EventResponseCreated,
		transport.EventAudioDelta,
		transport.EventAudioDelta,
		transport.EventAudioDone,
		transport.EventAudioTranscriptDone,
		transport.EventResponseDone,
	}
	var echoed []int16
	var transcript string
	for i, wantType := range want {
		m := readEvent(t, ws)
		if m["type"] != string(wantType) {
			t.Fatalf("event %d = %v, want %s", i, m["type"], wantType)
		}
		switch wantType {
		case transport.EventAudioDelta:
			chunk, err := audio.DecodePCM16(m["delta"].(string))
			if err != nil {
				t.Fatalf("bad delta: %v", err)
			}
			echoed = append(echoed, chunk...)
		case transport.EventAudioTranscriptDone:
			transcript, _ = m["transcript"].(string)
		}
	}

	if len(echoed) != len(samples) {
		t.Fatalf("echoed %d samples, want %d", len(echoed), len(samples))
	}
	for i := range samples {
		if echoed[i] != samples[i] {
			t.Fatalf("sample %d = %d, want %d", i, echoed[i], samples[i])
		}
	}
	if transcript != "echoed 204 ms of audio" {
		t.Errorf("transcript = %q", transcript)
	}
}

func TestSession_LongResponseIsNotTruncated(t *testing.T) {
	url := newTestServer(t, Config{ChunkSamples: 1})
	ws := dial(t, url+"?agent_id=a", nil)
	readEvent(t, ws)

	samples := make([]int16, 20000)
	writeEvent(t, ws, transport.InputAudioAppend{Audio: audio.EncodePCM16(samples)})
	writeEvent(t, ws, transport.InputAudioCommit{})

	// Let the server outrun the reader.
	time.Sleep(100 * time.Millisecond)

	deltas := 0
	for {
		m := readEvent(t, ws)
		if m["type"] == string(transport.EventAudioDelta) {
			deltas++
		}
		if m["type"] == string(transport.EventResponseDone) {
			break
		}
	}
	if deltas != len(samples) {
		t.Errorf("received %d deltas, want %d", deltas, len(samples))
	}
}

func TestSession_ClearAndUnknown(t *testing.T) {
	url := newTestServer(t, Config{})
	ws := dial(t, url+"?agent_id=a", nil)
	readEvent(t, ws)

	writeEvent(t, ws, transport.InputAudioAppend{Audio: audio.EncodePCM16(make([]int16, 10))})
	writeEvent(t, ws, transport.InputAudioClear{})
	if m := readEvent(t, ws); m["type"] != string(transport.EventInputAudioCleared) {
		t.Fatalf("expected cleared, got %v", m["type"])
	}

	writeEvent(t, ws, transport.InputAudioCommit{})
	if m := readEvent(t, ws); m["type"] != "error" {
		t.Fatalf("expected error after clear, got %v", m["type"])
	}

	writeEvent(t, ws, transport.RawClientEvent{EventType: "made.up"})
	m := readEvent(t, ws)
	errBody, _ := m["error"].(map[string]any)
	if errBody["code"] != "unknown_event" {
		t.Errorf("expected unknown_event, got %v", m)
	}
}

func TestSession_SessionUpdateIsEchoed(t *testing.T) {
	url := newTestServer(t, Config{})
	ws := dial(t, url+"?agent_id=a", nil)
	readEvent(t, ws)

	cfg := transport.DefaultSessionConfig()
	cfg.Voice = "verse"
	writeEvent(t, ws, transport.SessionUpdate{Session: cfg})

	m := readEvent(t, ws)
	if m["type"] != string(transport.EventSessionUpdated) {
		t.Fatalf("expected session.updated, got %v", m["type"])
	}
	session, _ := m["session"].(map[string]any)
	if session["voice"] != "verse" {
		t.Errorf("session = %v", session)
	}
}

func TestClientRoundTrip(t *testing.T) {
	url := newTestServer(t, Config{Token: "secret"})

	var (
		mu          sync.Mutex
		transcripts []string
		audioDone   int
	)
	client, err := realtime.New(realtime.Config{
		URL:     url,
		AgentID: "agent-1",
		Token:   "secret",
		Session: transport.DefaultSessionConfig(),
	}, realtime.Callbacks{
		OnEvent: func(ev transport.ServerEvent) {
			mu.Lock()
			defer mu.Unlock()
			switch e := ev.(type) {
			case *transport.TranscriptDoneEvent:
				transcripts = append(transcripts, e.Transcript)
			case *transport.AudioDoneEvent:
				audioDone++
			}
		},
	}, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := client.SendAudio(ctx, make([]int16, 2*audio.FrameSamples)); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	if err := client.CommitAudio(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(transcripts) > 0
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transcripts) != 1 || transcripts[0] != "echoed 160 ms of audio" {
		t.Errorf("transcripts = %v", transcripts)
	}
	if audioDone != 1 {
		t.Errorf("audio done events = %d, want 1", audioDone)
	}
}
