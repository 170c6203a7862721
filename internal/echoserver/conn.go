package echoserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eleven-am/voice-link/internal/audio"
	"github.com/eleven-am/voice-link/internal/shared"
	"github.com/eleven-am/voice-link/internal/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 15 * 1024 * 1024
)

// session is one client connection. It buffers appended audio until a
// commit and then plays it back as a response.
type session struct {
	ws      *websocket.Conn
	agentID string
	chunk   int
	logger  *slog.Logger

	send chan []byte
	done chan struct{}

	mu     sync.Mutex
	closed bool

	input    []int16
	settings json.RawMessage
}

func newSession(ws *websocket.Conn, agentID string, chunk int, logger *slog.Logger) *session {
	return &session{
		ws:      ws,
		agentID: agentID,
		chunk:   chunk,
		logger:  logger.With("agent_id", agentID),
		send:    make(chan []byte, 256),
		done:    make(chan struct{}),
	}
}

func (s *session) emit(eventType transport.EventType, fields map[string]any) {
	msg := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["type"] = eventType
	msg["event_id"] = shared.NewID("event_")

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("failed to marshal event", "type", eventType, "error", err)
		return
	}

	select {
	case <-s.done:
		return
	default:
	}

	// A full buffer holds the read pump until the client catches up.
	t := time.NewTimer(writeWait)
	defer t.Stop()
	select {
	case s.send <- data:
	case <-s.done:
	case <-t.C:
		s.logger.Warn("client not reading, dropping event", "type", eventType)
	}
}

func (s *session) emitError(code, message string) {
	s.emit(transport.EventError, map[string]any{
		"error": transport.ErrorDetail{
			Type:    "invalid_request_error",
			Code:    code,
			Message: message,
		},
	})
}

func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.ws.Close()
}

func (s *session) readPump() {
	defer s.Close()

	s.ws.SetReadLimit(maxMessageSize)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
		s.handle(data)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.Close()
	}()

	for {
		select {
		case data := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("websocket write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			_ = s.ws.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		}
	}
}

func (s *session) handle(data []byte) {
	var msg struct {
		Type    transport.EventType `json:"type"`
		Audio   string              `json:"audio"`
		Session json.RawMessage     `json:"session"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		s.emitError("invalid_json", "message is not valid json")
		return
	}

	switch msg.Type {
	case transport.EventSessionUpdate:
		s.settings = msg.Session
		s.emit(transport.EventSessionUpdated, map[string]any{"session": s.settings})

	case transport.EventInputAudioAppend:
		samples, err := audio.DecodePCM16(msg.Audio)
		if err != nil {
			s.emitError("invalid_audio", err.Error())
			return
		}
		s.input = append(s.input, samples...)

	case transport.EventInputAudioCommit:
		if len(s.input) == 0 {
			s.emitError("input_audio_buffer_commit_empty", "Error committing input audio buffer: buffer too small.")
			return
		}
		itemID := shared.NewID("item_")
		s.emit(transport.EventInputAudioCommitted, map[string]any{"item_id": itemID})
		s.emit(transport.EventInputTranscriptionCompleted, map[string]any{
			"item_id":       itemID,
			"content_index": 0,
			"transcript":    describe(len(s.input)),
		})
		s.respond(s.input)
		s.input = nil

	case transport.EventInputAudioClear:
		s.input = nil
		s.emit(transport.EventInputAudioCleared, nil)

	case transport.EventResponseCancel:
		s.emitError("response_cancel_not_active", "Cancellation failed: no active response found")

	case transport.EventResponseCreate:
		s.respond(nil)

	default:
		s.emitError("unknown_event", fmt.Sprintf("unsupported event type %q", msg.Type))
	}
}

// respond plays samples back as one audio response, chunked into deltas,
// followed by a transcript describing what was echoed.
func (s *session) respond(samples []int16) {
	responseID := shared.NewID("resp_")
	itemID := shared.NewID("item_")
	ids := map[string]any{
		"response_id":   responseID,
		"item_id":       itemID,
		"output_index":  0,
		"content_index": 0,
	}
	with := func(k string, v any) map[string]any {
		m := make(map[string]any, len(ids)+1)
		for key, val := range ids {
			m[key] = val
		}
		m[k] = v
		return m
	}

	s.emit(transport.EventResponseCreated, map[string]any{
		"response": map[string]any{"id": responseID, "status": "in_progress"},
	})
	for start := 0; start < len(samples); start += s.chunk {
		end := min(start+s.chunk, len(samples))
		s.emit(transport.EventAudioDelta, with("delta", audio.EncodePCM16(samples[start:end])))
	}
	if len(samples) > 0 {
		s.emit(transport.EventAudioDone, ids)
	}
	s.emit(transport.EventAudioTranscriptDone, with("transcript", describe(len(samples))))
	s.emit(transport.EventResponseDone, map[string]any{
		"response": map[string]any{"id": responseID, "status": "completed"},
	})
}

func describe(samples int) string {
	ms := samples * 1000 / audio.SampleRate
	return fmt.Sprintf("echoed %d ms of audio", ms)
}
