package realtime

import (
	"errors"
	"strings"

	"github.com/eleven-am/voice-link/internal/audio"
	"github.com/eleven-am/voice-link/internal/transport"
)

type errorClass string

const (
	errorFatal     errorClass = "fatal"
	errorBenign    errorClass = "benign"
	errorForwarded errorClass = "forwarded"
)

const fatalNotConnected = "RealtimeAPI is not connected"

var benignErrors = []struct {
	code    string
	message string
}{
	{"input_audio_buffer_commit_empty", "buffer too small"},
	{"response_cancel_not_active", "no active response"},
	{"conversation_already_has_active_response", "already has an active response"},
}

func classifyError(detail transport.ErrorDetail) errorClass {
	if strings.Contains(detail.Message, fatalNotConnected) {
		return errorFatal
	}
	msg := strings.ToLower(detail.Message)
	for _, b := range benignErrors {
		if detail.Code == b.code || strings.Contains(msg, b.message) {
			return errorBenign
		}
	}
	return errorForwarded
}

// route handles one inbound text message. It never panics.
func (c *Client) route(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("panic handling realtime message", "panic", r)
		}
	}()

	ev, err := transport.DecodeServerEvent(data)
	if err != nil {
		c.log.Warn("failed to decode realtime message", "error", err)
		c.metrics.DecodeError(c.cfg.AgentID)
		return
	}
	c.metrics.EventReceived(c.cfg.AgentID, string(ev.Type()))

	switch e := ev.(type) {
	case *transport.AudioDeltaEvent:
		c.handleAudioDelta(e)
		return

	case *transport.AudioDoneEvent:
		c.decoder.Done(e.ItemID)

	case *transport.TranscriptDeltaEvent, *transport.TranscriptDoneEvent, *transport.InputTranscriptEvent:
		if !c.firstSighting(ev) {
			c.log.Debug("duplicate transcript event", "event_id", ev.ID(), "type", ev.Type())
			return
		}

	case *transport.SessionEvent:
		c.log.Info("realtime session configured", "type", e.Type())

	case *transport.InputAudioBufferEvent:
		if e.Type() == transport.EventSpeechStarted {
			if c.player.IsPlaying() {
				c.InterruptAudio(c.player.Current())
			}
		}

	case *transport.ErrorEvent:
		c.handleError(e)
		return
	}

	c.emitEvent(ev)
}

func (c *Client) handleAudioDelta(e *transport.AudioDeltaEvent) {
	buf, err := c.decoder.Decode(e.ItemID, e.Delta)
	switch {
	case err == nil:
		if err := c.player.Enqueue(e.ItemID, buf); err != nil {
			c.log.Debug("audio buffer not queued", "item_id", e.ItemID, "error", err)
		}
	case errors.Is(err, audio.ErrDuplicate):
		c.log.Debug("duplicate audio chunk", "item_id", e.ItemID)
		c.metrics.DuplicateChunk(c.cfg.AgentID)
	case errors.Is(err, audio.ErrEmptyChunk):
		c.log.Warn("empty audio chunk", "item_id", e.ItemID)
	default:
		c.log.Error("failed to decode audio chunk", "item_id", e.ItemID, "error", err)
		c.metrics.DecodeError(c.cfg.AgentID)
		c.InterruptAudio(e.ItemID)
	}
}

// firstSighting reports whether a transcript event id has not been seen.
// Events without an id are always delivered.
func (c *Client) firstSighting(ev transport.ServerEvent) bool {
	id := ev.ID()
	if id == "" {
		return true
	}
	seen, _ := c.transcripts.ContainsOrAdd(id, struct{}{})
	return !seen
}

func (c *Client) handleError(e *transport.ErrorEvent) {
	class := classifyError(e.Error)
	c.metrics.ProtocolError(c.cfg.AgentID, string(class))

	switch class {
	case errorBenign:
		c.log.Info("ignoring realtime error", "code", e.Error.Code, "message", e.Error.Message)
	case errorFatal:
		c.log.Warn("realtime server lost upstream, reconnecting", "message", e.Error.Message)
		c.emitError(e)
		c.dropConnection()
	default:
		c.log.Warn("realtime error", "code", e.Error.Code, "message", e.Error.Message)
		c.emitError(e)
	}
}
