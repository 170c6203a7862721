package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMissingType = errors.New("message has no type")

// ServerEvent is the closed set of messages the realtime server can send.
// Every event keeps the raw JSON it was decoded from so unknown fields survive
// forwarding.
type ServerEvent interface {
	Type() EventType
	ID() string
	Raw() json.RawMessage
	serverEvent()
}

type eventHeader struct {
	EventType EventType `json:"type"`
	EventID   string    `json:"event_id,omitempty"`
	raw       json.RawMessage
}

func (h *eventHeader) Type() EventType {
	return h.EventType
}

func (h *eventHeader) ID() string {
	return h.EventID
}

func (h *eventHeader) Raw() json.RawMessage {
	return h.raw
}

func (h *eventHeader) setRaw(data json.RawMessage) {
	h.raw = data
}

func (*eventHeader) serverEvent() {}

type SessionEvent struct {
	eventHeader
	Session json.RawMessage `json:"session"`
}

type ConversationEvent struct {
	eventHeader
	PreviousItemID string          `json:"previous_item_id,omitempty"`
	Item           json.RawMessage `json:"item,omitempty"`
}

type InputTranscriptEvent struct {
	eventHeader
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type InputAudioBufferEvent struct {
	eventHeader
	ItemID       string `json:"item_id,omitempty"`
	AudioStartMs int    `json:"audio_start_ms,omitempty"`
	AudioEndMs   int    `json:"audio_end_ms,omitempty"`
}

type ResponseEvent struct {
	eventHeader
	Response json.RawMessage `json:"response"`
}

type AudioDeltaEvent struct {
	eventHeader
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type AudioDoneEvent struct {
	eventHeader
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

type TranscriptDeltaEvent struct {
	eventHeader
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type TranscriptDoneEvent struct {
	eventHeader
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type TextDeltaEvent struct {
	eventHeader
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type TextDoneEvent struct {
	eventHeader
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Text         string `json:"text"`
}

type RateLimitsEvent struct {
	eventHeader
	RateLimits []RateLimit `json:"rate_limits"`
}

type ErrorEvent struct {
	eventHeader
	Error ErrorDetail `json:"error"`
}

// UnknownEvent carries any message type this client does not model.
type UnknownEvent struct {
	eventHeader
}

type decodable interface {
	ServerEvent
	setRaw(json.RawMessage)
}

// DecodeServerEvent parses one inbound text message. It is the only place
// wire field names are read; callers switch on the concrete type. A message
// with a known type whose fields do not match the expected shape comes back
// as an UnknownEvent so it is still forwarded.
func DecodeServerEvent(data []byte) (ServerEvent, error) {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode message header: %w", err)
	}
	if head.Type == "" {
		return nil, ErrMissingType
	}

	var ev decodable
	switch head.Type {
	case EventSessionCreated, EventSessionUpdated:
		ev = &SessionEvent{}
	case EventInputTranscriptionCompleted:
		ev = &InputTranscriptEvent{}
	case EventInputAudioCommitted, EventInputAudioCleared, EventSpeechStarted, EventSpeechStopped:
		ev = &InputAudioBufferEvent{}
	case EventResponseCreated, EventResponseDone:
		ev = &ResponseEvent{}
	case EventAudioDelta:
		ev = &AudioDeltaEvent{}
	case EventAudioDone:
		ev = &AudioDoneEvent{}
	case EventAudioTranscriptDelta:
		ev = &TranscriptDeltaEvent{}
	case EventAudioTranscriptDone:
		ev = &TranscriptDoneEvent{}
	case EventTextDelta:
		ev = &TextDeltaEvent{}
	case EventTextDone:
		ev = &TextDoneEvent{}
	case EventRateLimitsUpdated:
		ev = &RateLimitsEvent{}
	case EventError:
		ev = &ErrorEvent{}
	default:
		if strings.HasPrefix(string(head.Type), "conversation.") {
			ev = &ConversationEvent{}
		} else {
			ev = &UnknownEvent{}
		}
	}

	if err := json.Unmarshal(data, ev); err != nil {
		unknown := &UnknownEvent{}
		if err := json.Unmarshal(data, &unknown.eventHeader); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Type, err)
		}
		ev = unknown
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	ev.setRaw(raw)
	return ev, nil
}
