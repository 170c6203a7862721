package transport

import (
	"encoding/json"
	"fmt"
)

// ClientEvent is the closed set of messages this client sends.
type ClientEvent interface {
	Type() EventType
	clientEvent()
}

type SessionUpdate struct {
	Session SessionConfig `json:"session"`
}

type InputAudioAppend struct {
	Audio string `json:"audio"`
}

type InputAudioCommit struct{}

type InputAudioClear struct{}

type ConversationItemCreate struct {
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

type ResponseCreate struct {
	Response *ResponseConfig `json:"response,omitempty"`
}

type ResponseCancel struct{}

// RawClientEvent sends an arbitrary message type. Fields must not contain
// "type" or "event_id"; those are set on encode.
type RawClientEvent struct {
	EventType EventType
	Fields    map[string]any
}

func (SessionUpdate) Type() EventType          { return EventSessionUpdate }
func (InputAudioAppend) Type() EventType       { return EventInputAudioAppend }
func (InputAudioCommit) Type() EventType       { return EventInputAudioCommit }
func (InputAudioClear) Type() EventType        { return EventInputAudioClear }
func (ConversationItemCreate) Type() EventType { return EventConversationItemCreate }
func (ResponseCreate) Type() EventType         { return EventResponseCreate }
func (ResponseCancel) Type() EventType         { return EventResponseCancel }
func (e RawClientEvent) Type() EventType       { return e.EventType }

func (SessionUpdate) clientEvent()          {}
func (InputAudioAppend) clientEvent()       {}
func (InputAudioCommit) clientEvent()       {}
func (InputAudioClear) clientEvent()        {}
func (ConversationItemCreate) clientEvent() {}
func (ResponseCreate) clientEvent()         {}
func (ResponseCancel) clientEvent()         {}
func (RawClientEvent) clientEvent()         {}

// EncodeClientEvent renders ev as a JSON object carrying its type and the
// given event id.
func EncodeClientEvent(ev ClientEvent, eventID string) ([]byte, error) {
	if ev.Type() == "" {
		return nil, ErrMissingType
	}

	fields := make(map[string]any)
	if raw, ok := ev.(RawClientEvent); ok {
		for k, v := range raw.Fields {
			fields[k] = v
		}
	} else {
		body, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
		}
		for k, v := range obj {
			fields[k] = v
		}
	}

	fields["type"] = ev.Type()
	if eventID != "" {
		fields["event_id"] = eventID
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Type(), err)
	}
	return data, nil
}
