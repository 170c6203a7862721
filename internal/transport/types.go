package transport

import "encoding/json"

type EventType string

const (
	EventSessionUpdate  EventType = "session.update"
	EventSessionCreated EventType = "session.created"
	EventSessionUpdated EventType = "session.updated"

	EventInputAudioAppend    EventType = "input_audio_buffer.append"
	EventInputAudioCommit    EventType = "input_audio_buffer.commit"
	EventInputAudioClear     EventType = "input_audio_buffer.clear"
	EventInputAudioCommitted EventType = "input_audio_buffer.committed"
	EventInputAudioCleared   EventType = "input_audio_buffer.cleared"
	EventSpeechStarted       EventType = "input_audio_buffer.speech_started"
	EventSpeechStopped       EventType = "input_audio_buffer.speech_stopped"

	EventConversationItemCreate      EventType = "conversation.item.create"
	EventConversationItemCreated     EventType = "conversation.item.created"
	EventInputTranscriptionCompleted EventType = "conversation.item.input_audio_transcription.completed"

	EventResponseCreate  EventType = "response.create"
	EventResponseCancel  EventType = "response.cancel"
	EventResponseCreated EventType = "response.created"
	EventResponseDone    EventType = "response.done"

	EventAudioDelta           EventType = "response.audio.delta"
	EventAudioDone            EventType = "response.audio.done"
	EventAudioTranscriptDelta EventType = "response.audio_transcript.delta"
	EventAudioTranscriptDone  EventType = "response.audio_transcript.done"
	EventTextDelta            EventType = "response.text.delta"
	EventTextDone             EventType = "response.text.done"

	EventRateLimitsUpdated EventType = "rate_limits.updated"
	EventError             EventType = "error"
)

const (
	AudioFormatPCM16 = "pcm16"
	SampleRate       = 24000
)

type SessionConfig struct {
	Modalities              []string                 `json:"modalities,omitempty" yaml:"modalities"`
	Instructions            string                   `json:"instructions,omitempty" yaml:"instructions"`
	Voice                   string                   `json:"voice,omitempty" yaml:"voice"`
	InputAudioFormat        string                   `json:"input_audio_format,omitempty" yaml:"input_audio_format"`
	OutputAudioFormat       string                   `json:"output_audio_format,omitempty" yaml:"output_audio_format"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription,omitempty" yaml:"input_audio_transcription"`
	TurnDetection           *TurnDetectionConfig     `json:"turn_detection,omitempty" yaml:"turn_detection"`
	Temperature             float32                  `json:"temperature,omitempty" yaml:"temperature"`
}

type InputAudioTranscription struct {
	Model    string `json:"model,omitempty" yaml:"model"`
	Language string `json:"language,omitempty" yaml:"language"`
	Prompt   string `json:"prompt,omitempty" yaml:"prompt"`
}

type TurnDetectionConfig struct {
	Type              string  `json:"type,omitempty" yaml:"type"`
	Threshold         float32 `json:"threshold,omitempty" yaml:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty" yaml:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty" yaml:"silence_duration_ms"`
	CreateResponse    *bool   `json:"create_response,omitempty" yaml:"create_response"`
}

// DefaultSessionConfig is the configuration sent in the first session.update
// after every successful connect.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Modalities:        []string{"text", "audio"},
		InputAudioFormat:  AudioFormatPCM16,
		OutputAudioFormat: AudioFormatPCM16,
		InputAudioTranscription: &InputAudioTranscription{
			Model: "whisper-1",
		},
		TurnDetection: &TurnDetectionConfig{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 500,
		},
	}
}

type ConversationItem struct {
	ID      string        `json:"id,omitempty"`
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []ContentPart `json:"content,omitempty"`
}

type ContentPart struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type ResponseConfig struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

type ErrorDetail struct {
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// UnmarshalJSON also accepts the bare string form some servers send,
// {"error":"message"}, as the Message.
func (d *ErrorDetail) UnmarshalJSON(data []byte) error {
	var msg string
	if err := json.Unmarshal(data, &msg); err == nil {
		*d = ErrorDetail{Message: msg}
		return nil
	}
	type plain ErrorDetail
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*d = ErrorDetail(p)
	return nil
}
