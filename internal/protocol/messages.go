package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeAudioStart  MessageType = "audio.start"
	TypeAudioStop   MessageType = "audio.stop"
	TypeAudioCancel MessageType = "audio.cancel"

	TypeAudioStarted   MessageType = "audio.started"
	TypeAudioCancelled MessageType = "audio.cancelled"
	TypeASRStart       MessageType = "asr.start"
	TypeASRFinal       MessageType = "asr.final"
	TypeAssistantDelta MessageType = "assistant.delta"
	TypeAssistantDone  MessageType = "assistant.done"
	TypeTTSStart       MessageType = "tts.start"
	TypeTTSAudio       MessageType = "tts.audio"
	TypeTTSDone        MessageType = "tts.done"
	TypeTTSSkipped     MessageType = "tts.skipped"
	TypeViseme         MessageType = "viseme"
	TypeError          MessageType = "error"
)

// Error codes sent to the client in error events.
const (
	CodeInvalidJSON        = "invalid_json"
	CodeUnknownEvent       = "unknown_event"
	CodeUnsupportedMessage = "unsupported_message"
	CodeSessionBusy        = "session_busy"
	CodeAudioNotStarted    = "audio_not_started"
	CodeUnknownAvatar      = "unknown_avatar"
	CodeProjectNotFound    = "project_not_found"
)

var (
	ErrInvalidJSON  = errors.New(CodeInvalidJSON)
	ErrUnknownEvent = errors.New(CodeUnknownEvent)
)

// AudioStart opens a capture. Numeric and id fields are decoded leniently so a
// sloppy client falls back to defaults instead of being rejected.
type AudioStart struct {
	Type       MessageType `json:"type"`
	ProjectID  string      `json:"projectId,omitempty"`
	AvatarID   string      `json:"avatarId,omitempty"`
	SampleRate int         `json:"sampleRate,omitempty"`
	Channels   int         `json:"channels,omitempty"`
	Format     string      `json:"format,omitempty"`
	Language   string      `json:"language,omitempty"`
}

type AudioStop struct {
	Type MessageType `json:"type"`
}

type AudioCancel struct {
	Type MessageType `json:"type"`
}

// AudioFrame carries one binary websocket message verbatim.
type AudioFrame struct {
	Data []byte
}

func (m *AudioStart) UnmarshalJSON(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return err
	}
	*m = AudioStart{
		Type:       MessageType(lenientString(fields["type"])),
		ProjectID:  lenientString(fields["projectId"]),
		AvatarID:   lenientString(fields["avatarId"]),
		SampleRate: lenientPositiveInt(fields["sampleRate"]),
		Channels:   lenientPositiveInt(fields["channels"]),
		Format:     lenientString(fields["format"]),
		Language:   lenientString(fields["language"]),
	}
	return nil
}

// DecodeControl parses a text websocket message into AudioStart, AudioStop or
// AudioCancel.
func DecodeControl(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidJSON
	}
	var env struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, ErrInvalidJSON
	}

	switch MessageType(lenientString(env.Type)) {
	case TypeAudioStart:
		var msg AudioStart
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return nil, ErrInvalidJSON
		}
		return msg, nil
	case TypeAudioStop:
		return AudioStop{Type: TypeAudioStop}, nil
	case TypeAudioCancel:
		return AudioCancel{Type: TypeAudioCancel}, nil
	default:
		return nil, ErrUnknownEvent
	}
}

// EncodeControl marshals a control message for the wire.
func EncodeControl(msg any) ([]byte, error) {
	switch m := msg.(type) {
	case AudioStart:
		m.Type = TypeAudioStart
		return json.Marshal(m)
	case AudioStop:
		m.Type = TypeAudioStop
		return json.Marshal(m)
	case AudioCancel:
		m.Type = TypeAudioCancel
		return json.Marshal(m)
	default:
		return nil, fmt.Errorf("encode control: unsupported message %T", msg)
	}
}

// TypeOf reports the wire type of an inbound or outbound message, for metrics.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case AudioStart:
		return TypeAudioStart, true
	case AudioStop:
		return TypeAudioStop, true
	case AudioCancel:
		return TypeAudioCancel, true
	case AudioFrame:
		return "audio.frame", true
	case Event:
		return m.Type, true
	default:
		return "", false
	}
}

func lenientString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func lenientPositiveInt(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	var n int
	switch t := v.(type) {
	case float64:
		n = int(t)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		n = parsed
	default:
		return 0
	}
	if n <= 0 {
		return 0
	}
	return n
}
