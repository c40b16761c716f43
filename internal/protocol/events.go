package protocol

import "encoding/json"

// Event is the single outbound envelope. Only the fields belonging to Type are
// written to the wire.
type Event struct {
	Type       MessageType
	Text       string
	Message    string
	Reason     string
	VoiceID    string
	Format     string
	SampleRate int
	Data       string
	Value      float64
	AtMs       int64
}

func (e Event) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": e.Type}
	switch e.Type {
	case TypeASRFinal, TypeAssistantDelta, TypeAssistantDone:
		m["text"] = e.Text
	case TypeTTSStart:
		m["voiceId"] = e.VoiceID
		m["format"] = e.Format
	case TypeTTSAudio:
		m["format"] = e.Format
		m["sampleRate"] = e.SampleRate
		m["data"] = e.Data
	case TypeTTSSkipped:
		m["reason"] = e.Reason
	case TypeViseme:
		m["value"] = e.Value
		m["atMs"] = e.AtMs
	case TypeError:
		m["message"] = e.Message
	}
	return json.Marshal(m)
}

func (e *Event) UnmarshalJSON(raw []byte) error {
	var wire struct {
		Type       MessageType `json:"type"`
		Text       string      `json:"text"`
		Message    string      `json:"message"`
		Reason     string      `json:"reason"`
		VoiceID    string      `json:"voiceId"`
		Format     string      `json:"format"`
		SampleRate int         `json:"sampleRate"`
		Data       string      `json:"data"`
		Value      float64     `json:"value"`
		AtMs       int64       `json:"atMs"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}
	*e = Event(wire)
	return nil
}

func AudioStarted() Event   { return Event{Type: TypeAudioStarted} }
func AudioCancelled() Event { return Event{Type: TypeAudioCancelled} }
func ASRStart() Event       { return Event{Type: TypeASRStart} }
func TTSDone() Event        { return Event{Type: TypeTTSDone} }

func ASRFinal(text string) Event       { return Event{Type: TypeASRFinal, Text: text} }
func AssistantDelta(text string) Event { return Event{Type: TypeAssistantDelta, Text: text} }
func AssistantDone(text string) Event  { return Event{Type: TypeAssistantDone, Text: text} }
func TTSSkipped(reason string) Event   { return Event{Type: TypeTTSSkipped, Reason: reason} }
func Error(message string) Event       { return Event{Type: TypeError, Message: message} }

func TTSStart(voiceID, format string) Event {
	return Event{Type: TypeTTSStart, VoiceID: voiceID, Format: format}
}

func TTSAudio(format string, sampleRate int, data string) Event {
	return Event{Type: TypeTTSAudio, Format: format, SampleRate: sampleRate, Data: data}
}

func Viseme(value float64, atMs int64) Event {
	return Event{Type: TypeViseme, Value: value, AtMs: atMs}
}
