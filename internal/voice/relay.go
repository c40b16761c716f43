package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"io"

	"github.com/antoniostano/avatarvoice/internal/audio"
	"github.com/antoniostano/avatarvoice/internal/protocol"
)

const (
	SkipMissingAPIKey  = "missing_api_key"
	SkipMissingVoiceID = "missing_voice_id"

	speechReadSize = 4096
)

var errConnectionClosed = errors.New("connection closed")

// relayReply streams the chat reply, emitting one assistant.delta per delta.
// assistant.done is left to the caller.
func relayReply(ctx context.Context, replies ReplyStreamer, e *emitter, sessionKey, transcript string) (string, error) {
	return replies.StreamReply(ctx, sessionKey, transcript, func(delta string) error {
		if !e.emit(protocol.AssistantDelta(delta)) {
			return errConnectionClosed
		}
		return nil
	})
}

// relaySpeech streams synthesized audio for text. It emits tts.start and the
// audio and viseme events, and returns the terminal event (tts.done or
// tts.skipped) for the caller to emit.
func relaySpeech(ctx context.Context, speech SpeechSynthesizer, e *emitter, text, voiceID string, onFirstAudio func()) (protocol.Event, error) {
	if !speech.Configured() {
		return protocol.TTSSkipped(SkipMissingAPIKey), nil
	}
	if voiceID == "" {
		return protocol.TTSSkipped(SkipMissingVoiceID), nil
	}

	format := speech.OutputFormat()
	e.emit(protocol.TTSStart(voiceID, format))

	body, err := speech.StreamSpeech(ctx, text, voiceID)
	if err != nil {
		return protocol.Event{}, err
	}
	defer body.Close()

	var (
		pcm        = audio.IsPCMFormat(format)
		sampleRate = audio.PCMSampleRate(format)
		clock      = audio.NewSampleClock(sampleRate)
		buf        = make([]byte, speechReadSize)
		carry      []byte
		first      = true
	)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if first {
				first = false
				if onFirstAudio != nil {
					onFirstAudio()
				}
			}
			if !e.emit(protocol.TTSAudio(format, sampleRate, base64.StdEncoding.EncodeToString(chunk))) {
				return protocol.Event{}, errConnectionClosed
			}
			if pcm {
				// Keep samples aligned across reads that split a sample.
				aligned := append(carry, chunk...)
				even := len(aligned) &^ 1
				level := audio.PeakLevel(aligned[:even])
				carry = append(carry[:0:0], aligned[even:]...)
				if !e.emit(protocol.Viseme(level, clock.Advance(n))) {
					return protocol.Event{}, errConnectionClosed
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return protocol.Event{}, readErr
		}
	}
	return protocol.TTSDone(), nil
}
