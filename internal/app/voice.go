package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/config"
	"github.com/antoniostano/avatarvoice/internal/voice"
)

type voiceSetup struct {
	transcriber *voice.WhisperTranscriber
	speech      *voice.ElevenLabsTTS
	detail      string
}

func resolveVoiceBackends(cfg config.Config, logger *zap.Logger) voiceSetup {
	transcriber := voice.NewWhisperTranscriber(voice.WhisperConfig{
		HTTPURL:    cfg.WhisperHTTPURL,
		HTTPAPIKey: cfg.WhisperHTTPAPIKey,
		Cmd:        cfg.WhisperCmd,
		Model:      cfg.WhisperModel,
	}, logger)

	speech := voice.NewElevenLabsTTS(voice.ElevenLabsConfig{
		APIKey:          cfg.ElevenLabsAPIKey,
		BaseURL:         cfg.ElevenLabsBaseURL,
		ModelID:         cfg.ElevenLabsModelID,
		OutputFormat:    cfg.ElevenLabsOutputFormat,
		OptimizeLatency: cfg.ElevenLabsOptimizeLatency,
	})

	stt := "whisper cli (" + cfg.WhisperCmd + ")"
	if transcriber.Backend() == "http" {
		stt = "whisper http"
	}
	tts := "elevenlabs " + speech.OutputFormat()
	if !speech.Configured() {
		tts = "disabled (no ELEVENLABS_API_KEY)"
	}
	return voiceSetup{
		transcriber: transcriber,
		speech:      speech,
		detail:      fmt.Sprintf("stt: %s, tts: %s", stt, tts),
	}
}
