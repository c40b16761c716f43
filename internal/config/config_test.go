package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.OpenClawAgentID != "main" {
		t.Fatalf("OpenClawAgentID = %q, want %q", cfg.OpenClawAgentID, "main")
	}
	if cfg.OpenClawModel != "openclaw:main" {
		t.Fatalf("OpenClawModel = %q, want %q", cfg.OpenClawModel, "openclaw:main")
	}
	if cfg.ElevenLabsOutputFormat != "pcm_16000" {
		t.Fatalf("ElevenLabsOutputFormat = %q, want %q", cfg.ElevenLabsOutputFormat, "pcm_16000")
	}
	if cfg.TranscriptionBackend() != "cli" {
		t.Fatalf("TranscriptionBackend() = %q, want cli", cfg.TranscriptionBackend())
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("AllowedOrigins = %v, want default localhost origin", cfg.AllowedOrigins)
	}
	if cfg.WhisperLanguage != "" {
		t.Fatalf("WhisperLanguage = %q, want empty default", cfg.WhisperLanguage)
	}
	if cfg.WSMaxMessageBytes != 0 {
		t.Fatalf("WSMaxMessageBytes = %d, want 0 (uncapped)", cfg.WSMaxMessageBytes)
	}
}

func TestLoadModelFollowsAgentID(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("OPENCLAW_AGENT_ID", "studio")
	t.Setenv("OPENCLAW_BASE_URL", "http://claw.local:9000/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenClawModel != "openclaw:studio" {
		t.Fatalf("OpenClawModel = %q, want %q", cfg.OpenClawModel, "openclaw:studio")
	}
	if cfg.OpenClawBaseURL != "http://claw.local:9000" {
		t.Fatalf("OpenClawBaseURL = %q, want trailing slash trimmed", cfg.OpenClawBaseURL)
	}
}

func TestLoadParsesTimeoutsAndOrigins(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("OPENCLAW_TIMEOUT", "90")
	t.Setenv("AVATAR_CACHE_TTL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("WHISPER_HTTP_URL", "http://whisper.local")
	t.Setenv("APP_WS_MAX_MESSAGE_BYTES", "8388608")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OpenClawTimeout != 90*time.Second {
		t.Fatalf("OpenClawTimeout = %v, want 90s", cfg.OpenClawTimeout)
	}
	if cfg.AvatarCacheTTL != 30*time.Second {
		t.Fatalf("AvatarCacheTTL = %v, want 30s", cfg.AvatarCacheTTL)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("AllowedOrigins = %v, want 2 entries", cfg.AllowedOrigins)
	}
	if cfg.TranscriptionBackend() != "http" {
		t.Fatalf("TranscriptionBackend() = %q, want http", cfg.TranscriptionBackend())
	}
	if cfg.WSMaxMessageBytes != 8<<20 {
		t.Fatalf("WSMaxMessageBytes = %d, want %d", cfg.WSMaxMessageBytes, 8<<20)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"APP_CONNECTION_IDLE_TIMEOUT": "1s",
		"OPENCLAW_ADAPTER_MODE":       "carrier-pigeon",
		"AVATAR_SOURCE":               "database",
		"OPENCLAW_TIMEOUT":            "soon",
		"APP_LOG_FORMAT":              "xml",
		"APP_WS_MAX_MESSAGE_BYTES":    "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", key, value)
			}
		})
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_CONNECTION_IDLE_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_LOG_LEVEL",
		"APP_LOG_FORMAT",
		"APP_WS_MAX_MESSAGE_BYTES",
		"ALLOWED_ORIGINS",
		"OPENCLAW_ADAPTER_MODE",
		"OPENCLAW_BASE_URL",
		"OPENCLAW_TOKEN",
		"OPENCLAW_AGENT_ID",
		"OPENCLAW_MODEL",
		"OPENCLAW_TIMEOUT",
		"ELEVENLABS_API_KEY",
		"ELEVENLABS_BASE_URL",
		"ELEVENLABS_MODEL_ID",
		"ELEVENLABS_OUTPUT_FORMAT",
		"ELEVENLABS_OPTIMIZE_LATENCY",
		"ELEVENLABS_VOICE_ID",
		"WHISPER_HTTP_URL",
		"WHISPER_HTTP_API_KEY",
		"WHISPER_CMD",
		"WHISPER_MODEL",
		"WHISPER_LANGUAGE",
		"AVATAR_SOURCE",
		"AVATAR_PRESETS_PATH",
		"AVATAR_CACHE_TTL",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
