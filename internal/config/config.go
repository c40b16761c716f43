package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the avatar voice service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	ConnectionIdleTimeout time.Duration
	MetricsNamespace      string
	LogLevel              string
	LogFormat             string

	AllowedOrigins []string
	// WSMaxMessageBytes caps a single inbound websocket message. Zero means
	// no cap.
	WSMaxMessageBytes int64

	OpenClawAdapterMode string
	OpenClawBaseURL     string
	OpenClawToken       string
	OpenClawAgentID     string
	OpenClawModel       string
	OpenClawTimeout     time.Duration

	ElevenLabsAPIKey           string
	ElevenLabsBaseURL          string
	ElevenLabsModelID          string
	ElevenLabsOutputFormat     string
	ElevenLabsOptimizeLatency  string
	ElevenLabsDefaultVoiceID   string
	ElevenLabsVoicesAPITimeout time.Duration

	WhisperHTTPURL    string
	WhisperHTTPAPIKey string
	WhisperCmd        string
	WhisperModel      string
	WhisperLanguage   string

	AvatarSource      string
	AvatarPresetsPath string
	AvatarCacheTTL    time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	agentID := envOrDefault("OPENCLAW_AGENT_ID", "main")
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "avatarvoice"),
		LogLevel:         strings.ToLower(envOrDefault("APP_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("APP_LOG_FORMAT", "json")),
		AllowedOrigins:   splitList(envOrDefault("ALLOWED_ORIGINS", "http://localhost:5173")),

		OpenClawAdapterMode: strings.ToLower(envOrDefault("OPENCLAW_ADAPTER_MODE", "http")),
		OpenClawBaseURL:     strings.TrimRight(envOrDefault("OPENCLAW_BASE_URL", "http://127.0.0.1:18789"), "/"),
		OpenClawToken:       stringsTrimSpace("OPENCLAW_TOKEN"),
		OpenClawAgentID:     agentID,
		OpenClawModel:       envOrDefault("OPENCLAW_MODEL", "openclaw:"+agentID),

		ElevenLabsAPIKey:          stringsTrimSpace("ELEVENLABS_API_KEY"),
		ElevenLabsBaseURL:         strings.TrimRight(envOrDefault("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"), "/"),
		ElevenLabsModelID:         envOrDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2"),
		ElevenLabsOutputFormat:    envOrDefault("ELEVENLABS_OUTPUT_FORMAT", "pcm_16000"),
		ElevenLabsOptimizeLatency: stringsTrimSpace("ELEVENLABS_OPTIMIZE_LATENCY"),
		ElevenLabsDefaultVoiceID:  stringsTrimSpace("ELEVENLABS_VOICE_ID"),

		WhisperHTTPURL:    stringsTrimSpace("WHISPER_HTTP_URL"),
		WhisperHTTPAPIKey: stringsTrimSpace("WHISPER_HTTP_API_KEY"),
		WhisperCmd:        envOrDefault("WHISPER_CMD", "whisper"),
		WhisperModel:      envOrDefault("WHISPER_MODEL", "base"),
		WhisperLanguage:   stringsTrimSpace("WHISPER_LANGUAGE"),

		AvatarSource:      strings.ToLower(envOrDefault("AVATAR_SOURCE", "auto")),
		AvatarPresetsPath: envOrDefault("AVATAR_PRESETS_PATH", "avatars.json"),

		DatabaseURL: stringsTrimSpace("DATABASE_URL"),

		ShutdownTimeout:            15 * time.Second,
		ConnectionIdleTimeout:      10 * time.Minute,
		OpenClawTimeout:            60 * time.Second,
		ElevenLabsVoicesAPITimeout: 15 * time.Second,
		AvatarCacheTTL:             5 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectionIdleTimeout, err = durationFromEnv("APP_CONNECTION_IDLE_TIMEOUT", cfg.ConnectionIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.OpenClawTimeout, err = durationFromEnv("OPENCLAW_TIMEOUT", cfg.OpenClawTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AvatarCacheTTL, err = durationFromEnv("AVATAR_CACHE_TTL", cfg.AvatarCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.WSMaxMessageBytes, err = int64FromEnv("APP_WS_MAX_MESSAGE_BYTES", 0)
	if err != nil {
		return Config{}, err
	}
	if cfg.WSMaxMessageBytes < 0 {
		return Config{}, fmt.Errorf("APP_WS_MAX_MESSAGE_BYTES must not be negative")
	}

	if cfg.ConnectionIdleTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_CONNECTION_IDLE_TIMEOUT must be at least 5s")
	}
	if cfg.OpenClawTimeout <= 0 {
		return Config{}, fmt.Errorf("OPENCLAW_TIMEOUT must be positive")
	}
	switch cfg.OpenClawAdapterMode {
	case "http", "mock":
	default:
		return Config{}, fmt.Errorf("invalid OPENCLAW_ADAPTER_MODE: %q (expected http|mock)", cfg.OpenClawAdapterMode)
	}
	switch cfg.AvatarSource {
	case "auto", "file", "elevenlabs":
	default:
		return Config{}, fmt.Errorf("invalid AVATAR_SOURCE: %q (expected auto|file|elevenlabs)", cfg.AvatarSource)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("invalid APP_LOG_FORMAT: %q (expected json|console)", cfg.LogFormat)
	}

	return cfg, nil
}

// TranscriptionBackend reports which transcription strategy the config selects.
func (c Config) TranscriptionBackend() string {
	if c.WhisperHTTPURL != "" {
		return "http"
	}
	return "cli"
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err == nil {
		return d, nil
	}
	// Bare numbers are seconds, matching OPENCLAW_TIMEOUT_SECONDS-style values.
	secs, ferr := strconv.ParseFloat(v, 64)
	if ferr != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
