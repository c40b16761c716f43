package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antoniostano/avatarvoice/internal/audio"
	"github.com/antoniostano/avatarvoice/internal/reliability"
)

type ElevenLabsConfig struct {
	APIKey          string
	BaseURL         string
	ModelID         string
	OutputFormat    string
	OptimizeLatency string
	Timeout         time.Duration
}

// ElevenLabsTTS streams speech from the ElevenLabs text-to-speech HTTP API.
type ElevenLabsTTS struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

func NewElevenLabsTTS(cfg ElevenLabsConfig) *ElevenLabsTTS {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = "pcm_16000"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	// The body is read for as long as audio keeps coming; only setup is bounded.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout
	return &ElevenLabsTTS{cfg: cfg, client: &http.Client{Transport: transport}}
}

func (t *ElevenLabsTTS) Configured() bool { return t.cfg.APIKey != "" }

func (t *ElevenLabsTTS) OutputFormat() string { return t.cfg.OutputFormat }

type ttsRequest struct {
	Text         string `json:"text"`
	ModelID      string `json:"model_id"`
	OutputFormat string `json:"output_format"`
}

func (t *ElevenLabsTTS) StreamSpeech(ctx context.Context, text, voiceID string) (io.ReadCloser, error) {
	u, err := url.Parse(t.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream")
	if err != nil {
		return nil, fmt.Errorf("build tts url: %w", err)
	}
	if t.cfg.OptimizeLatency != "" {
		q := u.Query()
		q.Set("optimize_streaming_latency", t.cfg.OptimizeLatency)
		u.RawQuery = q.Encode()
	}

	payload, err := json.Marshal(ttsRequest{Text: text, ModelID: t.cfg.ModelID, OutputFormat: t.cfg.OutputFormat})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", t.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if audio.IsPCMFormat(t.cfg.OutputFormat) {
		req.Header.Set("Accept", "audio/pcm")
	} else {
		req.Header.Set("Accept", "audio/mpeg")
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Service: "elevenlabs", Code: res.StatusCode, Body: string(body)}
	}
	return res.Body, nil
}
