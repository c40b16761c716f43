package avatars

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antoniostano/avatarvoice/internal/reliability"
)

type voicesClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type voicesResponse struct {
	Voices []struct {
		VoiceID string `json:"voice_id"`
		Name    string `json:"name"`
	} `json:"voices"`
}

// fetch lists the account's ElevenLabs voices as avatars. No key yields none.
func (v *voicesClient) fetch(ctx context.Context) ([]Avatar, error) {
	if v.apiKey == "" {
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("xi-api-key", v.apiKey)

	res, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Service: "elevenlabs", Code: res.StatusCode, Body: string(body)}
	}

	var payload voicesResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode voices: %w", err)
	}
	out := make([]Avatar, 0, len(payload.Voices))
	for _, voice := range payload.Voices {
		id := strings.TrimSpace(voice.VoiceID)
		name := strings.TrimSpace(voice.Name)
		if id == "" || name == "" {
			continue
		}
		out = append(out, Avatar{ID: id, Name: name, VoiceID: id})
	}
	return out, nil
}
