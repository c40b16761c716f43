package voice

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/antoniostano/avatarvoice/internal/reliability"
)

func TestElevenLabsStreamSpeech(t *testing.T) {
	var (
		gotPath, gotQuery, gotKey, gotAccept string
		gotBody                              ttsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotQuery = r.URL.Query().Get("optimize_streaming_latency")
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte{1, 2, 3, 4})
	}))
	defer srv.Close()

	tts := NewElevenLabsTTS(ElevenLabsConfig{
		APIKey:          " key ",
		BaseURL:         srv.URL + "/",
		ModelID:         "eleven_flash_v2_5",
		OutputFormat:    "pcm_22050",
		OptimizeLatency: "3",
	})
	if !tts.Configured() {
		t.Fatalf("Configured() = false")
	}
	body, err := tts.StreamSpeech(context.Background(), "Hello there", "voice/1")
	if err != nil {
		t.Fatalf("StreamSpeech() error = %v", err)
	}
	defer body.Close()
	audio, _ := io.ReadAll(body)
	if len(audio) != 4 {
		t.Fatalf("audio = %v", audio)
	}

	if gotPath != "/v1/text-to-speech/voice%2F1/stream" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "3" {
		t.Fatalf("optimize_streaming_latency = %q", gotQuery)
	}
	if gotKey != "key" {
		t.Fatalf("xi-api-key = %q", gotKey)
	}
	if gotAccept != "audio/pcm" {
		t.Fatalf("accept = %q", gotAccept)
	}
	want := ttsRequest{Text: "Hello there", ModelID: "eleven_flash_v2_5", OutputFormat: "pcm_22050"}
	if gotBody != want {
		t.Fatalf("body = %+v, want %+v", gotBody, want)
	}
}

func TestElevenLabsDefaults(t *testing.T) {
	var (
		rawQuery, accept string
		body             ttsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawQuery = r.URL.RawQuery
		accept = r.Header.Get("Accept")
		_ = json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	tts := NewElevenLabsTTS(ElevenLabsConfig{BaseURL: srv.URL, OutputFormat: "mp3_44100_128"})
	if tts.Configured() {
		t.Fatalf("Configured() = true without an api key")
	}
	rc, err := tts.StreamSpeech(context.Background(), "hi", "v")
	if err != nil {
		t.Fatalf("StreamSpeech() error = %v", err)
	}
	rc.Close()
	if rawQuery != "" {
		t.Fatalf("query = %q, want none", rawQuery)
	}
	if accept != "audio/mpeg" {
		t.Fatalf("accept = %q", accept)
	}
	if body.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("model_id = %q", body.ModelID)
	}
	if NewElevenLabsTTS(ElevenLabsConfig{}).OutputFormat() != "pcm_16000" {
		t.Fatalf("default output format not pcm_16000")
	}
}

func TestElevenLabsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	tts := NewElevenLabsTTS(ElevenLabsConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := tts.StreamSpeech(context.Background(), "hi", "v")
	if err == nil {
		t.Fatalf("StreamSpeech() error = nil")
	}
	if err.Error() != `elevenlabs http status 401: {"detail":"invalid api key"}` {
		t.Fatalf("error = %q", err.Error())
	}
	if reliability.Classify(err) != reliability.KindStatus {
		t.Fatalf("Classify() = %q", reliability.Classify(err))
	}
}
