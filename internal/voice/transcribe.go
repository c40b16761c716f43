package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/audio"
	"github.com/antoniostano/avatarvoice/internal/reliability"
)

const transcriptionsPath = "/v1/audio/transcriptions"

type WhisperConfig struct {
	// HTTPURL selects the hosted backend when set; otherwise the CLI runs.
	HTTPURL    string
	HTTPAPIKey string
	HTTPModel  string
	Timeout    time.Duration

	Cmd   string
	Model string

	// TempDir holds capture WAVs and CLI output. Empty uses the OS default.
	TempDir string
}

// wavBackend transcribes a WAV file on disk.
type wavBackend interface {
	transcribeFile(ctx context.Context, path, language string) (string, error)
}

// WhisperTranscriber wraps PCM in a temporary WAV file and hands it to the
// configured whisper backend. The file is removed after every call.
type WhisperTranscriber struct {
	backend wavBackend
	name    string
	tempDir string
	logger  *zap.Logger
}

func NewWhisperTranscriber(cfg WhisperConfig, logger *zap.Logger) *WhisperTranscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &WhisperTranscriber{tempDir: cfg.TempDir, logger: logger.Named("transcribe")}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		model := strings.TrimSpace(cfg.HTTPModel)
		if model == "" {
			model = "whisper-1"
		}
		t.backend = &whisperHTTP{
			url:    normalizeTranscriptionURL(cfg.HTTPURL),
			apiKey: strings.TrimSpace(cfg.HTTPAPIKey),
			model:  model,
			client: &http.Client{Timeout: timeout},
		}
		t.name = "http"
		return t
	}
	t.backend = &whisperCLI{
		cmd:      strings.TrimSpace(cfg.Cmd),
		model:    strings.TrimSpace(cfg.Model),
		tempDir:  cfg.TempDir,
		lookPath: exec.LookPath,
	}
	t.name = "cli"
	return t
}

// Backend names the selected backend: "http" or "cli".
func (t *WhisperTranscriber) Backend() string { return t.name }

func (t *WhisperTranscriber) Transcribe(ctx context.Context, in Audio) (string, error) {
	if len(in.PCM) == 0 {
		return "", nil
	}

	f, err := os.CreateTemp(t.tempDir, "capture-*.wav")
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Debug("temp wav cleanup failed", zap.String("path", path), zap.Error(err))
		}
	}()

	if err := audio.WriteWAVFile(path, in.PCM, in.SampleRate, in.Channels); err != nil {
		return "", fmt.Errorf("write temp wav: %w", err)
	}
	return t.backend.transcribeFile(ctx, path, in.Language)
}

func normalizeTranscriptionURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if strings.HasSuffix(u, transcriptionsPath) {
		return u
	}
	return u + transcriptionsPath
}

type whisperHTTP struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

func (w *whisperHTTP) transcribeFile(ctx context.Context, path, language string) (string, error) {
	wav, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read wav: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("model", w.model)
	if language != "" {
		_ = mw.WriteField("language", language)
	}
	fw, err := mw.CreatePart(wavPartHeader())
	if err != nil {
		_ = mw.Close()
		return "", err
	}
	if _, err := fw.Write(wav); err != nil {
		_ = mw.Close()
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	res, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", &reliability.StatusError{Service: "whisper", Code: res.StatusCode, Body: string(b)}
	}
	return textField(b, "Whisper HTTP response missing text")
}

func wavPartHeader() textproto.MIMEHeader {
	return textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="audio.wav"`},
		"Content-Type":        {"audio/wav"},
	}
}

type whisperCLI struct {
	cmd      string
	model    string
	tempDir  string
	lookPath func(string) (string, error)
}

func (w *whisperCLI) transcribeFile(ctx context.Context, path, language string) (string, error) {
	if w.cmd == "" {
		return "", errors.New("whisper command not configured")
	}
	bin, err := w.lookPath(w.cmd)
	if err != nil {
		return "", &detailError{msg: "whisper command not found: " + w.cmd, err: err}
	}

	outDir, err := os.MkdirTemp(w.tempDir, "whisper-out-*")
	if err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{path, "--model", w.model, "--output_format", "json", "--output_dir", outDir}
	if language != "" {
		args = append(args, "--language", language)
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = "whisper command failed"
		}
		return "", &detailError{msg: detail, err: err}
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return "", &detailError{msg: "whisper output not found", err: err}
	}
	return textField(raw, "whisper output missing text")
}

// textField extracts a string "text" member from a JSON object.
func textField(raw []byte, missing string) (string, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", &detailError{msg: missing, err: err}
	}
	text, ok := payload["text"].(string)
	if !ok {
		return "", &detailError{msg: missing, err: reliability.ErrMalformedResponse}
	}
	return text, nil
}
