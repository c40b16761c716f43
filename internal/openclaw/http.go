package openclaw

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/avatarvoice/internal/reliability"
)

const (
	responsesPath = "/v1/responses"

	eventOutputTextDelta = "response.output_text.delta"
	eventOutputTextDone  = "response.output_text.done"
)

// Client forwards requests to an OpenClaw gateway's OpenAI-compatible
// responses endpoint.
type Client struct {
	baseURL string
	token   string
	agentID string
	model   string
	timeout time.Duration
	client  *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	agentID := strings.TrimSpace(cfg.AgentID)
	if agentID == "" {
		agentID = "main"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "openclaw:" + agentID
	}

	// Streams may stay open for as long as the agent keeps talking, so only
	// connection setup and response headers are bounded.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		agentID: agentID,
		model:   model,
		timeout: timeout,
		client:  &http.Client{Transport: transport},
	}
}

type responsesRequest struct {
	Model        string `json:"model"`
	Input        string `json:"input"`
	Instructions string `json:"instructions,omitempty"`
	Stream       bool   `json:"stream,omitempty"`
}

func (c *Client) StreamReply(ctx context.Context, sessionKey, input string, onDelta func(delta string) error) (string, error) {
	res, err := c.post(ctx, sessionKey, responsesRequest{Model: c.model, Input: input, Stream: true})
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	return consumeSSE(res.Body, onDelta)
}

func (c *Client) Respond(ctx context.Context, req ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.post(ctx, req.SessionKey, responsesRequest{
		Model:        c.model,
		Input:        req.Input,
		Instructions: req.Instructions,
	})
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return extractOutputText(payload), nil
}

func (c *Client) ProxyStream(ctx context.Context, req ChatRequest, onLine func(line string) error) error {
	res, err := c.post(ctx, req.SessionKey, responsesRequest{
		Model:        c.model,
		Input:        req.Input,
		Instructions: req.Instructions,
		Stream:       true,
	})
	if err != nil {
		return err
	}
	defer res.Body.Close()

	scanner := newLineScanner(res.Body)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			line = "data: " + line
		}
		if err := onLine(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, sessionKey string, body responsesRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+responsesPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers(sessionKey) {
		httpReq.Header.Set(k, v)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return nil, &reliability.StatusError{Service: "openclaw", Code: res.StatusCode, Body: string(raw)}
	}
	return res, nil
}

func (c *Client) headers(sessionKey string) map[string]string {
	h := map[string]string{
		"x-openclaw-session-key": sessionKey,
		"x-openclaw-agent-id":    c.agentID,
	}
	if c.token != "" {
		h["Authorization"] = "Bearer " + c.token
	}
	return h
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta any    `json:"delta"`
	Text  any    `json:"text"`
}

// consumeSSE reads "data:" lines. Output text deltas are appended and relayed;
// a done event replaces the accumulated text. Everything else is ignored.
func consumeSSE(body io.Reader, onDelta func(delta string) error) (string, error) {
	scanner := newLineScanner(body)

	var text strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			continue
		}
		switch ev.Type {
		case eventOutputTextDelta:
			delta, ok := ev.Delta.(string)
			if !ok {
				continue
			}
			text.WriteString(delta)
			if onDelta != nil {
				if err := onDelta(delta); err != nil {
					return "", err
				}
			}
		case eventOutputTextDone:
			if final, ok := ev.Text.(string); ok {
				text.Reset()
				text.WriteString(final)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read: %w", err)
	}
	return text.String(), nil
}

// extractOutputText reads output_text, or concatenates the text parts of
// message items in output.
func extractOutputText(payload map[string]any) string {
	if s, ok := payload["output_text"].(string); ok {
		return s
	}
	items, ok := payload["output"].([]any)
	if !ok {
		return ""
	}
	var out strings.Builder
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok || item["type"] != "message" {
			continue
		}
		parts, _ := item["content"].([]any)
		for _, rawPart := range parts {
			part, ok := rawPart.(map[string]any)
			if !ok {
				continue
			}
			if t := part["type"]; t != "output_text" && t != "text" {
				continue
			}
			if s, ok := part["text"].(string); ok {
				out.WriteString(s)
			}
		}
	}
	return out.String()
}
