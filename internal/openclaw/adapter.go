package openclaw

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ChatRequest is one input for an OpenClaw agent session.
type ChatRequest struct {
	SessionKey   string
	Input        string
	Instructions string
}

// Adapter talks to an OpenClaw responses backend.
type Adapter interface {
	// StreamReply relays text deltas as they arrive and returns the final reply.
	StreamReply(ctx context.Context, sessionKey, input string, onDelta func(delta string) error) (string, error)
	// Respond performs a single non-streaming request.
	Respond(ctx context.Context, req ChatRequest) (string, error)
	// ProxyStream forwards the raw event stream line by line, normalized to SSE "data:" lines.
	ProxyStream(ctx context.Context, req ChatRequest, onLine func(line string) error) error
}

// Config controls adapter construction.
type Config struct {
	Mode    string
	BaseURL string
	Token   string
	AgentID string
	Model   string
	Timeout time.Duration
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "http"
	}

	switch mode {
	case "http":
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, errors.New("openclaw base url is required for http mode")
		}
		return NewClient(cfg), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported openclaw adapter mode %q", cfg.Mode)
	}
}
