package openclaw

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when OpenClaw is unavailable.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamReply(ctx context.Context, sessionKey, input string, onDelta func(delta string) error) (string, error) {
	text := buildMockReply(input)
	for _, delta := range splitDeltas(text) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return "", err
			}
		}
	}
	return text, nil
}

func (a *MockAdapter) Respond(ctx context.Context, req ChatRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return buildMockReply(req.Input), nil
}

func (a *MockAdapter) ProxyStream(ctx context.Context, req ChatRequest, onLine func(line string) error) error {
	text := buildMockReply(req.Input)
	for _, delta := range splitDeltas(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := json.Marshal(map[string]string{"type": eventOutputTextDelta, "delta": delta})
		if err != nil {
			return err
		}
		if err := onLine("data: " + string(raw)); err != nil {
			return err
		}
	}
	raw, err := json.Marshal(map[string]string{"type": eventOutputTextDone, "text": text})
	if err != nil {
		return err
	}
	if err := onLine("data: " + string(raw)); err != nil {
		return err
	}
	return onLine("data: [DONE]")
}

func buildMockReply(input string) string {
	base := strings.TrimSpace(input)
	if base == "" {
		base = "I am listening."
	}
	return fmt.Sprintf("I heard you: %s", base)
}

// splitDeltas breaks text into word-sized deltas that concatenate back to text.
func splitDeltas(text string) []string {
	words := strings.SplitAfter(text, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
