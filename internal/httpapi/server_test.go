package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/antoniostano/avatarvoice/internal/avatars"
	"github.com/antoniostano/avatarvoice/internal/config"
	"github.com/antoniostano/avatarvoice/internal/observability"
	"github.com/antoniostano/avatarvoice/internal/openclaw"
	"github.com/antoniostano/avatarvoice/internal/projects"
	"github.com/antoniostano/avatarvoice/internal/protocol"
	"github.com/antoniostano/avatarvoice/internal/session"
)

const testPresets = `[
  {"id": "nova", "name": "Nova", "voiceId": "voice-nova"},
  {"id": "sage", "name": "Sage", "voiceId": "voice-sage"}
]`

// echoOrchestrator acknowledges each inbound message with one event so the
// transport can be tested without the turn pipeline.
type echoOrchestrator struct{}

func (echoOrchestrator) RunConnection(ctx context.Context, _ string, inbound <-chan any, outbound chan<- protocol.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			var ev protocol.Event
			switch m := msg.(type) {
			case protocol.AudioStart:
				ev = protocol.AudioStarted()
			case protocol.AudioFrame:
				ev = protocol.ASRFinal(fmt.Sprintf("%d bytes", len(m.Data)))
			case error:
				ev = protocol.Error(m.Error())
			default:
				ev = protocol.Error(protocol.CodeUnsupportedMessage)
			}
			select {
			case <-ctx.Done():
				return nil
			case outbound <- ev:
			}
		}
	}
}

type testEnv struct {
	server   *httptest.Server
	projects projects.Store
	sessions *session.Manager
}

func newTestEnv(t *testing.T, adapter openclaw.Adapter) *testEnv {
	t.Helper()
	return newTestEnvWith(t, adapter, nil)
}

func newTestEnvWith(t *testing.T, adapter openclaw.Adapter, tweak func(*config.Config)) *testEnv {
	t.Helper()
	presets := filepath.Join(t.TempDir(), "avatars.json")
	if err := os.WriteFile(presets, []byte(testPresets), 0o600); err != nil {
		t.Fatalf("write presets: %v", err)
	}
	if adapter == nil {
		adapter = openclaw.NewMockAdapter()
	}

	cfg := config.Config{
		AllowedOrigins:  []string{"http://localhost:5173"},
		OpenClawBaseURL: "http://openclaw.test",
		OpenClawAgentID: "main",
		OpenClawModel:   "openclaw:main",
	}
	if tweak != nil {
		tweak(&cfg)
	}
	env := &testEnv{
		projects: projects.NewInMemoryStore("main"),
		sessions: session.NewManager(time.Minute),
	}
	srv := New(cfg, Deps{
		Sessions:     env.sessions,
		Orchestrator: echoOrchestrator{},
		Projects:     env.projects,
		Avatars:      avatars.NewCatalog(avatars.Config{Source: avatars.SourceFile, PresetsPath: presets, TTL: time.Minute}, nil),
		OpenClaw:     adapter,
		Metrics:      observability.NewMetricsWith(prometheus.NewRegistry(), "httpapi_test"),
	})
	env.server = httptest.NewServer(srv.Router())
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, raw
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	res, raw := env.do(t, http.MethodGet, "/api/health", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" || payload["openclaw_agent"] != "main" || payload["avatars_source"] != "file" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload["active_connections"] != float64(0) {
		t.Fatalf("active_connections = %v", payload["active_connections"])
	}
}

func TestListAvatars(t *testing.T) {
	env := newTestEnv(t, nil)
	res, raw := env.do(t, http.MethodGet, "/api/avatars", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var list []map[string]string
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0]["id"] != "nova" || list[0]["voiceId"] != "voice-nova" {
		t.Fatalf("avatars = %+v", list)
	}
}

func TestProjectLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	res, raw := env.do(t, http.MethodPost, "/api/projects", map[string]string{"name": "  Demo  "})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d body = %s", res.StatusCode, raw)
	}
	var created map[string]any
	if err := json.Unmarshal(raw, &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	id, _ := created["id"].(string)
	if len(id) != 32 {
		t.Fatalf("id = %q, want 32 hex chars", id)
	}
	if created["name"] != "Demo" {
		t.Fatalf("name = %v", created["name"])
	}
	if created["session_key"] != "agent:main:proj:"+id {
		t.Fatalf("session_key = %v", created["session_key"])
	}
	if created["avatarId"] != "nova" {
		t.Fatalf("default avatar = %v, want first catalog entry", created["avatarId"])
	}
	if ts, _ := created["created_at"].(float64); ts <= 0 {
		t.Fatalf("created_at = %v", created["created_at"])
	}

	res, raw = env.do(t, http.MethodPatch, "/api/projects/"+id, map[string]string{"avatarId": "sage"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d body = %s", res.StatusCode, raw)
	}
	p, err := env.projects.Get(context.Background(), id)
	if err != nil || p.AvatarID != "sage" {
		t.Fatalf("stored project = %+v, %v", p, err)
	}

	res, raw = env.do(t, http.MethodGet, "/api/projects", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", res.StatusCode)
	}
	var list []map[string]any
	if err := json.Unmarshal(raw, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0]["id"] != id || list[0]["avatarId"] != "sage" {
		t.Fatalf("list = %+v", list)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	cases := []struct {
		name string
		body map[string]string
		want int
	}{
		{"empty name", map[string]string{"name": ""}, http.StatusBadRequest},
		{"blank name", map[string]string{"name": "   "}, http.StatusBadRequest},
		{"too long", map[string]string{"name": strings.Repeat("x", 201)}, http.StatusBadRequest},
		{"unknown avatar", map[string]string{"name": "Demo", "avatarId": "ghost"}, http.StatusBadRequest},
		{"max length", map[string]string{"name": strings.Repeat("x", 200)}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, raw := env.do(t, http.MethodPost, "/api/projects", tc.body)
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", res.StatusCode, tc.want, raw)
			}
		})
	}
}

func TestUpdateProjectErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	p, err := env.projects.Create(context.Background(), "Demo", "nova")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	res, _ := env.do(t, http.MethodPatch, "/api/projects/missing", map[string]string{"avatarId": "sage"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status = %d, want 404", res.StatusCode)
	}

	res, raw := env.do(t, http.MethodPatch, "/api/projects/"+p.ID, map[string]string{"avatarId": "ghost"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown avatar status = %d, want 400", res.StatusCode)
	}
	var errBody errorResponse
	_ = json.Unmarshal(raw, &errBody)
	if errBody.Error != "Unknown avatarId" {
		t.Fatalf("error = %+v", errBody)
	}
	got, _ := env.projects.Get(context.Background(), p.ID)
	if got.AvatarID != "nova" {
		t.Fatalf("avatar changed to %q after rejected update", got.AvatarID)
	}
}

func TestChat(t *testing.T) {
	env := newTestEnv(t, nil)
	p, _ := env.projects.Create(context.Background(), "Demo", "nova")

	res, raw := env.do(t, http.MethodPost, "/api/chat", map[string]string{"projectId": p.ID, "message": "hello", "avatarId": "sage"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %s", res.StatusCode, raw)
	}
	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Reply != "I heard you: hello" {
		t.Fatalf("reply = %q", out.Reply)
	}
	got, _ := env.projects.Get(context.Background(), p.ID)
	if got.AvatarID != "sage" {
		t.Fatalf("avatar = %q, want sage", got.AvatarID)
	}

	res, _ = env.do(t, http.MethodPost, "/api/chat", map[string]string{"projectId": "missing", "message": "hello"})
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing project status = %d, want 404", res.StatusCode)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "agent offline", http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	env := newTestEnv(t, openclaw.NewClient(openclaw.Config{BaseURL: upstream.URL, AgentID: "main"}))
	p, _ := env.projects.Create(context.Background(), "Demo", "")

	for _, path := range []string{"/api/chat", "/api/chat/stream"} {
		res, raw := env.do(t, http.MethodPost, path, map[string]string{"projectId": p.ID, "message": "hi"})
		if res.StatusCode != http.StatusBadGateway {
			t.Fatalf("%s status = %d, want 502", path, res.StatusCode)
		}
		var errBody errorResponse
		_ = json.Unmarshal(raw, &errBody)
		if !strings.HasPrefix(errBody.Error, "OpenClaw request failed: ") || !strings.Contains(errBody.Error, "503") {
			t.Fatalf("%s error = %q", path, errBody.Error)
		}
	}
}

func TestChatStream(t *testing.T) {
	env := newTestEnv(t, nil)
	p, _ := env.projects.Create(context.Background(), "Demo", "")

	res, raw := env.do(t, http.MethodPost, "/api/chat/stream", map[string]string{"projectId": p.ID, "message": "hi"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	body := string(raw)
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Fatalf("body = %q", body)
	}
	for _, block := range strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n") {
		if !strings.HasPrefix(block, "data: ") {
			t.Fatalf("block %q is not an sse data line", block)
		}
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req, _ := http.NewRequest(http.MethodOptions, env.server.URL+"/api/projects", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", res.StatusCode)
	}
	if got := res.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin = %q", got)
	}

	req, _ = http.NewRequest(http.MethodOptions, env.server.URL+"/api/projects", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", res.StatusCode)
	}
}

func wsURL(env *testEnv) string {
	return "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/audio"
}

func TestAudioWebSocketRelaysFrames(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	read := func() protocol.Event {
		t.Helper()
		var ev protocol.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		return ev
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio.start","projectId":"p1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := read(); ev.Type != protocol.TypeAudioStarted {
		t.Fatalf("event = %+v", ev)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if ev := read(); ev.Type != protocol.TypeASRFinal || ev.Text != "4 bytes" {
		t.Fatalf("event = %+v", ev)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := read(); ev.Type != protocol.TypeError || ev.Message != protocol.CodeInvalidJSON {
		t.Fatalf("event = %+v", ev)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio.rewind"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := read(); ev.Type != protocol.TypeError || ev.Message != protocol.CodeUnknownEvent {
		t.Fatalf("event = %+v", ev)
	}

	if env.sessions.ActiveCount() != 1 {
		t.Fatalf("active connections = %d, want 1", env.sessions.ActiveCount())
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.sessions.ActiveCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection still registered after close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAudioWebSocketAcceptsLargeFrames(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	frame := make([]byte, 3<<20)
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	var ev protocol.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != protocol.TypeASRFinal || ev.Text != fmt.Sprintf("%d bytes", len(frame)) {
		t.Fatalf("event = %+v", ev)
	}
}

func TestAudioWebSocketConfiguredMessageCap(t *testing.T) {
	env := newTestEnvWith(t, nil, func(cfg *config.Config) { cfg.WSMaxMessageBytes = 1024 })
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 512)); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	var ev protocol.Event
	if err := conn.ReadJSON(&ev); err != nil || ev.Text != "512 bytes" {
		t.Fatalf("small frame: event = %+v, err = %v", ev, err)
	}

	_ = conn.WriteMessage(websocket.BinaryMessage, make([]byte, 4096))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection stayed open after oversized frame")
	}
}

func TestAudioWebSocketOriginCheck(t *testing.T) {
	env := newTestEnv(t, nil)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL(env), header)
	if err == nil {
		t.Fatalf("dial from disallowed origin succeeded")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("response = %+v, want 403", res)
	}

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env), header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}
