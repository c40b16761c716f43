package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/avatars"
	"github.com/antoniostano/avatarvoice/internal/config"
	"github.com/antoniostano/avatarvoice/internal/observability"
	"github.com/antoniostano/avatarvoice/internal/openclaw"
	"github.com/antoniostano/avatarvoice/internal/projects"
	"github.com/antoniostano/avatarvoice/internal/protocol"
	"github.com/antoniostano/avatarvoice/internal/session"
)

type Orchestrator interface {
	RunConnection(ctx context.Context, connID string, inbound <-chan any, outbound chan<- protocol.Event) error
}

// Deps are the collaborators behind the HTTP and websocket routes.
type Deps struct {
	Sessions     *session.Manager
	Orchestrator Orchestrator
	Projects     projects.Store
	Avatars      *avatars.Catalog
	OpenClaw     openclaw.Adapter
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

type Server struct {
	cfg          config.Config
	sessions     *session.Manager
	orchestrator Orchestrator
	projects     projects.Store
	avatars      *avatars.Catalog
	openclaw     openclaw.Adapter
	metrics      *observability.Metrics
	logger       *zap.Logger
	upgrader     websocket.Upgrader
	cors         *corsMiddleware
}

func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cors := newCORSMiddleware(cfg.AllowedOrigins)
	return &Server{
		cfg:          cfg,
		sessions:     deps.Sessions,
		orchestrator: deps.Orchestrator,
		projects:     deps.Projects,
		avatars:      deps.Avatars,
		openclaw:     deps.OpenClaw,
		metrics:      deps.Metrics,
		logger:       logger.Named("httpapi"),
		cors:         cors,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				if cors.allows(origin) {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/ws/audio", s.handleAudioWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.cors.handle)

		r.Get("/health", s.handleHealth)
		r.Get("/avatars", s.handleListAvatars)
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects", s.handleCreateProject)
		r.Patch("/projects/{id}", s.handleUpdateProject)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)
		r.Get("/connections", s.handleListConnections)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"openclaw_base_url":  s.cfg.OpenClawBaseURL,
		"openclaw_agent":     s.cfg.OpenClawAgentID,
		"model":              s.cfg.OpenClawModel,
		"avatars_source":     s.avatars.Source(),
		"transcription":      s.cfg.TranscriptionBackend(),
		"active_connections": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"connections": s.sessions.List()})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
