package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/openclaw"
	"github.com/antoniostano/avatarvoice/internal/projects"
)

type chatRequest struct {
	ProjectID    string `json:"projectId"`
	Message      string `json:"message"`
	Instructions string `json:"instructions,omitempty"`
	AvatarID     string `json:"avatarId,omitempty"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	p, req, ok := s.prepareChat(w, r)
	if !ok {
		return
	}
	reply, err := s.openclaw.Respond(r.Context(), openclaw.ChatRequest{
		SessionKey:   p.SessionKey,
		Input:        req.Message,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.logger.Warn("openclaw chat failed", zap.String("project_id", p.ID), zap.Error(err))
		respondError(w, http.StatusBadGateway, "upstream_error", "OpenClaw request failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// handleChatStream proxies the OpenClaw event stream as server-sent events.
// An upstream failure before the first line becomes a 502; after that the
// stream just ends.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	p, req, ok := s.prepareChat(w, r)
	if !ok {
		return
	}
	flusher, _ := w.(http.Flusher)

	started := false
	err := s.openclaw.ProxyStream(r.Context(), openclaw.ChatRequest{
		SessionKey:   p.SessionKey,
		Input:        req.Message,
		Instructions: req.Instructions,
	}, func(line string) error {
		if !started {
			started = true
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", line); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err == nil {
		if !started {
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(http.StatusOK)
		}
		return
	}
	s.logger.Warn("openclaw stream failed", zap.String("project_id", p.ID), zap.Bool("started", started), zap.Error(err))
	if !started {
		respondError(w, http.StatusBadGateway, "upstream_error", "OpenClaw request failed: "+err.Error())
	}
}

// prepareChat validates the request, resolves the project and applies an
// avatar switch. It writes the error response itself on failure.
func (s *Server) prepareChat(w http.ResponseWriter, r *http.Request) (projects.Project, chatRequest, bool) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return projects.Project{}, req, false
	}
	if strings.TrimSpace(req.ProjectID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "projectId is required")
		return projects.Project{}, req, false
	}

	p, ok := s.getProject(w, r.Context(), strings.TrimSpace(req.ProjectID))
	if !ok {
		return projects.Project{}, req, false
	}

	avatarID := strings.TrimSpace(req.AvatarID)
	if avatarID != "" && avatarID != p.AvatarID {
		if !s.resolveAvatar(w, r.Context(), avatarID) {
			return projects.Project{}, req, false
		}
		updated, err := s.projects.SetAvatar(r.Context(), p.ID, avatarID)
		if err != nil {
			s.respondProjectError(w, err)
			return projects.Project{}, req, false
		}
		p = updated
	}
	return p, req, true
}
