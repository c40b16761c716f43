package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/antoniostano/avatarvoice/internal/avatars"
	"github.com/antoniostano/avatarvoice/internal/projects"
)

const maxProjectNameLen = 200

type projectView struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	SessionKey string  `json:"session_key"`
	CreatedAt  float64 `json:"created_at"`
	AvatarID   *string `json:"avatarId"`
}

func newProjectView(p projects.Project) projectView {
	v := projectView{
		ID:         p.ID,
		Name:       p.Name,
		SessionKey: p.SessionKey,
		CreatedAt:  float64(p.CreatedAt.UnixNano()) / 1e9,
	}
	if p.AvatarID != "" {
		id := p.AvatarID
		v.AvatarID = &id
	}
	return v
}

type createProjectRequest struct {
	Name     string `json:"name"`
	AvatarID string `json:"avatarId"`
}

type updateProjectRequest struct {
	AvatarID *string `json:"avatarId"`
}

func (s *Server) handleListAvatars(w http.ResponseWriter, r *http.Request) {
	list, err := s.avatars.List(r.Context())
	if err != nil {
		s.logger.Warn("list avatars failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "avatars_unavailable", "Avatar catalog unavailable: "+err.Error())
		return
	}
	if list == nil {
		list = []avatars.Avatar{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.List(r.Context())
	if err != nil {
		s.logger.Error("list projects failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	views := make([]projectView, 0, len(list))
	for _, p := range list {
		views = append(views, newProjectView(p))
	}
	respondJSON(w, http.StatusOK, views)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || utf8.RuneCountInString(req.Name) > maxProjectNameLen {
		respondError(w, http.StatusBadRequest, "invalid_request", "name must be 1-200 characters")
		return
	}

	avatarID := strings.TrimSpace(req.AvatarID)
	if avatarID != "" {
		if !s.resolveAvatar(w, r.Context(), avatarID) {
			return
		}
	} else {
		list, err := s.avatars.List(r.Context())
		if err != nil {
			s.logger.Warn("default avatar lookup failed", zap.Error(err))
		} else if len(list) > 0 {
			avatarID = list[0].ID
		}
	}

	p, err := s.projects.Create(r.Context(), name, avatarID)
	if err != nil {
		s.logger.Error("create project failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	s.logger.Info("project created", zap.String("project_id", p.ID), zap.String("avatar_id", p.AvatarID))
	respondJSON(w, http.StatusOK, newProjectView(p))
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	p, ok := s.getProject(w, r.Context(), id)
	if !ok {
		return
	}

	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.AvatarID != nil {
		avatarID := strings.TrimSpace(*req.AvatarID)
		if !s.resolveAvatar(w, r.Context(), avatarID) {
			return
		}
		updated, err := s.projects.SetAvatar(r.Context(), p.ID, avatarID)
		if err != nil {
			s.respondProjectError(w, err)
			return
		}
		p = updated
	}
	respondJSON(w, http.StatusOK, newProjectView(p))
}

// getProject writes the error response itself when the lookup fails.
func (s *Server) getProject(w http.ResponseWriter, ctx context.Context, id string) (projects.Project, bool) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		s.respondProjectError(w, err)
		return projects.Project{}, false
	}
	return p, true
}

func (s *Server) respondProjectError(w http.ResponseWriter, err error) {
	if errors.Is(err, projects.ErrNotFound) {
		respondError(w, http.StatusNotFound, "project_not_found", "Project not found")
		return
	}
	s.logger.Error("project store failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

// resolveAvatar reports whether id names a catalog avatar, writing a 400 or
// 502 response when it does not.
func (s *Server) resolveAvatar(w http.ResponseWriter, ctx context.Context, id string) bool {
	if id == "" {
		respondError(w, http.StatusBadRequest, "unknown_avatar", "Unknown avatarId")
		return false
	}
	_, ok, err := s.avatars.Resolve(ctx, id)
	if err != nil {
		s.logger.Warn("resolve avatar failed", zap.String("avatar_id", id), zap.Error(err))
		respondError(w, http.StatusBadGateway, "avatars_unavailable", "Avatar catalog unavailable: "+err.Error())
		return false
	}
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown_avatar", "Unknown avatarId")
		return false
	}
	return true
}
