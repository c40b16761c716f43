package projects

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a simple in-process project store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	agentID  string
	projects map[string]Project
}

func NewInMemoryStore(agentID string) *InMemoryStore {
	return &InMemoryStore{agentID: agentID, projects: make(map[string]Project)}
}

func (s *InMemoryStore) Create(_ context.Context, name, avatarID string) (Project, error) {
	p := newProject(s.agentID, name, avatarID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return p, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Project, error) {
	s.mu.RLock()
	out := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) SetAvatar(_ context.Context, id, avatarID string) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	p.AvatarID = avatarID
	s.projects[id] = p
	return p, nil
}

func (s *InMemoryStore) Close() error { return nil }
