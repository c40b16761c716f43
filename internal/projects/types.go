package projects

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/antoniostano/avatarvoice/internal/reliability"
)

// ErrNotFound is returned for unknown project ids.
var ErrNotFound = fmt.Errorf("project %w", reliability.ErrNotFound)

// Project binds a client workspace to a persistent OpenClaw conversation.
type Project struct {
	ID         string
	Name       string
	SessionKey string
	CreatedAt  time.Time
	AvatarID   string
}

// Store keeps projects. Implementations are safe for concurrent use.
type Store interface {
	Create(ctx context.Context, name, avatarID string) (Project, error)
	Get(ctx context.Context, id string) (Project, error)
	List(ctx context.Context) ([]Project, error)
	SetAvatar(ctx context.Context, id, avatarID string) (Project, error)
	Close() error
}

// SessionKey derives the OpenClaw session key for a project.
func SessionKey(agentID, projectID string) string {
	return fmt.Sprintf("agent:%s:proj:%s", agentID, strings.ToLower(strings.TrimSpace(projectID)))
}

func newProject(agentID, name, avatarID string) Project {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return Project{
		ID:         id,
		Name:       strings.TrimSpace(name),
		SessionKey: SessionKey(agentID, id),
		CreatedAt:  time.Now().UTC(),
		AvatarID:   avatarID,
	}
}
