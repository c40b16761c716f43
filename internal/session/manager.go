package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

var ErrNotFound = errors.New("connection not found")

// Connection is the registry view of one audio websocket. The per-connection
// capture state lives with the connection loop, not here.
type Connection struct {
	ID             string    `json:"connection_id"`
	RemoteAddr     string    `json:"remote_addr,omitempty"`
	Status         Status    `json:"status"`
	ProjectID      string    `json:"project_id,omitempty"`
	ActiveTurnID   string    `json:"active_turn_id,omitempty"`
	TurnCount      int       `json:"turn_count"`
	OpenedAt       time.Time `json:"opened_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type entry struct {
	conn   Connection
	cancel context.CancelFunc
}

// Manager tracks open connections and closes the ones that go idle.
type Manager struct {
	mu          sync.RWMutex
	conns       map[string]*entry
	idleTimeout time.Duration
	onExpire    func(Connection)
}

func NewManager(idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &Manager{
		conns:       make(map[string]*entry),
		idleTimeout: idleTimeout,
	}
}

func (m *Manager) SetExpireHook(hook func(Connection)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Open registers a connection. cancel is invoked if the janitor expires it.
func (m *Manager) Open(remoteAddr string, cancel context.CancelFunc) Connection {
	now := time.Now().UTC()
	e := &entry{
		conn: Connection{
			ID:             uuid.NewString(),
			RemoteAddr:     remoteAddr,
			Status:         StatusOpen,
			OpenedAt:       now,
			LastActivityAt: now,
		},
		cancel: cancel,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[e.conn.ID] = e
	return e.conn
}

func (m *Manager) Get(id string) (Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.conns[id]
	if !ok {
		return Connection{}, ErrNotFound
	}
	return e.conn, nil
}

func (m *Manager) List() []Connection {
	m.mu.RLock()
	out := make([]Connection, 0, len(m.conns))
	for _, e := range m.conns {
		out = append(out, e.conn)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (m *Manager) Touch(id string) error {
	return m.update(id, func(c *Connection) {})
}

// SetProject records the project of the most recent capture.
func (m *Manager) SetProject(id, projectID string) error {
	return m.update(id, func(c *Connection) { c.ProjectID = projectID })
}

// StartTurn marks a turn active and returns its id.
func (m *Manager) StartTurn(id string) (string, error) {
	turnID := uuid.NewString()
	err := m.update(id, func(c *Connection) {
		c.ActiveTurnID = turnID
		c.TurnCount++
	})
	if err != nil {
		return "", err
	}
	return turnID, nil
}

func (m *Manager) FinishTurn(id string) error {
	return m.update(id, func(c *Connection) { c.ActiveTurnID = "" })
}

// Close removes the connection and returns its final state.
func (m *Manager) Close(id string) (Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.conns[id]
	if !ok {
		return Connection{}, ErrNotFound
	}
	delete(m.conns, id)
	e.conn.Status = StatusClosed
	e.conn.ActiveTurnID = ""
	e.conn.LastActivityAt = time.Now().UTC()
	return e.conn, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireIdle()
			}
		}
	}()
}

func (m *Manager) update(id string, fn func(*Connection)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.conns[id]
	if !ok {
		return ErrNotFound
	}
	fn(&e.conn)
	e.conn.LastActivityAt = time.Now().UTC()
	return nil
}

// expireIdle closes connections with no traffic and no turn in flight.
func (m *Manager) expireIdle() {
	now := time.Now().UTC()
	var (
		expired []Connection
		cancels []context.CancelFunc
	)

	m.mu.Lock()
	for id, e := range m.conns {
		if e.conn.ActiveTurnID != "" {
			continue
		}
		if now.Sub(e.conn.LastActivityAt) < m.idleTimeout {
			continue
		}
		delete(m.conns, id)
		e.conn.Status = StatusClosed
		e.conn.LastActivityAt = now
		expired = append(expired, e.conn)
		if e.cancel != nil {
			cancels = append(cancels, e.cancel)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if hook != nil {
		for _, c := range expired {
			hook(c)
		}
	}
}
