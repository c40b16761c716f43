package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManagerOpenGetClose(t *testing.T) {
	m := NewManager(time.Minute)
	c := m.Open("127.0.0.1:5000", nil)
	if c.ID == "" {
		t.Fatalf("connection ID should not be empty")
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	got, err := m.Get(c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RemoteAddr != "127.0.0.1:5000" || got.Status != StatusOpen {
		t.Fatalf("unexpected connection state: %+v", got)
	}

	closed, err := m.Close(c.ID)
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if closed.Status != StatusClosed {
		t.Fatalf("closed status = %q, want %q", closed.Status, StatusClosed)
	}
	if _, err := m.Get(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Close error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerTurnLifecycle(t *testing.T) {
	m := NewManager(time.Minute)
	c := m.Open("", nil)
	if err := m.SetProject(c.ID, "p1"); err != nil {
		t.Fatalf("SetProject() error = %v", err)
	}
	turnID, err := m.StartTurn(c.ID)
	if err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}
	if turnID == "" {
		t.Fatalf("turn ID should not be empty")
	}

	got, _ := m.Get(c.ID)
	if got.ActiveTurnID != turnID || got.TurnCount != 1 || got.ProjectID != "p1" {
		t.Fatalf("unexpected connection state: %+v", got)
	}

	if err := m.FinishTurn(c.ID); err != nil {
		t.Fatalf("FinishTurn() error = %v", err)
	}
	got, _ = m.Get(c.ID)
	if got.ActiveTurnID != "" {
		t.Fatalf("ActiveTurnID = %q, want empty", got.ActiveTurnID)
	}
}

func TestManagerUnknownConnection(t *testing.T) {
	m := NewManager(time.Minute)
	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch() error = %v, want ErrNotFound", err)
	}
	if _, err := m.StartTurn("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("StartTurn() error = %v, want ErrNotFound", err)
	}
	if _, err := m.Close("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Close() error = %v, want ErrNotFound", err)
	}
}

func TestManagerJanitorExpiresIdle(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	var canceled atomic.Bool
	var hooked atomic.Int32
	m.SetExpireHook(func(Connection) { hooked.Add(1) })
	c := m.Open("", func() { canceled.Store(true) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(c.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound after expiry", err)
	}
	if !canceled.Load() {
		t.Fatalf("cancel func was not called")
	}
	if hooked.Load() != 1 {
		t.Fatalf("expire hook calls = %d, want 1", hooked.Load())
	}
}

func TestManagerJanitorKeepsActiveTurn(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	c := m.Open("", nil)
	if _, err := m.StartTurn(c.ID); err != nil {
		t.Fatalf("StartTurn() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	time.Sleep(90 * time.Millisecond)
	if _, err := m.Get(c.ID); err != nil {
		t.Fatalf("Get() error = %v, connection with active turn should survive", err)
	}
}
