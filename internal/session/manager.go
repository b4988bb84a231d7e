package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/domain"
)

// Manager keeps the live sessions of the service in memory.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Machine
	deps     Deps
	max      int
	logger   *zap.Logger
}

// NewManager creates a manager that builds sessions from deps. max <= 0 means unlimited.
func NewManager(deps Deps, max int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Machine),
		deps:     deps,
		max:      max,
		logger:   logger,
	}
}

// Create starts a new session and registers it.
func (g *Manager) Create(ctx context.Context) (*Machine, error) {
	g.mu.RLock()
	full := g.max > 0 && len(g.sessions) >= g.max
	g.mu.RUnlock()
	if full {
		return nil, domain.ErrSessionLimit
	}

	m := NewMachine(uuid.New(), g.deps)
	m.Start(ctx)

	g.mu.Lock()
	if g.max > 0 && len(g.sessions) >= g.max {
		g.mu.Unlock()
		m.Close()
		return nil, domain.ErrSessionLimit
	}
	g.sessions[m.ID()] = m
	g.mu.Unlock()

	return m, nil
}

// Get returns a live session.
func (g *Manager) Get(id uuid.UUID) (*Machine, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	m, ok := g.sessions[id]
	if !ok {
		return nil, domain.NewNotFoundError("session", id.String())
	}
	return m, nil
}

// Close removes and stops a session.
func (g *Manager) Close(id uuid.UUID) error {
	g.mu.Lock()
	m, ok := g.sessions[id]
	if ok {
		delete(g.sessions, id)
	}
	g.mu.Unlock()

	if !ok {
		return domain.NewNotFoundError("session", id.String())
	}
	m.Close()
	return nil
}

// Count returns the number of live sessions.
func (g *Manager) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// ReapIdle closes sessions untouched for longer than ttl and returns how many were closed.
func (g *Manager) ReapIdle(ttl time.Duration) int {
	now := time.Now()
	if g.deps.Now != nil {
		now = g.deps.Now()
	}

	var stale []*Machine
	g.mu.Lock()
	for id, m := range g.sessions {
		if now.Sub(m.LastActive()) > ttl {
			stale = append(stale, m)
			delete(g.sessions, id)
		}
	}
	g.mu.Unlock()

	for _, m := range stale {
		m.Close()
	}
	if len(stale) > 0 {
		g.logger.Info("Reaped idle sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// CloseAll stops every session.
func (g *Manager) CloseAll() {
	g.mu.Lock()
	all := make([]*Machine, 0, len(g.sessions))
	for id, m := range g.sessions {
		all = append(all, m)
		delete(g.sessions, id)
	}
	g.mu.Unlock()

	for _, m := range all {
		m.Close()
	}
}
