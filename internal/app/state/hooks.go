package state

import (
	"github.com/bkohler93/match3-backend/internal/app/game"
	"github.com/bkohler93/match3-backend/pkg/uuidstring"
	"go.uber.org/zap"
)

// sessionHooks receives callbacks from session timer goroutines. Each one takes the
// manager lock before touching the session, keeping the manager then session order.
type sessionHooks struct {
	m *Manager
}

func (h sessionHooks) RematchExpired(id uuidstring.ID) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	var out game.Outcome
	if err := m.guardLocked(s, func() error {
		out = s.ExpireRematch()
		return nil
	}); err != nil {
		return
	}
	m.applyOutcomeLocked(s, out)
	m.updateGaugesLocked()
}

func (h sessionHooks) Faulted(id uuidstring.ID, recovered any) {
	m := h.m
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return
	}
	m.log.Error("tearing down faulted session", zap.String("gameId", id.Short()), zap.Any("panic", recovered))
	m.teardownLocked(s)
	m.updateGaugesLocked()
}
