package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/quivio/attempt-engine/internal/clock"
	"github.com/quivio/attempt-engine/internal/config"
	"github.com/quivio/attempt-engine/internal/model"
	"github.com/quivio/attempt-engine/internal/store"
	"github.com/rs/zerolog"
)

// DefinitionSource fetches the read-only assessment definition. Implemented
// by platform.Client.
type DefinitionSource interface {
	FetchDefinition(ctx context.Context, assessmentID uuid.UUID) (*model.Assessment, error)
}

// Manager owns at most one live Engine per (user, assessment) pair. Opening
// an attempt that already has a live engine returns the same instance, so a
// reconnecting tab reattaches instead of racing a second controller.
type Manager struct {
	mu      sync.Mutex
	engines map[string]*Engine

	defs      DefinitionSource
	st        store.Store
	clk       clock.Clock
	submitter Submitter
	log       zerolog.Logger
}

// NewManager creates a Manager.
func NewManager(defs DefinitionSource, st store.Store, clk clock.Clock, submitter Submitter, log zerolog.Logger) *Manager {
	return &Manager{
		engines:   make(map[string]*Engine),
		defs:      defs,
		st:        st,
		clk:       clk,
		submitter: submitter,
		log:       log.With().Str("component", "attempt_manager").Logger(),
	}
}

// Open returns the live engine for (user, assessment), creating one if none
// exists: the definition is fetched, the durable store is checked for a
// resumable record, and the countdown starts. A definition fetch failure
// blocks entry; no partial session is ever created.
func (m *Manager) Open(ctx context.Context, userID int, assessmentID uuid.UUID) (*Engine, error) {
	key := config.CacheKey.AttemptSnapshotKey(userID, assessmentID)

	m.mu.Lock()
	if eng, ok := m.engines[key]; ok && eng.State() != StateTerminated {
		m.mu.Unlock()
		return eng, nil
	}
	m.mu.Unlock()

	def, err := m.defs.FetchDefinition(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("fetch definition: %w", err)
	}

	eng := New(def, userID, m.st, m.clk, m.submitter, m.log)
	eng.SetOnTerminal(func() { m.remove(key, eng) })

	m.mu.Lock()
	// A concurrent Open may have won the race; reuse its engine.
	if existing, ok := m.engines[key]; ok && existing.State() != StateTerminated {
		m.mu.Unlock()
		return existing, nil
	}
	m.engines[key] = eng
	m.mu.Unlock()

	if err := eng.Start(ctx); err != nil {
		m.remove(key, eng)
		return nil, err
	}
	eng.StartTicker()
	return eng, nil
}

// Get returns the live engine for (user, assessment) without creating one.
func (m *Manager) Get(userID int, assessmentID uuid.UUID) (*Engine, bool) {
	key := config.CacheKey.AttemptSnapshotKey(userID, assessmentID)
	m.mu.Lock()
	defer m.mu.Unlock()
	eng, ok := m.engines[key]
	return eng, ok
}

// Live reports the number of live engines, for monitoring.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.engines)
}

func (m *Manager) remove(key string, eng *Engine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.engines[key]; ok && current == eng {
		delete(m.engines, key)
	}
}
