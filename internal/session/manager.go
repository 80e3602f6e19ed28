package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/finsight/finsight/internal/log"
	"github.com/finsight/finsight/internal/pipeline"
)

// Manager owns the live sessions and hands out new ones with the
// configured defaults.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session

	defaults pipeline.Config
	answerer Answerer
	logger   log.Logger
}

// NewManager creates a session manager. defaults seeds the configuration
// of every new session.
func NewManager(defaults pipeline.Config, answerer Answerer, logger log.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		defaults: defaults,
		answerer: answerer,
		logger:   logger,
	}
}

// Create starts a new session with the default configuration.
func (m *Manager) Create() *Session {
	s := newSession(uuid.New(), m.defaults, m.answerer, m.logger)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.logger.Debug("session created", "session_id", s.ID)
	return s
}

// Get returns the session with the given ID, or nil.
func (m *Manager) Get(id uuid.UUID) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// GetOrCreate returns the session with the given ID, creating a fresh
// one when the ID is unknown or nil.
func (m *Manager) GetOrCreate(id uuid.UUID) *Session {
	if id != uuid.Nil {
		if s := m.Get(id); s != nil {
			return s
		}
	}
	return m.Create()
}

// Remove drops a session. Its in-flight query, if any, finishes against
// the detached session.
func (m *Manager) Remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count reports how many sessions are live.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
