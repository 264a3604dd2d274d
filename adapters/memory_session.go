package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
)

// MemorySessionRepository is an in-memory implementation of SessionRepository.
// Records live for the lifetime of the process.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session // id -> session
	active   map[string]string            // client_id -> active session id
	logger   *zap.Logger
}

// NewMemorySessionRepository creates a new in-memory session repository
func NewMemorySessionRepository(logger *zap.Logger) *MemorySessionRepository {
	return &MemorySessionRepository{
		sessions: make(map[string]*entities.Session),
		active:   make(map[string]string),
		logger:   logger,
	}
}

// Create stores a new session. A client can only have one active session.
func (m *MemorySessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if id, ok := m.active[session.ClientID]; ok && !m.sessions[id].IsExpired() {
		return errors.New("client already has an active session")
	}

	m.sessions[session.ID] = session.Clone()
	if session.Status == entities.SessionStatusActive {
		m.active[session.ClientID] = session.ID
	}

	m.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("client_id", session.ClientID))
	return nil
}

// GetByID retrieves a session by its ID
func (m *MemorySessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[id]
	if !exists {
		return nil, repositories.ErrNotFound
	}
	return session.Clone(), nil
}

// GetActiveByClientID returns the client's active session, or nil when there
// is none.
func (m *MemorySessionRepository) GetActiveByClientID(ctx context.Context, clientID string) (*entities.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[clientID]
	if !ok {
		return nil, nil
	}
	session := m.sessions[id]
	if session == nil || session.IsExpired() {
		return nil, nil
	}
	return session.Clone(), nil
}

// Update replaces a stored session
func (m *MemorySessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.sessions[session.ID]
	if !exists {
		return repositories.ErrNotFound
	}

	updated := session.Clone()
	updated.CreatedAt = existing.CreatedAt // Preserve original creation time
	m.sessions[session.ID] = updated
	m.syncActive(updated)

	m.logger.Debug("Session updated", zap.String("session_id", session.ID))
	return nil
}

// Delete removes a session
func (m *MemorySessionRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return repositories.ErrNotFound
	}
	delete(m.sessions, id)
	if m.active[session.ClientID] == id {
		delete(m.active, session.ClientID)
	}
	return nil
}

// ExpireSessions marks idle active sessions as expired
func (m *MemorySessionRepository) ExpireSessions(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for _, session := range m.sessions {
		if session.Status == entities.SessionStatusActive && session.IsExpired() {
			session.Expire()
			m.syncActive(session)
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info("Expired sessions", zap.Int("count", expired))
	}
	return expired, nil
}

// AddMessage appends a transcript line to a session
func (m *MemorySessionRepository) AddMessage(ctx context.Context, sessionID string, role entities.MessageRole, content string) error {
	return m.mutate(sessionID, func(s *entities.Session) {
		s.AddMessage(role, content)
	})
}

// RecordToolCall counts a tool invocation on a session
func (m *MemorySessionRepository) RecordToolCall(ctx context.Context, sessionID, tool string, success bool) error {
	return m.mutate(sessionID, func(s *entities.Session) {
		s.RecordToolCall(tool, success)
	})
}

func (m *MemorySessionRepository) mutate(id string, f func(*entities.Session)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[id]
	if !exists {
		return repositories.ErrNotFound
	}
	f(session)
	return nil
}

// syncActive keeps the client index pointing only at active sessions.
func (m *MemorySessionRepository) syncActive(session *entities.Session) {
	if session.Status == entities.SessionStatusActive {
		m.active[session.ClientID] = session.ID
		return
	}
	if m.active[session.ClientID] == session.ID {
		delete(m.active, session.ClientID)
	}
}
