package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/panoguide/domain/entities"
)

// ErrNotFound is returned when a lookup has no result.
var ErrNotFound = errors.New("not found")

// SessionRepository defines data access methods for guide sessions
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	GetActiveByClientID(ctx context.Context, clientID string) (*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	Delete(ctx context.Context, id string) error
	// ExpireSessions marks idle sessions expired and returns how many changed.
	ExpireSessions(ctx context.Context) (int, error)
	AddMessage(ctx context.Context, sessionID string, role entities.MessageRole, content string) error
	RecordToolCall(ctx context.Context, sessionID, tool string, success bool) error
}
