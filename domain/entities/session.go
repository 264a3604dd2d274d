package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the status of a session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// MessageRole represents who produced a transcript line
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleAgent MessageRole = "agent"
	MessageRoleTool  MessageRole = "tool"
)

// IdleTimeout is how long a session may sit without activity before it expires.
const IdleTimeout = 30 * time.Minute

// SessionMessage is one finished turn in the session transcript
type SessionMessage struct {
	Timestamp time.Time   `json:"timestamp" bson:"timestamp"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
}

// SessionMetadata contains session-level metadata
type SessionMetadata struct {
	Language  string  `json:"language" bson:"language"`
	StartedAt *LatLng `json:"started_at,omitempty" bson:"started_at,omitempty"`
	UserAgent string  `json:"user_agent,omitempty" bson:"user_agent,omitempty"`
}

// Session is the in-memory record of one browser guide session.
type Session struct {
	ID            string           `json:"id" bson:"_id"`
	ClientID      string           `json:"client_id" bson:"client_id"`
	CreatedAt     time.Time        `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time        `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time       `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time        `json:"expires_at" bson:"expires_at"`
	Status        SessionStatus    `json:"status" bson:"status"`
	Messages      []SessionMessage `json:"messages" bson:"messages"`
	ToolCalls     map[string]int   `json:"tool_calls" bson:"tool_calls"`
	ToolFailures  int              `json:"tool_failures" bson:"tool_failures"`
	Metadata      SessionMetadata  `json:"metadata" bson:"metadata"`
}

// NewSession creates a new session for a browser client
func NewSession(clientID string) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(IdleTimeout),
		Status:       SessionStatusActive,
		Messages:     make([]SessionMessage, 0),
		ToolCalls:    make(map[string]int),
		Metadata: SessionMetadata{
			Language: "en-US",
		},
	}
}

// AddMessage appends a finished turn to the transcript
func (s *Session) AddMessage(role MessageRole, content string) {
	now := time.Now()
	s.Messages = append(s.Messages, SessionMessage{
		Timestamp: now,
		Role:      role,
		Content:   content,
	})
	s.LastMessageAt = &now
	s.UpdateLastActive()
}

// RecordToolCall counts a tool invocation and its outcome
func (s *Session) RecordToolCall(name string, success bool) {
	if s.ToolCalls == nil {
		s.ToolCalls = make(map[string]int)
	}
	s.ToolCalls[name]++
	if !success {
		s.ToolFailures++
	}
	s.UpdateLastActive()
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(IdleTimeout)
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt) || s.Status != SessionStatusActive
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
	s.UpdateLastActive()
}

// Expire marks the session as expired
func (s *Session) Expire() {
	s.Status = SessionStatusExpired
}

// Clone returns a deep copy safe to hand out of a repository.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = append([]SessionMessage(nil), s.Messages...)
	c.ToolCalls = make(map[string]int, len(s.ToolCalls))
	for k, v := range s.ToolCalls {
		c.ToolCalls[k] = v
	}
	if s.LastMessageAt != nil {
		t := *s.LastMessageAt
		c.LastMessageAt = &t
	}
	if s.Metadata.StartedAt != nil {
		p := *s.Metadata.StartedAt
		c.Metadata.StartedAt = &p
	}
	return &c
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.ClientID == "" {
		return errors.New("client_id is required")
	}

	if s.Status != SessionStatusActive && s.Status != SessionStatusExpired && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}

	return nil
}
