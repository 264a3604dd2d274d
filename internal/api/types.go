package api

import (
	"time"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/usecase"
)

// CreateSessionRequest represents the request payload for starting a session
type CreateSessionRequest struct {
	ClientID  string           `json:"client_id"`
	Language  string           `json:"language,omitempty"`
	StartedAt *entities.LatLng `json:"started_at,omitempty"`
}

// CreateSessionResponse represents the response payload for starting a session
type CreateSessionResponse struct {
	SessionID    string    `json:"session_id"`
	ClientID     string    `json:"client_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	WebSocketURL string    `json:"websocket_url"`
	Resumed      bool      `json:"resumed"`
}

// SessionResponse is a session record with the live state of its client
type SessionResponse struct {
	Session *entities.Session          `json:"session"`
	Live    *usecase.ConversationState `json:"live,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
