package entities

import (
	"testing"
	"time"
)

func TestSessionCreation(t *testing.T) {
	clientID := "client-123"
	session := NewSession(clientID)

	if session.ClientID != clientID {
		t.Errorf("Expected client ID %s, got %s", clientID, session.ClientID)
	}

	if session.ID == "" {
		t.Error("Expected generated session ID")
	}

	if session.Status != SessionStatusActive {
		t.Errorf("Expected status %s, got %s", SessionStatusActive, session.Status)
	}

	if len(session.Messages) != 0 {
		t.Errorf("Expected empty messages, got %d messages", len(session.Messages))
	}
}

func TestAddMessage(t *testing.T) {
	session := NewSession("client")

	userContent := "Take me to the Colosseum"
	session.AddMessage(MessageRoleUser, userContent)

	if len(session.Messages) != 1 {
		t.Errorf("Expected 1 message, got %d", len(session.Messages))
	}

	if session.Messages[0].Role != MessageRoleUser {
		t.Errorf("Expected user role, got %s", session.Messages[0].Role)
	}

	if session.Messages[0].Content != userContent {
		t.Errorf("Expected content %s, got %s", userContent, session.Messages[0].Content)
	}

	if session.LastMessageAt == nil {
		t.Error("Expected LastMessageAt to be set")
	}

	session.AddMessage(MessageRoleAgent, "Here we are in Rome.")

	if len(session.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(session.Messages))
	}

	if session.Messages[1].Role != MessageRoleAgent {
		t.Errorf("Expected agent role, got %s", session.Messages[1].Role)
	}
}

func TestRecordToolCall(t *testing.T) {
	session := NewSession("client")
	session.RecordToolCall("rotate_view", true)
	session.RecordToolCall("rotate_view", true)
	session.RecordToolCall("jump_to_location", false)

	if session.ToolCalls["rotate_view"] != 2 {
		t.Errorf("Expected 2 rotate_view calls, got %d", session.ToolCalls["rotate_view"])
	}
	if session.ToolFailures != 1 {
		t.Errorf("Expected 1 failure, got %d", session.ToolFailures)
	}
}

func TestSessionExpiration(t *testing.T) {
	session := NewSession("client")

	if session.IsExpired() {
		t.Error("Session should not be expired initially")
	}

	session.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if !session.IsExpired() {
		t.Error("Session should be expired when ExpiresAt is in the past")
	}

	session.ExpiresAt = time.Now().Add(1 * time.Hour)
	session.Status = SessionStatusTerminated
	if !session.IsExpired() {
		t.Error("Session should be expired when status is terminated")
	}
}

func TestSessionClone(t *testing.T) {
	session := NewSession("client")
	session.AddMessage(MessageRoleUser, "hello")
	session.RecordToolCall("rotate_view", true)

	clone := session.Clone()
	clone.Messages[0].Content = "changed"
	clone.ToolCalls["rotate_view"] = 10
	*clone.LastMessageAt = time.Time{}

	if session.Messages[0].Content != "hello" {
		t.Error("Clone should not share the messages slice")
	}
	if session.ToolCalls["rotate_view"] != 1 {
		t.Error("Clone should not share the tool call map")
	}
	if session.LastMessageAt.IsZero() {
		t.Error("Clone should not share LastMessageAt")
	}
}

func TestSessionValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr bool
	}{
		{name: "valid session", mutate: func(*Session) {}},
		{name: "missing client id", mutate: func(s *Session) { s.ClientID = "" }, wantErr: true},
		{name: "missing id", mutate: func(s *Session) { s.ID = "" }, wantErr: true},
		{name: "invalid status", mutate: func(s *Session) { s.Status = SessionStatus("invalid") }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := NewSession("client")
			tt.mutate(session)
			if err := session.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateLastActive(t *testing.T) {
	session := NewSession("client")
	originalLastActive := session.LastActiveAt
	originalExpiresAt := session.ExpiresAt

	time.Sleep(10 * time.Millisecond)

	session.UpdateLastActive()

	if !session.LastActiveAt.After(originalLastActive) {
		t.Error("LastActiveAt should be updated to a later time")
	}

	if !session.ExpiresAt.After(originalExpiresAt) {
		t.Error("ExpiresAt should be extended")
	}

	expectedExpiration := session.LastActiveAt.Add(IdleTimeout)
	if session.ExpiresAt.Sub(expectedExpiration).Abs() > time.Second {
		t.Error("ExpiresAt should be the idle timeout from LastActiveAt")
	}
}
