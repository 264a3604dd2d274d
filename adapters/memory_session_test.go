package adapters

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
)

func TestMemorySessionRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySessionRepository(zaptest.NewLogger(t))

	t.Run("CreateAndGetSession", func(t *testing.T) {
		session := entities.NewSession("client-001")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Failed to create session: %v", err)
		}

		retrieved, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("Failed to get session: %v", err)
		}
		if retrieved.ClientID != session.ClientID {
			t.Errorf("Expected client ID %s, got %s", session.ClientID, retrieved.ClientID)
		}

		active, err := repo.GetActiveByClientID(ctx, "client-001")
		if err != nil || active == nil || active.ID != session.ID {
			t.Errorf("GetActiveByClientID() = %v, %v", active, err)
		}
	})

	t.Run("OneActiveSessionPerClient", func(t *testing.T) {
		if err := repo.Create(ctx, entities.NewSession("client-001")); err == nil {
			t.Error("Expected error creating a second active session")
		}
	})

	t.Run("ReturnedSessionsAreCopies", func(t *testing.T) {
		session := entities.NewSession("client-002")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}
		session.AddMessage(entities.MessageRoleUser, "not stored")

		got, _ := repo.GetByID(ctx, session.ID)
		got.AddMessage(entities.MessageRoleUser, "also not stored")

		again, _ := repo.GetByID(ctx, session.ID)
		if len(again.Messages) != 0 {
			t.Errorf("Expected stored session untouched, got %d messages", len(again.Messages))
		}
	})

	t.Run("AddMessageAndToolCalls", func(t *testing.T) {
		session := entities.NewSession("client-003")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}

		if err := repo.AddMessage(ctx, session.ID, entities.MessageRoleUser, "Take me to Rome"); err != nil {
			t.Fatal(err)
		}
		if err := repo.AddMessage(ctx, session.ID, entities.MessageRoleAgent, "Welcome to the Colosseum"); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordToolCall(ctx, session.ID, "jump_to_location", true); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordToolCall(ctx, session.ID, "step_forward", false); err != nil {
			t.Fatal(err)
		}

		got, _ := repo.GetByID(ctx, session.ID)
		if len(got.Messages) != 2 || got.Messages[1].Role != entities.MessageRoleAgent {
			t.Errorf("Messages = %+v", got.Messages)
		}
		if got.ToolCalls["jump_to_location"] != 1 || got.ToolFailures != 1 {
			t.Errorf("ToolCalls = %v, ToolFailures = %d", got.ToolCalls, got.ToolFailures)
		}
		if got.LastMessageAt == nil {
			t.Error("LastMessageAt should be set")
		}
	})

	t.Run("UnknownSession", func(t *testing.T) {
		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("GetByID() error = %v, want ErrNotFound", err)
		}
		if err := repo.AddMessage(ctx, "missing", entities.MessageRoleUser, "hi"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("AddMessage() error = %v, want ErrNotFound", err)
		}
		if err := repo.Delete(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("UpdateTerminatesSession", func(t *testing.T) {
		session := entities.NewSession("client-004")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}
		session.Terminate()
		if err := repo.Update(ctx, session); err != nil {
			t.Fatal(err)
		}

		active, err := repo.GetActiveByClientID(ctx, "client-004")
		if err != nil || active != nil {
			t.Errorf("Expected no active session after terminate, got %v, %v", active, err)
		}
		if err := repo.Create(ctx, entities.NewSession("client-004")); err != nil {
			t.Errorf("Client should be able to start again: %v", err)
		}
	})

	t.Run("ExpireSessions", func(t *testing.T) {
		session := entities.NewSession("client-005")
		session.ExpiresAt = time.Now().Add(-time.Minute)
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}

		n, err := repo.ExpireSessions(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("ExpireSessions() = %d, want 1", n)
		}

		got, _ := repo.GetByID(ctx, session.ID)
		if got.Status != entities.SessionStatusExpired {
			t.Errorf("Status = %s, want expired", got.Status)
		}
		if n, _ := repo.ExpireSessions(ctx); n != 0 {
			t.Errorf("Second ExpireSessions() = %d, want 0", n)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		session := entities.NewSession("client-006")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(ctx, session.ID); err != nil {
			t.Fatal(err)
		}
		if active, _ := repo.GetActiveByClientID(ctx, "client-006"); active != nil {
			t.Error("Deleted session should not be active")
		}
	})
}
