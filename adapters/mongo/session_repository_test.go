package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
)

// TestSessionRepository_Integration requires a running MongoDB instance and
// is skipped when MONGO_URI is not set.
func TestSessionRepository_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("Skipping MongoDB integration test - MONGO_URI not set")
	}

	ctx := context.Background()
	logger := zap.NewNop()

	cfg := Config{URI: uri, Database: "panoguide_test_" + uuid.NewString()[:8], Retention: time.Hour}
	client, err := NewClient(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		client.Database.Drop(ctx)
		client.Close(ctx)
	}()

	repo := NewSessionRepository(client.Database, cfg.Retention, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	t.Run("CreateAndGet", func(t *testing.T) {
		session := entities.NewSession("client-create")
		session.Metadata.StartedAt = &entities.LatLng{Lat: 51.5, Lng: -0.12}
		if err := repo.Create(ctx, session); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.ClientID != "client-create" || got.Status != entities.SessionStatusActive {
			t.Errorf("got = %+v", got)
		}
		if got.Metadata.StartedAt == nil || got.Metadata.StartedAt.Lat != 51.5 {
			t.Errorf("StartedAt = %+v", got.Metadata.StartedAt)
		}

		if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("OneActiveSessionPerClient", func(t *testing.T) {
		first := entities.NewSession("client-one")
		if err := repo.Create(ctx, first); err != nil {
			t.Fatal(err)
		}
		if err := repo.Create(ctx, entities.NewSession("client-one")); err == nil {
			t.Error("Create() expected error for a second active session")
		}

		active, err := repo.GetActiveByClientID(ctx, "client-one")
		if err != nil || active == nil || active.ID != first.ID {
			t.Fatalf("GetActiveByClientID() = %v, %v", active, err)
		}

		first.Terminate()
		if err := repo.Update(ctx, first); err != nil {
			t.Fatal(err)
		}
		active, err = repo.GetActiveByClientID(ctx, "client-one")
		if err != nil || active != nil {
			t.Errorf("GetActiveByClientID() after terminate = %v, %v", active, err)
		}
	})

	t.Run("TranscriptAndToolCalls", func(t *testing.T) {
		session := entities.NewSession("client-transcript")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}

		if err := repo.AddMessage(ctx, session.ID, entities.MessageRoleUser, "take me to Rome"); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordToolCall(ctx, session.ID, "jump_to_location", true); err != nil {
			t.Fatal(err)
		}
		if err := repo.RecordToolCall(ctx, session.ID, "step_forward", false); err != nil {
			t.Fatal(err)
		}

		got, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Messages) != 1 || got.Messages[0].Content != "take me to Rome" || got.LastMessageAt == nil {
			t.Errorf("Messages = %+v", got.Messages)
		}
		if got.ToolCalls["jump_to_location"] != 1 || got.ToolCalls["step_forward"] != 1 || got.ToolFailures != 1 {
			t.Errorf("ToolCalls = %v, ToolFailures = %d", got.ToolCalls, got.ToolFailures)
		}

		if err := repo.AddMessage(ctx, "missing", entities.MessageRoleAgent, "hi"); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("AddMessage(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ExpireSessions", func(t *testing.T) {
		session := entities.NewSession("client-expire")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}
		session.ExpiresAt = time.Now().Add(-time.Minute)
		if err := repo.Update(ctx, session); err != nil {
			t.Fatal(err)
		}

		n, err := repo.ExpireSessions(ctx)
		if err != nil {
			t.Fatalf("ExpireSessions() error = %v", err)
		}
		if n < 1 {
			t.Errorf("ExpireSessions() = %d, want at least 1", n)
		}

		got, err := repo.GetByID(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != entities.SessionStatusExpired {
			t.Errorf("Status = %s, want expired", got.Status)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		session := entities.NewSession("client-delete")
		if err := repo.Create(ctx, session); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(ctx, session.ID); err != nil {
			t.Fatal(err)
		}
		if err := repo.Delete(ctx, session.ID); !errors.Is(err, repositories.ErrNotFound) {
			t.Errorf("second Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestConfigEnabled(t *testing.T) {
	if (Config{}).Enabled() {
		t.Error("empty config should be disabled")
	}
	if !(Config{URI: "mongodb://localhost:27017"}).Enabled() {
		t.Error("config with a URI should be enabled")
	}
}
