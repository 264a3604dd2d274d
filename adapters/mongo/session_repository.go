package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
)

const sessionsCollection = "sessions"

// SessionRepository implements repositories.SessionRepository on a MongoDB
// collection. Documents are keyed by the session id.
type SessionRepository struct {
	collection *mongo.Collection
	retention  time.Duration
	logger     *zap.Logger
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// NewSessionRepository creates a new MongoDB session repository
func NewSessionRepository(db *mongo.Database, retention time.Duration, logger *zap.Logger) *SessionRepository {
	r := &SessionRepository{
		collection: db.Collection(sessionsCollection),
		retention:  retention,
		logger:     logger,
	}

	// Create indexes in the background
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.EnsureIndexes(ctx); err != nil {
			logger.Error("Failed to create session indexes", zap.Error(err))
		}
	}()

	return r
}

// EnsureIndexes creates the lookup indexes and the TTL index that removes
// sessions retention after they expire.
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
	}
	if r.retention > 0 {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(r.retention / time.Second)),
		})
	}

	if _, err := r.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	r.logger.Debug("Session indexes created")
	return nil
}

// Create stores a new session. A client can only have one active session.
func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	existing, err := r.GetActiveByClientID(ctx, session.ClientID)
	if err != nil {
		return err
	}
	if existing != nil {
		return errors.New("client already has an active session")
	}

	doc := session.Clone()
	if doc.ToolCalls == nil {
		doc.ToolCalls = make(map[string]int)
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("session %s already exists", session.ID)
		}
		r.logger.Error("Failed to create session", zap.Error(err), zap.String("client_id", session.ClientID))
		return fmt.Errorf("failed to create session: %w", err)
	}

	r.logger.Info("Session created",
		zap.String("session_id", session.ID),
		zap.String("client_id", session.ClientID))
	return nil
}

// GetByID retrieves a session by its ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	if id == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var session entities.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repositories.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get session by ID", zap.Error(err), zap.String("session_id", id))
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return &session, nil
}

// GetActiveByClientID returns the client's active session, or nil when there
// is none.
func (r *SessionRepository) GetActiveByClientID(ctx context.Context, clientID string) (*entities.Session, error) {
	filter := bson.M{
		"client_id":  clientID,
		"status":     entities.SessionStatusActive,
		"expires_at": bson.M{"$gt": time.Now()},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "last_active_at", Value: -1}})

	var session entities.Session
	err := r.collection.FindOne(ctx, filter, opts).Decode(&session)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active session", zap.Error(err), zap.String("client_id", clientID))
		return nil, fmt.Errorf("failed to get active session for client %s: %w", clientID, err)
	}
	return &session, nil
}

// Update replaces a stored session, keeping its creation time.
func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	if session == nil {
		return errors.New("session cannot be nil")
	}
	if err := session.Validate(); err != nil {
		return err
	}

	update := bson.M{
		"$set": bson.M{
			"last_active_at":  session.LastActiveAt,
			"last_message_at": session.LastMessageAt,
			"expires_at":      session.ExpiresAt,
			"status":          session.Status,
			"messages":        session.Messages,
			"tool_calls":      session.ToolCalls,
			"tool_failures":   session.ToolFailures,
			"metadata":        session.Metadata,
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, update)
	if err != nil {
		r.logger.Error("Failed to update session", zap.Error(err), zap.String("session_id", session.ID))
		return fmt.Errorf("failed to update session: %w", err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}

	r.logger.Debug("Session updated", zap.String("session_id", session.ID))
	return nil
}

// Delete removes a session
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		r.logger.Error("Failed to delete session", zap.Error(err), zap.String("session_id", id))
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if result.DeletedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// ExpireSessions marks active sessions past their expiry as expired
func (r *SessionRepository) ExpireSessions(ctx context.Context) (int, error) {
	filter := bson.M{
		"status":     entities.SessionStatusActive,
		"expires_at": bson.M{"$lt": time.Now()},
	}
	update := bson.M{"$set": bson.M{"status": entities.SessionStatusExpired}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to expire sessions", zap.Error(err))
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}

	if result.ModifiedCount > 0 {
		r.logger.Info("Expired sessions", zap.Int64("count", result.ModifiedCount))
	}
	return int(result.ModifiedCount), nil
}

// AddMessage appends a transcript line to a session
func (r *SessionRepository) AddMessage(ctx context.Context, sessionID string, role entities.MessageRole, content string) error {
	now := time.Now()
	message := entities.SessionMessage{Timestamp: now, Role: role, Content: content}

	return r.touch(ctx, sessionID, now, bson.M{
		"$push": bson.M{"messages": message},
		"$set":  bson.M{"last_message_at": now},
	})
}

// RecordToolCall counts a tool invocation on a session
func (r *SessionRepository) RecordToolCall(ctx context.Context, sessionID, tool string, success bool) error {
	inc := bson.M{"tool_calls." + tool: 1}
	if !success {
		inc["tool_failures"] = 1
	}
	return r.touch(ctx, sessionID, time.Now(), bson.M{"$inc": inc})
}

// touch applies update and extends the session's idle expiry.
func (r *SessionRepository) touch(ctx context.Context, sessionID string, now time.Time, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["last_active_at"] = now
	set["expires_at"] = now.Add(entities.IdleTimeout)

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": sessionID}, update)
	if err != nil {
		r.logger.Error("Failed to update session activity", zap.Error(err), zap.String("session_id", sessionID))
		return fmt.Errorf("failed to update session %s: %w", sessionID, err)
	}
	if result.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
