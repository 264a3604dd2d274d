package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/auth"
	"github.com/satriahrh/panoguide/internal/metrics"
	"github.com/satriahrh/panoguide/internal/websocket"
)

const maxClientIDLength = 128

// InitRoutes initializes all API routes
func InitRoutes(
	e *echo.Echo,
	hub *websocket.Hub,
	sessionRepo repositories.SessionRepository,
	tokens *auth.TokenManager,
	m *metrics.Metrics,
	logger *zap.Logger,
) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"status":  "ok",
			"service": "panoguide",
			"clients": hub.ClientCount(),
		})
	})

	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/sessions", func(c echo.Context) error {
		return createSession(c, sessionRepo, tokens, logger)
	})
	v1.GET("/sessions/:id", func(c echo.Context) error {
		return getSession(c, hub, sessionRepo, tokens, logger)
	})
	v1.DELETE("/sessions/:id", func(c echo.Context) error {
		return endSession(c, sessionRepo, tokens, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, sessionRepo, tokens, logger)
	})
}

// createSession starts a session for a browser client, or resumes the
// client's active one, and issues a token for the websocket.
func createSession(c echo.Context, sessionRepo repositories.SessionRepository, tokens *auth.TokenManager, logger *zap.Logger) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		logger.Warn("Failed to bind create session request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	req.ClientID = strings.TrimSpace(req.ClientID)
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}
	if len(req.ClientID) > maxClientIDLength {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_client_id",
			Message: "Client ID is too long",
		})
	}
	if req.StartedAt != nil {
		if err := req.StartedAt.Validate(); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_position",
				Message: err.Error(),
			})
		}
	}

	ctx := c.Request().Context()
	session, err := sessionRepo.GetActiveByClientID(ctx, req.ClientID)
	if err != nil {
		logger.Error("Failed to look up active session",
			zap.String("client_id", req.ClientID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to look up session",
		})
	}

	resumed := session != nil
	if !resumed {
		session = entities.NewSession(req.ClientID)
		if req.Language != "" {
			session.Metadata.Language = req.Language
		}
		session.Metadata.StartedAt = req.StartedAt
		session.Metadata.UserAgent = c.Request().UserAgent()

		if err := sessionRepo.Create(ctx, session); err != nil {
			logger.Error("Failed to create session",
				zap.String("client_id", req.ClientID),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "internal_error",
				Message: "Failed to create session",
			})
		}
	}

	token, expiresAt, err := tokens.GenerateSessionToken(session.ID, session.ClientID)
	if err != nil {
		logger.Error("Failed to generate session token",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Session issued",
		zap.String("session_id", session.ID),
		zap.String("client_id", session.ClientID),
		zap.Bool("resumed", resumed))

	status := http.StatusCreated
	if resumed {
		status = http.StatusOK
	}
	return c.JSON(status, CreateSessionResponse{
		SessionID:    session.ID,
		ClientID:     session.ClientID,
		Token:        token,
		ExpiresAt:    expiresAt,
		WebSocketURL: websocketURL(c),
		Resumed:      resumed,
	})
}

func websocketURL(c echo.Context) string {
	scheme := "ws"
	if c.Scheme() == "https" {
		scheme = "wss"
	}
	return scheme + "://" + c.Request().Host + "/ws"
}

// getSession returns the session record and, while a client is attached,
// its live state. The token must belong to the session.
func getSession(c echo.Context, hub *websocket.Hub, sessionRepo repositories.SessionRepository, tokens *auth.TokenManager, logger *zap.Logger) error {
	id := c.Param("id")
	if _, ok, err := authorizeSession(c, id, tokens, logger); !ok {
		return err
	}

	session, err := sessionRepo.GetByID(c.Request().Context(), id)
	if errors.Is(err, repositories.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "Session not found",
		})
	}
	if err != nil {
		logger.Error("Failed to get session", zap.String("session_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to get session",
		})
	}

	resp := SessionResponse{Session: session}
	if state, ok := hub.ClientState(id); ok {
		resp.Live = &state
	}
	return c.JSON(http.StatusOK, resp)
}

// endSession terminates a session so the client can start a fresh one.
func endSession(c echo.Context, sessionRepo repositories.SessionRepository, tokens *auth.TokenManager, logger *zap.Logger) error {
	id := c.Param("id")
	if _, ok, err := authorizeSession(c, id, tokens, logger); !ok {
		return err
	}

	ctx := c.Request().Context()
	session, err := sessionRepo.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "session_not_found",
			Message: "Session not found",
		})
	}
	if err == nil {
		session.Terminate()
		err = sessionRepo.Update(ctx, session)
	}
	if err != nil {
		logger.Error("Failed to end session", zap.String("session_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to end session",
		})
	}

	logger.Info("Session ended", zap.String("session_id", id))
	return c.NoContent(http.StatusNoContent)
}

// bearerToken extracts the token from the Authorization header, falling back
// to the token query parameter browsers use for websockets.
func bearerToken(c echo.Context) string {
	authHeader := c.Request().Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return c.QueryParam("token")
}

// authorizeSession validates the request token against sessionID. When it
// reports false the error response has already been written.
func authorizeSession(c echo.Context, sessionID string, tokens *auth.TokenManager, logger *zap.Logger) (*auth.JWTClaims, bool, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, false, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := tokens.ValidateToken(token)
	if err != nil {
		logger.Warn("Rejected invalid token", zap.Error(err))
		return nil, false, c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if sessionID != "" && claims.SessionID != sessionID {
		logger.Warn("Token used for another session",
			zap.String("token_session_id", claims.SessionID),
			zap.String("session_id", sessionID))
		return nil, false, c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "forbidden",
			Message: "Token does not grant access to this session",
		})
	}
	return claims, true, nil
}

// websocketWithAuth handles WebSocket connections with JWT authentication
func websocketWithAuth(hub *websocket.Hub, c echo.Context, sessionRepo repositories.SessionRepository, tokens *auth.TokenManager, logger *zap.Logger) error {
	claims, ok, err := authorizeSession(c, "", tokens, logger)
	if !ok {
		return err
	}

	session, err := sessionRepo.GetByID(c.Request().Context(), claims.SessionID)
	if err != nil || session.IsExpired() {
		logger.Warn("WebSocket connection rejected: session not active",
			zap.String("session_id", claims.SessionID),
			zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "session_inactive",
			Message: "Session has ended, start a new one",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("session_id", claims.SessionID),
		zap.String("client_id", claims.ClientID))

	return websocket.HandleWebSocketWithAuth(hub, c, claims.SessionID, claims.ClientID)
}
