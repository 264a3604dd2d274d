package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/metrics"
	"github.com/satriahrh/panoguide/internal/tools"
	"github.com/satriahrh/panoguide/usecase"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024

	// Outbound queue length per client.
	sendBufferSize = 256

	connectTimeout = 30 * time.Second

	inputSampleRate  = 16000
	outputSampleRate = 24000
)

// ErrHubStopped is returned when a client arrives after the hub shut down.
var ErrHubStopped = errors.New("hub stopped")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// HubConfig holds the settings every client conversation is built from.
type HubConfig struct {
	Conversation  usecase.ConversationConfig
	Navigation    usecase.NavigationConfig
	ViewerTimeout time.Duration
}

// Hub maintains the set of connected browser clients, one per session.
type Hub struct {
	// Registered clients keyed by session id.
	clients map[string]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Closed once Run returns.
	done chan struct{}

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex

	sessionRepo repositories.SessionRepository
	registry    *tools.Registry
	geocoder    repositories.Geocoder
	metrics     *metrics.Metrics
	cfg         HubConfig

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(
	sessionRepo repositories.SessionRepository,
	registry *tools.Registry,
	geocoder repositories.Geocoder,
	m *metrics.Metrics,
	cfg HubConfig,
	logger *zap.Logger,
) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		sessionRepo: sessionRepo,
		registry:    registry,
		geocoder:    geocoder,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run starts the hub's main loop. When ctx is done every client is closed.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info("Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.sessionID]; ok {
				h.logger.Info("Replacing client for session", zap.String("sessionID", client.sessionID))
				old.close()
			}
			h.clients[client.sessionID] = client
			h.mu.Unlock()
			h.metrics.RecordClient(true)
			h.logger.Info("Client registered",
				zap.String("sessionID", client.sessionID),
				zap.String("clientID", client.clientID))

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client.sessionID] == client {
				delete(h.clients, client.sessionID)
			}
			h.mu.Unlock()
			h.metrics.RecordClient(false)
			h.logger.Info("Client unregistered", zap.String("sessionID", client.sessionID))
		}
	}
}

func (h *Hub) registerClient(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ClientState reports the live state of the client attached to sessionID.
func (h *Hub) ClientState(sessionID string) (usecase.ConversationState, bool) {
	h.mu.RLock()
	client, ok := h.clients[sessionID]
	h.mu.RUnlock()
	if !ok {
		return usecase.ConversationState{}, false
	}
	return client.conv.State(), true
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocketWithAuth upgrades an authenticated request and serves the
// client until it goes away.
func HandleWebSocketWithAuth(hub *Hub, c echo.Context, sessionID, clientID string) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := hub.newClient(conn, sessionID, clientID)
	if err := hub.registerClient(client); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.run()

	return nil
}

// WriteData is one outbound websocket frame.
type WriteData struct {
	// MessageType is the type of the websocket message.
	// Expect websocket.TextMessage or websocket.BinaryMessage
	Type    int
	Payload []byte
}

// Client is a middleman between the websocket connection and one
// conversation.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages. Never closed; writePump stops
	// when ctx is done.
	send chan WriteData

	sessionID string
	clientID  string

	logger    *zap.Logger
	validator *MessageValidator
	viewer    *RemoteViewer
	conv      *usecase.ConversationService

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (h *Hub) newClient(conn *websocket.Conn, sessionID, clientID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	logger := h.logger.With(zap.String("clientID", clientID))

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan WriteData, sendBufferSize),
		sessionID: sessionID,
		clientID:  clientID,
		logger:    logger.With(zap.String("sessionID", sessionID)),
		validator: NewMessageValidator(),
		ctx:       ctx,
		cancel:    cancel,
	}
	client.viewer = NewRemoteViewer(client.sendViewerCommand, h.cfg.ViewerTimeout, client.logger)
	navigation := usecase.NewNavigationService(client.viewer, h.geocoder, h.cfg.Navigation, client.logger)
	client.conv = usecase.NewConversationService(
		sessionID,
		h.cfg.Conversation,
		h.registry,
		navigation,
		client.viewer,
		h.sessionRepo,
		h.metrics,
		client,
		logger,
	)
	return client
}

// run serves the connection until the browser leaves or the hub closes it.
func (c *Client) run() {
	c.sendJSON(&HelloMessage{
		BaseMessage:      newBase(MessageTypeHello),
		SessionID:        c.sessionID,
		ClientID:         c.clientID,
		InputSampleRate:  inputSampleRate,
		OutputSampleRate: outputSampleRate,
	})

	g, ctx := errgroup.WithContext(c.ctx)
	g.Go(func() error { return c.writePump(ctx) })
	g.Go(func() error { return c.readPump(ctx) })
	g.Go(func() error { return c.conv.Run(ctx) })

	err := g.Wait()
	c.close()
	c.conn.Close()
	c.hub.unregisterClient(c)
	c.logger.Info("Client disconnected", zap.Error(err))
}

// close stops the client. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

// readPump pumps messages from the websocket connection to the conversation.
// It always returns a non-nil error.
func (c *Client) readPump(ctx context.Context) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			return fmt.Errorf("read: %w", err)
		}

		switch messageType {
		case websocket.TextMessage:
			c.processMessage(ctx, message)
		case websocket.BinaryMessage:
			c.processBinaryAudioChunk(message)
		default:
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
		}
	}
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(message.Type, message.Payload); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return fmt.Errorf("write: %w", err)
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// enqueue queues a frame without blocking. Frames are dropped once the
// client is closed or its queue is full.
func (c *Client) enqueue(data WriteData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.logger.Warn("Dropping outbound message, client too slow", zap.Int("type", data.Type))
		return false
	}
}

func (c *Client) sendJSON(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return false
	}
	return c.enqueue(WriteData{Type: websocket.TextMessage, Payload: payload})
}

func (c *Client) sendError(code, message string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	c.sendJSON(CreateErrorMessage(code, message, details))
}

func (c *Client) sendViewerCommand(msg *ViewerCommandMessage) error {
	if !c.sendJSON(msg) {
		return fmt.Errorf("viewer %s: client unavailable", msg.Command)
	}
	return nil
}

// processMessage handles one JSON control message from the browser
func (c *Client) processMessage(ctx context.Context, message []byte) {
	parsed, err := c.validator.ValidateMessage(message)
	if err != nil {
		c.logger.Warn("Rejected client message", zap.Error(err))
		c.sendError("invalid_message", "Message could not be processed", err)
		return
	}

	switch msg := parsed.(type) {
	case *ControlMessage:
		c.handleControl(ctx, msg)

	case *TextMessage:
		if err := c.conv.SendText(ctx, msg.Text); err != nil {
			c.logger.Warn("Failed to send text", zap.Error(err))
			c.sendError("send_failed", "Message was not delivered to the guide", err)
		}

	case *ViewportMessage:
		c.viewer.UpdateViewport(msg.Viewport, msg.Links)

	case *ViewerResultMessage:
		c.viewer.Resolve(msg)

	case *PingMessage:
		c.sendJSON(CreatePongMessage(msg.Data))
	}
}

func (c *Client) handleControl(ctx context.Context, msg *ControlMessage) {
	switch msg.Type {
	case MessageTypeConnect:
		go func() {
			connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
			defer cancel()
			if err := c.conv.Connect(connectCtx); err != nil {
				c.logger.Error("Failed to connect live session", zap.Error(err))
				c.sendError("connect_failed", "Could not reach the guide", err)
			}
		}()

	case MessageTypeDisconnect:
		c.conv.Disconnect()

	case MessageTypeInterrupt:
		if err := c.conv.Interrupt(); err != nil {
			c.sendError("interrupt_failed", "Could not interrupt the guide", err)
		}

	case MessageTypeMicStart:
		if err := c.conv.StartMic(); err != nil {
			c.sendError("mic_unavailable", "Connect before starting the microphone", err)
		}

	case MessageTypeMicStop:
		c.conv.StopMic()
	}
}

// processBinaryAudioChunk forwards one microphone frame
func (c *Client) processBinaryAudioChunk(data []byte) {
	if len(data) == 0 {
		return
	}
	c.conv.SendAudio(data)
}

// AgentAudio queues agent speech as a binary frame.
func (c *Client) AgentAudio(pcm []byte) {
	c.enqueue(WriteData{Type: websocket.BinaryMessage, Payload: pcm})
}

func (c *Client) AgentText(text string) {
	c.sendJSON(&AgentTextMessage{BaseMessage: newBase(MessageTypeAgentText), Text: text})
}

func (c *Client) Transcript(text string, isUser bool) {
	c.sendJSON(&TranscriptMessage{BaseMessage: newBase(MessageTypeTranscript), Text: text, IsUser: isUser})
}

func (c *Client) TurnComplete() {
	base := newBase(MessageTypeTurnComplete)
	c.sendJSON(&base)
}

func (c *Client) ConnectionChanged(connected bool) {
	c.sendJSON(&ConnectionMessage{BaseMessage: newBase(MessageTypeConnection), Connected: connected})
}

func (c *Client) MicChanged(active bool) {
	c.sendJSON(&MicMessage{BaseMessage: newBase(MessageTypeMic), Active: active})
}

func (c *Client) Error(err error) {
	c.sendError("live_error", "The guide connection failed", err)
}
