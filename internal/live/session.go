package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/internal/tools"
)

// Observer receives session events. Callbacks from the read loop arrive in
// frame order on a single goroutine and must not block for long.
type Observer interface {
	OnAudio(pcm []byte)
	// OnText carries the cumulative agent text of the current turn.
	OnText(text string)
	// OnTranscript carries the cumulative transcript of the user's speech.
	// Each fragment is final so far; agent speech arrives through OnText.
	OnTranscript(text string, isFinal bool)
	OnTurnComplete()
	OnConnectionChange(connected bool)
	OnError(err error)
}

// ToolHandler executes validated tool calls requested by the agent.
type ToolHandler interface {
	HandleToolCall(ctx context.Context, name string, args map[string]any) (any, error)
}

// State is a point-in-time view of the session flags.
type State struct {
	Connected  bool
	Processing bool
	Speaking   bool
}

type phase int

const (
	phaseNew phase = iota
	phaseConnecting
	phaseConnected
	phaseClosed
)

// Session is one Gemini Live conversation. It is single-use: once
// disconnected or failed, create a new Session to reconnect.
type Session struct {
	id       string
	cfg      Config
	registry *tools.Registry
	handler  ToolHandler
	observer Observer
	logger   *zap.Logger

	mu         sync.Mutex
	phase      phase
	conn       Conn
	processing bool
	speaking   bool
	acc        turnAccumulator
	pending    map[string]string
	ready      *readiness
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewSession validates the configuration and prepares an unconnected session.
func NewSession(cfg Config, registry *tools.Registry, handler ToolHandler, observer Observer, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.validate(logger); err != nil {
		return nil, err
	}
	if registry == nil {
		return nil, &ConfigurationError{Field: "tool registry", Reason: "is required"}
	}
	if handler == nil {
		return nil, &ConfigurationError{Field: "tool handler", Reason: "is required"}
	}
	if observer == nil {
		return nil, &ConfigurationError{Field: "observer", Reason: "is required"}
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		cfg:      cfg,
		registry: registry,
		handler:  handler,
		observer: observer,
		logger:   logger.With(zap.String("liveSessionID", id)),
		pending:  make(map[string]string),
	}, nil
}

// ID returns the local identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current connection, processing and speaking flags.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Connected:  s.phase == phaseConnected,
		Processing: s.processing,
		Speaking:   s.speaking,
	}
}

// IsConnected reports whether setup completed and the session is still open.
func (s *Session) IsConnected() bool {
	return s.State().Connected
}

// Connect dials the service, sends setup and waits until setupComplete
// arrives, the open timeout fires or ctx is cancelled.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != phaseNew {
		s.mu.Unlock()
		return &ConnectionError{Err: ErrSessionClosed}
	}
	s.phase = phaseConnecting
	s.ready = newReadiness(s.cfg.OpenTimeout)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ready := s.ready
	s.mu.Unlock()

	s.logger.Info("Connecting live session", zap.String("model", s.cfg.Model))

	header := http.Header{}
	header.Set("x-goog-api-key", s.cfg.APIKey)
	conn, err := s.cfg.Transport.Dial(ctx, s.cfg.URL, header)
	if err != nil {
		return s.failConnect(err)
	}

	s.mu.Lock()
	if s.phase != phaseConnecting {
		s.mu.Unlock()
		conn.Close()
		return s.failConnect(ErrSessionClosed)
	}
	s.conn = conn
	s.mu.Unlock()

	if err := conn.WriteJSON(s.setupFrame()); err != nil {
		return s.failConnect(fmt.Errorf("send setup: %w", err))
	}

	go s.readLoop(conn)

	select {
	case <-ready.done:
	case <-ctx.Done():
		ready.settle(ctx.Err())
	}
	if err := ready.wait(); err != nil {
		return s.failConnect(err)
	}

	s.logger.Info("Live session connected")
	return nil
}

func (s *Session) failConnect(reason error) error {
	s.teardown()
	s.logger.Warn("Live session failed to connect", zap.Error(reason))
	s.observer.OnConnectionChange(false)
	return &ConnectionError{Err: reason}
}

// Disconnect tears the session down. Calling it more than once is harmless.
// In-flight tool calls are abandoned and never answered.
func (s *Session) Disconnect() {
	if s.teardown() {
		s.logger.Info("Live session disconnected")
		s.observer.OnConnectionChange(false)
	}
}

// teardown moves the session to its terminal phase and reports whether it
// was connected beforehand.
func (s *Session) teardown() bool {
	s.mu.Lock()
	if s.phase == phaseClosed {
		s.mu.Unlock()
		return false
	}
	wasConnected := s.phase == phaseConnected
	s.phase = phaseClosed
	conn := s.conn
	s.conn = nil
	s.processing = false
	s.speaking = false
	s.acc.reset()
	clear(s.pending)
	cancel := s.cancel
	ready := s.ready
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ready != nil {
		ready.settle(ErrSessionClosed)
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Error closing live transport", zap.Error(err))
		}
	}
	return wasConnected
}

// fault handles an unexpected transport failure on an open session.
func (s *Session) fault(err error) {
	if s.teardown() {
		s.logger.Error("Live session lost", zap.Error(err))
		s.observer.OnError(fmt.Errorf("live session closed: %w", err))
		s.observer.OnConnectionChange(false)
	}
}

// activeConn returns the open connection or nil.
func (s *Session) activeConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != phaseConnected {
		return nil
	}
	return s.conn
}

// SendAudio streams one 16 kHz PCM16 microphone frame. It returns false
// without error when the session is not connected or the transport is
// closing underneath the send.
func (s *Session) SendAudio(frame []byte) (bool, error) {
	conn := s.activeConn()
	if conn == nil {
		return false, nil
	}

	err := conn.WriteJSON(realtimeInputFrame{
		RealtimeInput: realtimeInput{
			Audio: &blob{
				Data:     base64.StdEncoding.EncodeToString(frame),
				MimeType: inputAudioMIME,
			},
		},
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrTransportClosed) {
		s.logger.Debug("Dropping audio frame, transport closed", zap.Error(err))
		if s.teardown() {
			s.observer.OnConnectionChange(false)
		}
		return false, nil
	}
	s.fault(err)
	return false, err
}

// SendText sends a complete user text turn.
func (s *Session) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.phase != phaseConnected {
		s.mu.Unlock()
		return &NotConnectedError{Op: "send text"}
	}
	conn := s.conn
	s.processing = true
	s.mu.Unlock()

	err := s.writeTurn(conn, text, true)
	if err != nil {
		s.mu.Lock()
		s.processing = false
		s.mu.Unlock()
	}
	return err
}

// SendContextUpdate tells the agent where the viewer is without asking for
// a reply. It is a no-op when not connected.
func (s *Session) SendContextUpdate(vp entities.Viewport) error {
	conn := s.activeConn()
	if conn == nil {
		return nil
	}
	return s.writeTurn(conn, FormatViewportContext(vp), false)
}

// Interrupt asks the agent to stop speaking and drops the current turn text.
func (s *Session) Interrupt() error {
	conn := s.activeConn()
	if conn == nil {
		return nil
	}

	err := conn.WriteJSON(realtimeInputFrame{})
	s.mu.Lock()
	if s.phase == phaseConnected {
		s.speaking = false
		s.acc.reset()
	}
	s.mu.Unlock()
	if errors.Is(err, ErrTransportClosed) {
		s.fault(err)
	}
	return err
}

func (s *Session) writeTurn(conn Conn, text string, turnComplete bool) error {
	err := conn.WriteJSON(clientContentFrame{
		ClientContent: clientContent{
			Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
			TurnComplete: turnComplete,
		},
	})
	if errors.Is(err, ErrTransportClosed) {
		s.fault(err)
	}
	return err
}

func (s *Session) setupFrame() setupFrame {
	payload := setupPayload{
		Model: s.cfg.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if s.cfg.Voice != "" {
		sc := &speechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = s.cfg.Voice
		payload.GenerationConfig.SpeechConfig = sc
	}
	if s.cfg.SystemInstruction != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: s.cfg.SystemInstruction}}}
	}
	if s.cfg.EnableSearch {
		payload.Tools = append(payload.Tools, toolSpec{GoogleSearch: &struct{}{}})
	}
	payload.Tools = append(payload.Tools, toolSpec{FunctionDeclarations: s.registry.FunctionDeclarations()})
	return setupFrame{Setup: payload}
}

func (s *Session) readLoop(conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			ph := s.phase
			ready := s.ready
			s.mu.Unlock()

			switch ph {
			case phaseConnecting:
				ready.settle(fmt.Errorf("closed before setup completed: %w", err))
			case phaseConnected:
				s.fault(err)
			}
			return
		}
		s.handleMessage(data)
	}
}

func (s *Session) handleMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("Failed to parse live message", zap.Error(err))
		return
	}

	if msg.SetupComplete != nil {
		s.handleSetupComplete()
	}
	if msg.ServerContent != nil {
		s.handleServerContent(msg.ServerContent)
	}
	if msg.ToolCall != nil {
		s.dispatch(msg.ToolCall.FunctionCalls)
	}
	if msg.UsageMetadata != nil {
		s.logger.Debug("Live usage",
			zap.Int("promptTokens", msg.UsageMetadata.PromptTokenCount),
			zap.Int("responseTokens", msg.UsageMetadata.ResponseTokenCount),
			zap.Int("totalTokens", msg.UsageMetadata.TotalTokenCount))
	}
}

func (s *Session) handleSetupComplete() {
	s.mu.Lock()
	if s.phase != phaseConnecting || !s.ready.settle(nil) {
		s.mu.Unlock()
		s.logger.Debug("Ignoring late setupComplete")
		return
	}
	s.phase = phaseConnected
	s.mu.Unlock()

	s.observer.OnConnectionChange(true)
}

func (s *Session) handleServerContent(sc *serverContent) {
	if sc.ModelTurn != nil {
		var inline []functionCall
		for _, p := range sc.ModelTurn.Parts {
			switch {
			case p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/"):
				s.handleAudio(p.InlineData.Data)
			case p.FunctionCall != nil:
				fc := *p.FunctionCall
				fc.ID = ""
				inline = append(inline, fc)
			case p.Text != "":
				s.emitText(func(a *turnAccumulator) string { return a.addAgentText(p.Text) })
			}
		}
		if len(inline) > 0 {
			s.dispatch(inline)
		}
	}

	if sc.Interrupted {
		s.mu.Lock()
		s.speaking = false
		s.mu.Unlock()
		s.logger.Debug("Agent output interrupted")
	}

	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		s.mu.Lock()
		if s.phase != phaseConnected {
			s.mu.Unlock()
			return
		}
		text := s.acc.addUser(sc.InputTranscription.Text)
		s.mu.Unlock()
		s.observer.OnTranscript(text, true)
	}

	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		s.emitText(func(a *turnAccumulator) string { return a.addAgent(sc.OutputTranscription.Text) })
	}

	if sc.TurnComplete {
		s.mu.Lock()
		if s.phase != phaseConnected {
			s.mu.Unlock()
			return
		}
		s.processing = false
		s.speaking = false
		s.acc.reset()
		s.mu.Unlock()
		s.observer.OnTurnComplete()
	}
}

func (s *Session) handleAudio(encoded string) {
	pcm, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.logger.Warn("Failed to decode agent audio", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.phase != phaseConnected {
		s.mu.Unlock()
		return
	}
	s.speaking = true
	s.mu.Unlock()

	s.observer.OnAudio(pcm)
}

func (s *Session) emitText(update func(*turnAccumulator) string) {
	s.mu.Lock()
	if s.phase != phaseConnected {
		s.mu.Unlock()
		return
	}
	text := update(&s.acc)
	s.mu.Unlock()

	s.observer.OnText(text)
}
