package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/domain/entities"
	"github.com/satriahrh/panoguide/domain/repositories"
	"github.com/satriahrh/panoguide/internal/live"
	"github.com/satriahrh/panoguide/internal/metrics"
	"github.com/satriahrh/panoguide/internal/tools"
)

const (
	defaultContextInterval = 5 * time.Second
	viewerTimeout          = 2 * time.Second
	recordTimeout          = 5 * time.Second
)

// UISink receives everything the browser renders or plays. Calls arrive from
// the live read loop and must not block.
type UISink interface {
	AgentAudio(pcm []byte)
	AgentText(text string)
	Transcript(text string, isUser bool)
	TurnComplete()
	ConnectionChanged(connected bool)
	MicChanged(active bool)
	Error(err error)
}

// ConversationConfig holds the per-client orchestration settings.
type ConversationConfig struct {
	// Live is the template every new live session is created from.
	Live live.Config
	// ContextInterval is how often the viewport is pushed to the agent.
	ContextInterval time.Duration
}

// ConversationState combines the live session flags with the microphone.
type ConversationState struct {
	Connected  bool `json:"connected"`
	Processing bool `json:"processing"`
	Speaking   bool `json:"speaking"`
	MicActive  bool `json:"micActive"`
}

// ConversationService orchestrates one browser client: it owns the live
// session, gates the microphone, keeps the agent informed of the viewport
// and records the conversation.
type ConversationService struct {
	recordID   string
	cfg        ConversationConfig
	registry   *tools.Registry
	navigation *NavigationService
	viewer     repositories.Viewer
	sessions   repositories.SessionRepository
	metrics    *metrics.Metrics
	sink       UISink
	logger     *zap.Logger

	mu          sync.Mutex
	live        *live.Session
	gen         uint64
	mic         bool
	userTurn    string
	agentTurn   string
	lastContext *entities.Viewport
	lastRecord  chan struct{}
}

// NewConversationService creates a new conversation service
func NewConversationService(
	recordID string,
	cfg ConversationConfig,
	registry *tools.Registry,
	navigation *NavigationService,
	viewer repositories.Viewer,
	sessions repositories.SessionRepository,
	m *metrics.Metrics,
	sink UISink,
	logger *zap.Logger,
) *ConversationService {
	if cfg.ContextInterval <= 0 {
		cfg.ContextInterval = defaultContextInterval
	}
	if cfg.Live.SystemInstruction == "" {
		cfg.Live.SystemInstruction = DefaultSystemInstruction
	}
	return &ConversationService{
		recordID:   recordID,
		cfg:        cfg,
		registry:   registry,
		navigation: navigation,
		viewer:     viewer,
		sessions:   sessions,
		metrics:    m,
		sink:       sink,
		logger:     logger.With(zap.String("sessionID", recordID)),
	}
}

// Connect opens a fresh live session, replacing any previous one. It is a
// no-op while a session is already connected.
func (s *ConversationService) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.live != nil && s.live.IsConnected() {
		s.mu.Unlock()
		return nil
	}
	previous := s.live
	s.gen++
	observer := &liveObserver{conv: s, gen: s.gen}
	session, err := live.NewSession(s.cfg.Live, s.registry, s, observer, s.logger)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.live = session
	s.userTurn, s.agentTurn = "", ""
	s.lastContext = nil
	s.mu.Unlock()

	if previous != nil {
		previous.Disconnect()
	}

	if err := session.Connect(ctx); err != nil {
		s.metrics.RecordLiveSessionStart(err)
		return err
	}
	return nil
}

// Disconnect closes the live session. Pending tool calls are abandoned.
func (s *ConversationService) Disconnect() {
	s.mu.Lock()
	session := s.live
	s.mu.Unlock()

	if session != nil {
		session.Disconnect()
	}
}

func (s *ConversationService) current() *live.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// State reports the live session flags and whether the microphone is on.
func (s *ConversationService) State() ConversationState {
	session := s.current()

	var st live.State
	if session != nil {
		st = session.State()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return ConversationState{
		Connected:  st.Connected,
		Processing: st.Processing,
		Speaking:   st.Speaking,
		MicActive:  s.mic && st.Connected,
	}
}

// StartMic starts forwarding microphone frames to the agent.
func (s *ConversationService) StartMic() error {
	session := s.current()
	if session == nil || !session.IsConnected() {
		return &live.NotConnectedError{Op: "start microphone"}
	}

	s.mu.Lock()
	changed := !s.mic
	s.mic = true
	s.mu.Unlock()

	if changed {
		s.logger.Info("Microphone started")
		s.sink.MicChanged(true)
	}
	return nil
}

// StopMic stops forwarding microphone frames.
func (s *ConversationService) StopMic() {
	s.mu.Lock()
	changed := s.mic
	s.mic = false
	s.mu.Unlock()

	if changed {
		s.logger.Info("Microphone stopped")
		s.sink.MicChanged(false)
	}
}

// SendAudio forwards one PCM frame and reports whether it was sent. Frames
// are dropped while the microphone is off or the session is down.
func (s *ConversationService) SendAudio(pcm []byte) bool {
	s.mu.Lock()
	session, mic := s.live, s.mic
	s.mu.Unlock()

	if session == nil || !mic {
		s.metrics.RecordDroppedFrame()
		return false
	}

	sent, err := session.SendAudio(pcm)
	if err != nil {
		s.logger.Warn("Failed to stream microphone audio", zap.Error(err))
	}
	if !sent {
		s.metrics.RecordDroppedFrame()
		return false
	}
	s.metrics.RecordAudio("in", len(pcm))
	return true
}

// SendText sends a typed user message as a complete turn.
func (s *ConversationService) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("text must not be empty")
	}

	session := s.current()
	if session == nil {
		return &live.NotConnectedError{Op: "send text"}
	}
	if err := session.SendText(ctx, text); err != nil {
		return err
	}

	s.mu.Lock()
	if s.live == session {
		s.userTurn = text
	}
	s.mu.Unlock()
	return nil
}

// Interrupt stops the agent mid-answer.
func (s *ConversationService) Interrupt() error {
	session := s.current()
	if session == nil || !session.IsConnected() {
		return &live.NotConnectedError{Op: "interrupt"}
	}
	return session.Interrupt()
}

// Run pushes viewport updates to the agent until ctx is done, then
// disconnects.
func (s *ConversationService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.ContextInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Disconnect()
			return nil
		case <-ticker.C:
			s.pushContext(ctx, false)
		}
	}
}

// pushContext sends the viewer snapshot to the agent unless it has not
// changed since the last push.
func (s *ConversationService) pushContext(ctx context.Context, force bool) {
	session := s.current()
	if session == nil || !session.IsConnected() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, viewerTimeout)
	defer cancel()
	vp, err := s.viewer.Snapshot(ctx)
	if err != nil {
		s.logger.Debug("Skipping context update", zap.Error(err))
		return
	}

	s.mu.Lock()
	unchanged := s.lastContext != nil && *s.lastContext == vp
	s.mu.Unlock()
	if unchanged && !force {
		return
	}

	if err := session.SendContextUpdate(vp); err != nil {
		s.logger.Warn("Failed to send context update", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.live == session {
		s.lastContext = &vp
	}
	s.mu.Unlock()
}

// HandleToolCall executes a validated tool call and records its outcome.
func (s *ConversationService) HandleToolCall(ctx context.Context, name string, args map[string]any) (any, error) {
	start := time.Now()
	result, err := s.navigation.HandleToolCall(ctx, name, args)

	status, success := "success", true
	if err != nil {
		status, success = "error", false
	} else if r, ok := result.(ToolResult); ok && !r.Success {
		status, success = "failure", false
	}
	s.metrics.RecordToolCall(name, status, time.Since(start))
	s.logger.Info("Tool call finished",
		zap.String("tool", name),
		zap.String("status", status),
		zap.Duration("duration", time.Since(start)))

	if s.sessions != nil {
		recCtx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if rerr := s.sessions.RecordToolCall(recCtx, s.recordID, name, success); rerr != nil {
			s.logger.Warn("Failed to record tool call", zap.String("tool", name), zap.Error(rerr))
		}
	}
	return result, err
}

func (s *ConversationService) recordTurn(user, agent string) {
	if s.sessions == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if user != "" {
		if err := s.sessions.AddMessage(ctx, s.recordID, entities.MessageRoleUser, user); err != nil {
			s.logger.Warn("Failed to record user turn", zap.Error(err))
		}
	}
	if agent != "" {
		if err := s.sessions.AddMessage(ctx, s.recordID, entities.MessageRoleAgent, agent); err != nil {
			s.logger.Warn("Failed to record agent turn", zap.Error(err))
		}
	}
}

// liveObserver forwards events from one live session generation. Events
// from a replaced session only update metrics.
type liveObserver struct {
	conv        *ConversationService
	gen         uint64
	connectedAt time.Time
}

func (o *liveObserver) isCurrent() bool {
	o.conv.mu.Lock()
	defer o.conv.mu.Unlock()
	return o.conv.gen == o.gen
}

func (o *liveObserver) OnAudio(pcm []byte) {
	if !o.isCurrent() {
		return
	}
	o.conv.metrics.RecordAudio("out", len(pcm))
	o.conv.sink.AgentAudio(pcm)
}

func (o *liveObserver) OnText(text string) {
	s := o.conv
	s.mu.Lock()
	if s.gen != o.gen {
		s.mu.Unlock()
		return
	}
	s.agentTurn = text
	s.mu.Unlock()

	s.sink.AgentText(text)
}

// OnTranscript only ever sees the user's speech, so the sink labels it as
// such. The live session marks every cumulative fragment final.
func (o *liveObserver) OnTranscript(text string, isFinal bool) {
	s := o.conv
	s.mu.Lock()
	if s.gen != o.gen {
		s.mu.Unlock()
		return
	}
	s.userTurn = text
	s.mu.Unlock()

	s.sink.Transcript(text, true)
}

func (o *liveObserver) OnTurnComplete() {
	s := o.conv
	s.mu.Lock()
	if s.gen != o.gen {
		s.mu.Unlock()
		return
	}
	user, agent := s.userTurn, s.agentTurn
	s.userTurn, s.agentTurn = "", ""
	prev, done := s.lastRecord, make(chan struct{})
	s.lastRecord = done
	s.mu.Unlock()

	// Writes leave the read loop but keep turn order.
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		s.recordTurn(user, agent)
	}()
	s.sink.TurnComplete()
}

func (o *liveObserver) OnConnectionChange(connected bool) {
	s := o.conv
	s.mu.Lock()
	current := s.gen == o.gen
	var lasted time.Duration
	ended := false
	if connected {
		o.connectedAt = time.Now()
	} else if !o.connectedAt.IsZero() {
		lasted = time.Since(o.connectedAt)
		o.connectedAt = time.Time{}
		ended = true
	}
	micWasOn := false
	if current && !connected {
		micWasOn = s.mic
		s.mic = false
	}
	s.mu.Unlock()

	if connected {
		s.metrics.RecordLiveSessionStart(nil)
	} else if ended {
		s.metrics.RecordLiveSessionEnd(lasted)
	}
	if !current {
		return
	}

	s.sink.ConnectionChanged(connected)
	if micWasOn {
		s.sink.MicChanged(false)
	}
	if connected {
		go s.pushContext(context.Background(), true)
	}
}

func (o *liveObserver) OnError(err error) {
	if !o.isCurrent() {
		return
	}
	o.conv.logger.Error("Live session error", zap.Error(err))
	o.conv.sink.Error(err)
}
