package websocket

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/satriahrh/panoguide/domain/entities"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Messages sent by the browser
const (
	MessageTypeConnect      MessageType = "connect"
	MessageTypeDisconnect   MessageType = "disconnect"
	MessageTypeText         MessageType = "text"
	MessageTypeInterrupt    MessageType = "interrupt"
	MessageTypeMicStart     MessageType = "mic_start"
	MessageTypeMicStop      MessageType = "mic_stop"
	MessageTypeViewport     MessageType = "viewport"
	MessageTypeViewerResult MessageType = "viewer_result"
	MessageTypePing         MessageType = "ping"
)

// Messages sent to the browser
const (
	MessageTypeHello         MessageType = "hello"
	MessageTypeConnection    MessageType = "connection"
	MessageTypeAgentText     MessageType = "agent_text"
	MessageTypeTranscript    MessageType = "transcript"
	MessageTypeTurnComplete  MessageType = "turn_complete"
	MessageTypeError         MessageType = "error"
	MessageTypeViewerCommand MessageType = "viewer_command"
	MessageTypeMic           MessageType = "mic"
	MessageTypePong          MessageType = "pong"
)

// Viewer result statuses
const (
	ViewerStatusOK       = "ok"
	ViewerStatusNotFound = "not_found"
	ViewerStatusError    = "error"
)

// Viewer commands
const (
	CommandSetPOV        = "set_pov"
	CommandMoveTo        = "move_to"
	CommandSetPanorama   = "set_panorama"
	CommandFindPanorama  = "find_panorama"
	CommandRequestSelfie = "request_selfie"
)

const maxTextLength = 4000

// BaseMessage defines the common structure for all WebSocket messages
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id,omitempty"`
}

func newBase(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// ControlMessage carries a command without a payload
type ControlMessage struct {
	BaseMessage
}

// TextMessage is a typed user message
type TextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// ViewportMessage is viewer telemetry pushed by the browser
type ViewportMessage struct {
	BaseMessage
	Viewport entities.Viewport   `json:"viewport"`
	Links    []entities.PanoLink `json:"links"`
}

// ViewerResultMessage answers a viewer command that carried a request id
type ViewerResultMessage struct {
	BaseMessage
	RequestID string              `json:"request_id"`
	Status    string              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Panorama  *entities.Panorama  `json:"panorama,omitempty"`
	Viewport  *entities.Viewport  `json:"viewport,omitempty"`
	Links     []entities.PanoLink `json:"links,omitempty"`
}

// PingMessage represents a ping message for connection health check
type PingMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// PongMessage represents a pong response
type PongMessage struct {
	BaseMessage
	Data string `json:"data,omitempty"`
}

// HelloMessage is the first message on every connection
type HelloMessage struct {
	BaseMessage
	SessionID        string `json:"session_id"`
	ClientID         string `json:"client_id"`
	InputSampleRate  int    `json:"input_sample_rate"`
	OutputSampleRate int    `json:"output_sample_rate"`
}

// ConnectionMessage reports the agent connection state
type ConnectionMessage struct {
	BaseMessage
	Connected bool `json:"connected"`
}

// AgentTextMessage carries the agent's text for the current turn so far
type AgentTextMessage struct {
	BaseMessage
	Text string `json:"text"`
}

// TranscriptMessage carries a transcript for the current turn so far
type TranscriptMessage struct {
	BaseMessage
	Text   string `json:"text"`
	IsUser bool   `json:"is_user"`
}

// MicMessage reports whether microphone frames are forwarded
type MicMessage struct {
	BaseMessage
	Active bool `json:"active"`
}

// ViewerCommandMessage asks the browser to drive the viewer. Commands with a
// request id expect a viewer_result.
type ViewerCommandMessage struct {
	BaseMessage
	RequestID string           `json:"request_id,omitempty"`
	Command   string           `json:"command"`
	POV       *entities.POV    `json:"pov,omitempty"`
	PanoID    string           `json:"pano_id,omitempty"`
	Position  *entities.LatLng `json:"position,omitempty"`
	Radius    float64          `json:"radius,omitempty"`
	Style     string           `json:"style,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"error_code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// MessageValidator provides validation for WebSocket messages
type MessageValidator struct{}

// NewMessageValidator creates a new message validator
func NewMessageValidator() *MessageValidator {
	return &MessageValidator{}
}

// ValidateMessage validates an incoming message
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(messageBytes, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}

	switch base.Type {
	case MessageTypeConnect, MessageTypeDisconnect, MessageTypeInterrupt, MessageTypeMicStart, MessageTypeMicStop:
		return &ControlMessage{BaseMessage: base}, nil

	case MessageTypeText:
		var msg TextMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid text message: %w", err)
		}
		if err := v.validateText(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeViewport:
		var msg ViewportMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid viewport message: %w", err)
		}
		if err := v.validateViewport(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypeViewerResult:
		var msg ViewerResultMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid viewer result message: %w", err)
		}
		if err := v.validateViewerResult(&msg); err != nil {
			return nil, err
		}
		return &msg, nil

	case MessageTypePing:
		var msg PingMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			return nil, fmt.Errorf("invalid ping message: %w", err)
		}
		return &msg, nil

	case "":
		return nil, fmt.Errorf("type is required")

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

// validateText validates text message fields
func (v *MessageValidator) validateText(msg *TextMessage) error {
	if strings.TrimSpace(msg.Text) == "" {
		return fmt.Errorf("text is required")
	}
	if len(msg.Text) > maxTextLength {
		return fmt.Errorf("text must be at most %d bytes", maxTextLength)
	}
	return nil
}

func (v *MessageValidator) validateViewport(msg *ViewportMessage) error {
	if err := msg.Viewport.Validate(); err != nil {
		return fmt.Errorf("invalid viewport: %w", err)
	}
	for i, l := range msg.Links {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("invalid link %d: %w", i, err)
		}
	}
	return nil
}

func (v *MessageValidator) validateViewerResult(msg *ViewerResultMessage) error {
	if msg.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}

	validStatuses := map[string]bool{
		ViewerStatusOK: true, ViewerStatusNotFound: true, ViewerStatusError: true,
	}
	if !validStatuses[msg.Status] {
		return fmt.Errorf("status must be one of: ok, not_found, error")
	}

	if msg.Viewport != nil {
		if err := msg.Viewport.Validate(); err != nil {
			return fmt.Errorf("invalid viewport: %w", err)
		}
	}
	return nil
}

// CreateErrorMessage creates a standardized error message
func CreateErrorMessage(code, message, details string) *ErrorMessage {
	return &ErrorMessage{
		BaseMessage: newBase(MessageTypeError),
		Code:        code,
		Message:     message,
		Details:     details,
	}
}

// CreatePongMessage creates a pong response message
func CreatePongMessage(data string) *PongMessage {
	return &PongMessage{
		BaseMessage: newBase(MessageTypePong),
		Data:        data,
	}
}
