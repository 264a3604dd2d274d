package live

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultURL         = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel       = "models/gemini-2.0-flash-live-001"
	DefaultOpenTimeout = 10 * time.Second

	inputAudioMIME = "audio/pcm;rate=16000"
)

// Config holds the settings for a single Gemini Live session.
type Config struct {
	APIKey            string
	Model             string
	URL               string
	SystemInstruction string
	Voice             string
	// OpenTimeout bounds how long Connect waits for setupComplete.
	OpenTimeout time.Duration
	// EnableSearch adds the built-in web search tool next to the function tools.
	EnableSearch bool
	Transport    Transport
}

func (c *Config) validate(logger *zap.Logger) error {
	if c.APIKey == "" {
		return &ConfigurationError{Field: "api key", Reason: "is required"}
	}

	if c.Model == "" {
		c.Model = DefaultModel
		logger.Debug("Using default live model", zap.String("model", c.Model))
	}
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = DefaultOpenTimeout
	}
	if c.Transport == nil {
		c.Transport = NewWebsocketTransport(logger)
	}
	return nil
}
