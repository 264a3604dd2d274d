package live

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is matched by every NotConnectedError.
	ErrNotConnected = errors.New("live session is not connected")
	// ErrTransportClosed marks a write or read that raced with the socket closing.
	ErrTransportClosed = errors.New("transport closed")
	// ErrSessionClosed is returned by Connect on a session that was already used.
	ErrSessionClosed = errors.New("live session already closed")
	// ErrOpenTimeout is the reason a connect attempt gave up waiting for setup.
	ErrOpenTimeout = errors.New("timed out waiting for setup to complete")
)

// ConfigurationError reports a missing or invalid setting at construction.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("live configuration: %s %s", e.Field, e.Reason)
}

// ConnectionError wraps why a connect attempt failed.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("live connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotConnectedError is returned by operations that require an open session.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrNotConnected)
}

func (e *NotConnectedError) Unwrap() error {
	return ErrNotConnected
}
