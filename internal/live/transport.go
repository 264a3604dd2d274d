package live

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to the peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from the peer. Audio chunks are base64 in JSON.
	maxMessageSize = 16 * 1024 * 1024

	handshakeTimeout = 10 * time.Second
)

// Conn is an open bidirectional message stream to the agent service.
type Conn interface {
	// WriteJSON sends one text frame. Safe for concurrent use.
	WriteJSON(v any) error
	// ReadMessage blocks for the next frame. Only one reader at a time.
	ReadMessage() ([]byte, error)
	Close() error
}

// Transport opens connections to the agent service.
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header) (Conn, error)
}

// WebsocketTransport dials Gemini Live over gorilla/websocket.
type WebsocketTransport struct {
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewWebsocketTransport creates a transport with TLS 1.2+ and a bounded handshake.
func NewWebsocketTransport(logger *zap.Logger) *WebsocketTransport {
	return &WebsocketTransport{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
			TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
		},
		logger: logger,
	}
}

// Dial implements Transport
func (t *WebsocketTransport) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	ws, resp, err := t.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", redact(url), err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", redact(url), err)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &websocketConn{
		ws:     ws,
		done:   make(chan struct{}),
		logger: t.logger,
	}
	go c.keepalive()
	return c, nil
}

type websocketConn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
	logger    *zap.Logger
}

func (c *websocketConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrTransportClosed
	default:
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return classify(err)
	}
	return nil
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, classify(err)
		}
		if msgType == websocket.TextMessage || msgType == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *websocketConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

func (c *websocketConn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("Live keepalive ping failed", zap.Error(err))
				return
			}
		}
	}
}

// classify folds every flavour of "the socket is going away" into ErrTransportClosed.
func classify(err error) error {
	var closeErr *websocket.CloseError
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) || errors.As(err, &closeErr) {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return err
}

func redact(url string) string {
	base, _, _ := strings.Cut(url, "?")
	return base
}
