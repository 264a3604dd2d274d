package live

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func newEchoServer(t *testing.T, gotKey chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey <- r.Header.Get("x-goog-api-key")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == `"bye"` {
				ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session over"))
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestWebsocketTransportRoundTrip(t *testing.T) {
	gotKey := make(chan string, 1)
	server := newEchoServer(t, gotKey)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{}
	header.Set("x-goog-api-key", "secret")
	conn, err := NewWebsocketTransport(zaptest.NewLogger(t)).Dial(context.Background(), url, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if key := <-gotKey; key != "secret" {
		t.Errorf("server saw api key %q", key)
	}

	if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(data) != `{"setupComplete":{}}` {
		t.Errorf("echo = %s", data)
	}
}

func TestWebsocketTransportClose(t *testing.T) {
	server := newEchoServer(t, make(chan string, 1))
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	conn, err := NewWebsocketTransport(zaptest.NewLogger(t)).Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}

	if err := conn.WriteJSON("bye"); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if _, err := conn.ReadMessage(); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("ReadMessage() after peer close = %v, want ErrTransportClosed", err)
	}

	if err := conn.Close(); err != nil {
		t.Logf("Close() = %v", err)
	}
	if err := conn.WriteJSON("late"); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("WriteJSON() after Close = %v, want ErrTransportClosed", err)
	}
}

func TestWebsocketTransportDialFailure(t *testing.T) {
	_, err := NewWebsocketTransport(zaptest.NewLogger(t)).Dial(context.Background(), "ws://127.0.0.1:1/?key=secret", nil)
	if err == nil {
		t.Fatal("Dial() to closed port should fail")
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks query string: %v", err)
	}
}
