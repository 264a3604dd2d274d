package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/panoguide/internal/tools"
)

type fakeConn struct {
	incoming  chan []byte
	writes    chan map[string]any
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	writeErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan []byte, 64),
		writes:   make(chan map[string]any, 64),
		closed:   make(chan struct{}),
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrTransportClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}
	c.writes <- frame
	return nil
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.incoming:
		return data, nil
	case <-c.closed:
		return nil, fmt.Errorf("%w: use of closed connection", ErrTransportClosed)
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) push(frame string) {
	c.incoming <- []byte(frame)
}

func (c *fakeConn) nextWrite(t *testing.T) map[string]any {
	t.Helper()
	select {
	case frame := <-c.writes:
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an outbound frame")
		return nil
	}
}

func (c *fakeConn) expectNoWrite(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case frame := <-c.writes:
		t.Fatalf("unexpected outbound frame: %v", frame)
	case <-time.After(wait):
	}
}

type fakeTransport struct {
	conn   *fakeConn
	err    error
	url    string
	header http.Header
}

func (t *fakeTransport) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	t.url = url
	t.header = header
	if t.err != nil {
		return nil, t.err
	}
	return t.conn, nil
}

type recorded struct {
	audio       [][]byte
	texts       []string
	transcripts []string
	finals      []bool
	turns       int
	errs        []error
	connChanges []bool
}

type recorder struct {
	mu     sync.Mutex
	data   recorded
	events chan string
}

func newRecorder() *recorder {
	return &recorder{events: make(chan string, 256)}
}

func (r *recorder) OnAudio(pcm []byte) {
	r.mu.Lock()
	r.data.audio = append(r.data.audio, pcm)
	r.mu.Unlock()
	r.events <- "audio"
}

func (r *recorder) OnText(text string) {
	r.mu.Lock()
	r.data.texts = append(r.data.texts, text)
	r.mu.Unlock()
	r.events <- "text"
}

func (r *recorder) OnTranscript(text string, isFinal bool) {
	r.mu.Lock()
	r.data.transcripts = append(r.data.transcripts, text)
	r.data.finals = append(r.data.finals, isFinal)
	r.mu.Unlock()
	r.events <- "transcript"
}

func (r *recorder) OnTurnComplete() {
	r.mu.Lock()
	r.data.turns++
	r.mu.Unlock()
	r.events <- "turn"
}

func (r *recorder) OnConnectionChange(connected bool) {
	r.mu.Lock()
	r.data.connChanges = append(r.data.connChanges, connected)
	r.mu.Unlock()
	r.events <- fmt.Sprintf("connected:%v", connected)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.data.errs = append(r.data.errs, err)
	r.mu.Unlock()
	r.events <- "error"
}

func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.events:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q event", want)
		}
	}
}

func (r *recorder) snapshot() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recorded{
		audio:       append([][]byte(nil), r.data.audio...),
		texts:       append([]string(nil), r.data.texts...),
		transcripts: append([]string(nil), r.data.transcripts...),
		finals:      append([]bool(nil), r.data.finals...),
		turns:       r.data.turns,
		errs:        append([]error(nil), r.data.errs...),
		connChanges: append([]bool(nil), r.data.connChanges...),
	}
}

type handlerFunc func(ctx context.Context, name string, args map[string]any) (any, error)

func (f handlerFunc) HandleToolCall(ctx context.Context, name string, args map[string]any) (any, error) {
	return f(ctx, name, args)
}

func okHandler() handlerFunc {
	return func(ctx context.Context, name string, args map[string]any) (any, error) {
		return map[string]any{"success": true}, nil
	}
}

func newTestSession(t *testing.T, handler ToolHandler, transport *fakeTransport) (*Session, *recorder) {
	t.Helper()
	rec := newRecorder()
	s, err := NewSession(Config{
		APIKey:            "test-key",
		SystemInstruction: "You are a tour guide.",
		EnableSearch:      true,
		OpenTimeout:       time.Second,
		Transport:         transport,
	}, tools.MustNewRegistry(), handler, rec, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s, rec
}

// connectSession returns a session that completed setup against a fake conn.
func connectSession(t *testing.T, handler ToolHandler) (*Session, *fakeConn, *recorder) {
	t.Helper()
	conn := newFakeConn()
	s, rec := newTestSession(t, handler, &fakeTransport{conn: conn})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Connect(context.Background()) }()

	setup := conn.nextWrite(t)
	if _, ok := setup["setup"]; !ok {
		t.Fatalf("first frame should be setup, got %v", setup)
	}
	conn.push(`{"setupComplete":{}}`)

	if err := <-errCh; err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	rec.waitFor(t, "connected:true")
	t.Cleanup(s.Disconnect)
	return s, conn, rec
}
