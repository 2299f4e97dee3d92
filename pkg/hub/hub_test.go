package hub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// fakeConn records writes; ReadMessage blocks until Close.
type fakeConn struct {
	mu     sync.Mutex
	writes []written
	closed chan struct{}
	once   sync.Once
}

type written struct {
	kind int
	data []byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, io.EOF
}

func (c *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	c.mu.Lock()
	c.writes = append(c.writes, written{kind, append([]byte(nil), data...)})
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) SetReadLimit(int64)                {}
func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) messages() []written {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]written(nil), c.writes...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	waitFor(t, "hub start", h.IsRunning)
	t.Cleanup(cancel)
	return h, cancel
}

func TestBroadcastReachesClients(t *testing.T) {
	h, _ := startHub(t)

	greeting, _ := NewEvent("hello", 1)
	a, b := newFakeConn(), newFakeConn()
	for _, conn := range []*fakeConn{a, b} {
		client, err := NewClient(h, conn, greeting)
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		go client.Run()
	}
	waitFor(t, "two clients", func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastEvent("snapshot", map[string]string{"state": "idle"}); err != nil {
		t.Fatalf("BroadcastEvent failed: %v", err)
	}
	h.BroadcastBinary([]byte{0xff, 0xd8})

	for _, conn := range []*fakeConn{a, b} {
		waitFor(t, "three writes", func() bool { return len(conn.messages()) == 3 })
		msgs := conn.messages()

		var first Event
		json.Unmarshal(msgs[0].data, &first)
		if first.Type != "hello" {
			t.Errorf("first message = %s, want the initial one", msgs[0].data)
		}
		var ev Event
		if err := json.Unmarshal(msgs[1].data, &ev); err != nil || ev.Type != "snapshot" {
			t.Errorf("second message = %s", msgs[1].data)
		}
		if msgs[1].kind != websocket.TextMessage || msgs[2].kind != websocket.BinaryMessage {
			t.Errorf("message kinds = %d, %d", msgs[1].kind, msgs[2].kind)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	h, _ := startHub(t)

	conn := newFakeConn()
	client, err := NewClient(h, conn)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	done := make(chan struct{})
	go func() {
		client.Run()
		close(done)
	}()
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	conn.Close()
	<-done
	waitFor(t, "client removed", func() bool { return h.ClientCount() == 0 })
}

func TestHubStop(t *testing.T) {
	h, cancel := startHub(t)

	conn := newFakeConn()
	client, _ := NewClient(h, conn)
	go client.Run()
	waitFor(t, "client registered", func() bool { return h.ClientCount() == 1 })

	cancel()
	waitFor(t, "hub stopped", func() bool { return !h.IsRunning() })
	waitFor(t, "close frame", func() bool {
		msgs := conn.messages()
		return len(msgs) > 0 && msgs[len(msgs)-1].kind == websocket.CloseMessage
	})

	if _, err := NewClient(h, newFakeConn()); !errors.Is(err, ErrClosed) {
		t.Errorf("NewClient after stop = %v, want ErrClosed", err)
	}
}

func TestNewEvent(t *testing.T) {
	msg, err := NewEvent("error", map[string]string{"kind": "transcription"})
	if err != nil {
		t.Fatalf("NewEvent failed: %v", err)
	}
	if msg.Type != JSONMessage {
		t.Errorf("Type = %v", msg.Type)
	}
	if string(msg.Data) != `{"type":"error","data":{"kind":"transcription"}}` {
		t.Errorf("Data = %s", msg.Data)
	}

	if _, err := NewEvent("bad", make(chan int)); err == nil {
		t.Error("expected encode error")
	}
}
