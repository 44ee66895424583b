package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// stallConn is a wsConn double whose writes block on gate until it is closed,
// recording every frame delivered after release.
type stallConn struct {
	gate chan struct{}

	mu     sync.Mutex
	frames []outFrame
}

func newStallConn() *stallConn {
	return &stallConn{gate: make(chan struct{})}
}

func (c *stallConn) Write(ctx context.Context, typ websocket.MessageType, p []byte) error {
	select {
	case <-c.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]byte(nil), p...)
	c.frames = append(c.frames, outFrame{kind: typ, data: cp})
	return nil
}

func (c *stallConn) Close(websocket.StatusCode, string) error { return nil }

func (c *stallConn) delivered() []outFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]outFrame, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *stallConn) countKind(kind websocket.MessageType) int {
	n := 0
	for _, f := range c.delivered() {
		if f.kind == kind {
			n++
		}
	}
	return n
}

func TestGatewayAudioDropsInsteadOfBlocking(t *testing.T) {
	t.Parallel()

	conn := newStallConn()
	g := newGateway(conn, nil)
	defer g.Close()

	// With the writer stalled the queue can absorb outboundQueueSize chunks
	// plus one in flight; everything beyond that must be dropped without
	// stalling the synthesis path.
	const pushed = outboundQueueSize + 8
	filled := make(chan struct{})
	go func() {
		defer close(filled)
		for range pushed {
			g.Audio([]byte{0xAB})
		}
	}()
	select {
	case <-filled:
	case <-time.After(2 * time.Second):
		t.Fatal("Audio blocked on a full queue")
	}

	// A control event must survive the same congestion. Event blocks until
	// the writer frees queue space, so it runs alongside the release.
	eventSent := make(chan struct{})
	go func() {
		defer close(eventSent)
		g.Event(struct {
			Type string `json:"type"`
		}{Type: "turn_done"})
	}()

	close(conn.gate)
	select {
	case <-eventSent:
	case <-time.After(2 * time.Second):
		t.Fatal("Event never enqueued after queue drained")
	}

	deadline := time.Now().Add(2 * time.Second)
	for conn.countKind(websocket.MessageText) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if got := conn.countKind(websocket.MessageText); got != 1 {
		t.Errorf("text frames delivered = %d, want the control event exactly once", got)
	}
	binary := conn.countKind(websocket.MessageBinary)
	if binary >= pushed {
		t.Errorf("binary frames delivered = %d, want drops under congestion (pushed %d)", binary, pushed)
	}
	if binary > outboundQueueSize+1 {
		t.Errorf("binary frames delivered = %d, exceeds queue capacity + in-flight", binary)
	}
	if binary == 0 {
		t.Error("no audio delivered at all")
	}
}

func TestGatewayEventAfterCloseReturns(t *testing.T) {
	t.Parallel()

	conn := newStallConn()
	close(conn.gate)
	g := newGateway(conn, nil)
	g.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Event(struct {
			Type string `json:"type"`
		}{Type: "status"})
		g.Audio([]byte{0x01})
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Event or Audio blocked after Close")
	}
}
