// Package transport binds the session orchestrator to a WebSocket
// connection: a single-writer gateway for outbound frames and the /ws/agent
// HTTP handler that runs the inbound read loop.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// outboundQueueSize bounds the writer queue. Control events block when
	// the queue is full; audio chunks are dropped instead, since stale audio
	// is worthless by the time the link recovers.
	outboundQueueSize = 256

	// writeTimeout caps a single frame write. A client that stalls longer
	// than this is treated as gone.
	writeTimeout = 10 * time.Second
)

// outFrame is one queued WebSocket frame.
type outFrame struct {
	kind websocket.MessageType
	data []byte
}

// wsConn is the connection surface the gateway writes through.
// *websocket.Conn implements it; tests substitute a scripted double.
type wsConn interface {
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
}

// Gateway serialises all outbound traffic for one connection through a
// single writer goroutine, preserving enqueue order across the control and
// audio paths. It implements session.Sink.
type Gateway struct {
	conn   wsConn
	logger *slog.Logger

	queue   chan outFrame
	closing chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
	fatalOnce sync.Once

	mu      sync.Mutex
	onFatal func()
	failed  bool
}

// NewGateway wraps conn and starts the writer goroutine.
func NewGateway(conn *websocket.Conn, logger *slog.Logger) *Gateway {
	return newGateway(conn, logger)
}

func newGateway(conn wsConn, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		conn:    conn,
		logger:  logger,
		queue:   make(chan outFrame, outboundQueueSize),
		closing: make(chan struct{}),
	}
	g.wg.Add(1)
	go g.writeLoop()
	return g
}

// SetFatalHook registers a callback invoked once if a write fails. The
// handler uses it to stop the session when the client is gone.
func (g *Gateway) SetFatalHook(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onFatal = fn
}

// Event marshals ev and enqueues it as a text frame. Control events are never
// dropped: the call blocks while the queue is full, unless the gateway is
// shutting down.
func (g *Gateway) Event(ev any) {
	data, err := json.Marshal(ev)
	if err != nil {
		g.logger.Error("marshal event failed", slog.String("error", err.Error()))
		return
	}
	select {
	case g.queue <- outFrame{kind: websocket.MessageText, data: data}:
	case <-g.closing:
	}
}

// Audio enqueues one binary PCM chunk. When the queue is full the chunk is
// dropped with a warning rather than stalling the synthesis pipeline.
func (g *Gateway) Audio(chunk []byte) {
	select {
	case g.queue <- outFrame{kind: websocket.MessageBinary, data: chunk}:
	case <-g.closing:
	default:
		g.logger.Warn("outbound queue full, dropping audio chunk", slog.Int("bytes", len(chunk)))
	}
}

// Close drains queued frames, then closes the connection with a normal
// closure. Safe to call more than once.
func (g *Gateway) Close() {
	g.closeOnce.Do(func() {
		close(g.closing)
		g.wg.Wait()
		_ = g.conn.Close(websocket.StatusNormalClosure, "")
	})
}

func (g *Gateway) writeLoop() {
	defer g.wg.Done()
	for {
		select {
		case f := <-g.queue:
			if !g.write(f) {
				g.drainForever()
				return
			}
		case <-g.closing:
			// Flush whatever is already queued, then exit.
			for {
				select {
				case f := <-g.queue:
					if !g.write(f) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// write sends one frame; false means the connection is dead.
func (g *Gateway) write(f outFrame) bool {
	g.mu.Lock()
	if g.failed {
		g.mu.Unlock()
		return false
	}
	g.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	err := g.conn.Write(ctx, f.kind, f.data)
	cancel()
	if err == nil {
		return true
	}

	g.logger.Warn("websocket write failed", slog.String("error", err.Error()))
	g.mu.Lock()
	g.failed = true
	fn := g.onFatal
	g.mu.Unlock()
	if fn != nil {
		g.fatalOnce.Do(fn)
	}
	return false
}

// drainForever keeps the queue moving after a fatal write error so producers
// blocked in Event can finish; frames are discarded.
func (g *Gateway) drainForever() {
	for {
		select {
		case <-g.queue:
		case <-g.closing:
			return
		}
	}
}
