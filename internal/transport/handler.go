package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/callcraft-ai/callcraft/internal/protocol"
	"github.com/callcraft-ai/callcraft/internal/session"
)

// maxInboundFrame bounds client frames; microphone chunks are a few KiB.
const maxInboundFrame = 1 << 20

// sessionDrainTimeout caps how long the read loop waits for the orchestrator
// to finish after the connection goes away.
const sessionDrainTimeout = 5 * time.Second

// AgentHandler serves the /ws/agent endpoint: one WebSocket connection, one
// session.Orchestrator.
type AgentHandler struct {
	cfg    session.Config
	logger *slog.Logger
}

// NewAgentHandler returns a handler that builds orchestrators from cfg.
func NewAgentHandler(cfg session.Config) *AgentHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentHandler{cfg: cfg, logger: logger}
}

// ServeHTTP upgrades the connection and runs the inbound read loop until the
// client disconnects or the session ends.
func (h *AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	conn.SetReadLimit(maxInboundFrame)

	gw := NewGateway(conn, h.logger)
	gw.Event(protocol.NewStatus("connected"))

	var orch *session.Orchestrator
	defer func() {
		if orch != nil {
			orch.Stop()
			select {
			case <-orch.Done():
			case <-time.After(sessionDrainTimeout):
				h.logger.Warn("session drain timed out", slog.String("session_id", orch.ID()))
			}
		}
		gw.Close()
	}()

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if !errors.As(err, &ce) {
				h.logger.Debug("websocket read ended", slog.String("error", err.Error()))
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if orch != nil {
				orch.HandleAudio(data)
			}

		case websocket.MessageText:
			in, err := protocol.DecodeInbound(data)
			if err != nil {
				h.logger.Debug("ignoring inbound frame", slog.String("error", err.Error()))
				continue
			}
			switch in.Kind {
			case protocol.InboundStart:
				if orch != nil {
					continue
				}
				orch = session.New(h.cfg, gw)
				gw.SetFatalHook(orch.Stop)
				// Close the socket once the session has sent its done event.
				go func(o *session.Orchestrator) {
					<-o.Done()
					gw.Close()
				}(orch)
				if err := orch.Start(ctx, in.Persona); err != nil {
					return
				}

			case protocol.InboundStop:
				if orch == nil {
					gw.Event(protocol.NewDone())
					return
				}
				orch.Stop()

			case protocol.InboundFinalAudioComplete:
				if orch != nil {
					orch.FinalAudioComplete()
				}
			}
		}
	}
}
