// Package session implements the per-call orchestrator: it owns the ASR
// stream, the bounded conversation history, and the turn pipelines that
// stream model replies through segmentation into speech synthesis.
//
// One Orchestrator serves exactly one WebSocket connection. All
// client-visible ordering guarantees (turn_done after the last segment_done,
// hangup after the final segment_done, done exactly once and last) are
// enforced by funnelling every control decision through a single supervisor
// goroutine.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/callcraft-ai/callcraft/internal/observe"
	"github.com/callcraft-ai/callcraft/internal/protocol"
	"github.com/callcraft-ai/callcraft/pkg/provider/asr"
	"github.com/callcraft-ai/callcraft/pkg/provider/llm"
	"github.com/callcraft-ai/callcraft/pkg/provider/tts"
	"github.com/callcraft-ai/callcraft/pkg/types"
)

const (
	// micQueueCapacity bounds the upstream audio queue. Under backpressure
	// the oldest frame is dropped so recent speech keeps flowing.
	micQueueCapacity = 6

	// debounceWindow suppresses duplicate ASR finals: an identical transcript
	// arriving within this window of the previous one is dropped.
	debounceWindow = 220 * time.Millisecond

	// defaultHangupTimeout is how long to wait for the client to confirm
	// playback of the closing phrase before forcing session end.
	defaultHangupTimeout = 6 * time.Second

	// defaultIdleTimeout ends sessions whose microphone went silent, e.g. a
	// client that stopped sending without closing the socket.
	defaultIdleTimeout = 20 * time.Second

	idleCheckInterval = 5 * time.Second

	asrSampleRate = 16000
)

// ErrAlreadyStarted is returned by Start when the session was started before.
var ErrAlreadyStarted = errors.New("session: already started")

// Sink receives everything the session wants to send to the client. The
// transport implements it; tests substitute a recorder. Implementations must
// preserve call order and must not block indefinitely.
type Sink interface {
	// Event sends one JSON control event.
	Event(ev any)

	// Audio sends one binary PCM chunk.
	Audio(chunk []byte)
}

// Config wires an Orchestrator to its providers.
type Config struct {
	ASR asr.Provider
	LLM llm.Provider
	TTS tts.Provider

	// Metrics defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// HangupTimeout and IdleTimeout default to 6s and 20s.
	HangupTimeout time.Duration
	IdleTimeout   time.Duration
}

// Orchestrator drives one voice session.
type Orchestrator struct {
	id      string
	cfg     Config
	sink    Sink
	metrics *observe.Metrics
	logger  *slog.Logger

	persona types.Persona
	history *HistoryStore

	ctx    context.Context
	cancel context.CancelFunc

	micQ    chan []byte
	ctrl    chan protocol.InboundKind
	notices chan turnNotice

	asrSession asr.SessionHandle

	started       atomic.Bool
	hangupPending atomic.Bool
	lastAudio     atomic.Int64

	turnSeq int

	stopOnce sync.Once
	stopCh   chan struct{}

	doneOnce sync.Once
	finished chan struct{}
}

// New creates an Orchestrator for one connection. Start must be called before
// any audio is accepted.
func New(cfg Config, sink Sink) *Orchestrator {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HangupTimeout <= 0 {
		cfg.HangupTimeout = defaultHangupTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	id := uuid.NewString()
	return &Orchestrator{
		id:       id,
		cfg:      cfg,
		sink:     sink,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With(slog.String("session_id", id)),
		history:  NewHistoryStore(),
		micQ:     make(chan []byte, micQueueCapacity),
		ctrl:     make(chan protocol.InboundKind, 4),
		notices:  make(chan turnNotice, 16),
		stopCh:   make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (o *Orchestrator) ID() string { return o.id }

// Start opens the ASR stream and launches the supervisor. It emits the
// "initializing" and "ready" status events; on ASR failure it emits an error
// status followed by done and returns the error.
func (o *Orchestrator) Start(ctx context.Context, persona types.Persona) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if !persona.IsValid() {
		persona = types.PersonaA
	}
	o.persona = persona
	o.ctx, o.cancel = context.WithCancel(ctx)

	o.sink.Event(protocol.NewStatus("initializing"))

	sess, err := o.cfg.ASR.Open(o.ctx, asr.StreamConfig{
		SampleRate: asrSampleRate,
		Channels:   1,
	})
	if err != nil {
		o.logger.Error("asr stream failed to open", slog.String("error", err.Error()))
		o.metrics.RecordProviderError(ctx, "asr", "open")
		o.sink.Event(protocol.NewStatus("error: " + err.Error()))
		o.emitDone()
		o.cancel()
		close(o.finished)
		return err
	}
	o.asrSession = sess
	o.metrics.ActiveSessions.Add(o.ctx, 1)
	o.lastAudio.Store(time.Now().UnixNano())

	go o.pumpMic()
	go o.supervise()

	o.sink.Event(protocol.NewStatus("ready"))
	o.logger.Info("session ready", slog.String("persona", string(persona)))
	return nil
}

// HandleAudio enqueues one microphone frame. Frames received before Start or
// after a hangup was initiated are dropped silently.
func (o *Orchestrator) HandleAudio(frame []byte) {
	if !o.started.Load() || o.hangupPending.Load() {
		return
	}
	o.lastAudio.Store(time.Now().UnixNano())
	select {
	case o.micQ <- frame:
		return
	default:
	}
	// Queue full: evict the oldest frame, then retry once.
	select {
	case <-o.micQ:
		o.metrics.DroppedFrames.Add(o.ctx, 1)
	default:
	}
	select {
	case o.micQ <- frame:
	default:
	}
}

// Stop requests session teardown. Safe to call multiple times and from any
// goroutine; the first call wins.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		close(o.stopCh)
		if !o.started.Load() {
			// Never started: no supervisor to run teardown.
			o.emitDone()
			close(o.finished)
		}
	})
}

// FinalAudioComplete records the client's confirmation that it drained
// playback of the closing phrase.
func (o *Orchestrator) FinalAudioComplete() {
	select {
	case o.ctrl <- protocol.InboundFinalAudioComplete:
	default:
	}
}

// Done is closed after the final done event was handed to the sink and all
// session resources are released.
func (o *Orchestrator) Done() <-chan struct{} { return o.finished }

// pumpMic forwards queued frames to the ASR stream.
func (o *Orchestrator) pumpMic() {
	for {
		select {
		case <-o.ctx.Done():
			return
		case frame := <-o.micQ:
			if err := o.asrSession.SendAudio(frame); err != nil {
				o.logger.Warn("asr send failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

// supervise is the single control-path goroutine: it serialises ASR finals,
// voice-activity events, turn outcomes, and shutdown triggers.
func (o *Orchestrator) supervise() {
	var current *turnPipeline
	defer func() {
		o.teardown(current)
	}()

	finals := o.asrSession.Finals()
	events := o.asrSession.Events()

	var hangupC <-chan time.Time
	idleTicker := time.NewTicker(idleCheckInterval)
	defer idleTicker.Stop()

	var lastFinal string
	var lastFinalAt time.Time

	for {
		select {
		case t, ok := <-finals:
			if !ok {
				o.logger.Warn("asr stream closed")
				o.sink.Event(protocol.NewStatus("error: transcription stream lost"))
				return
			}
			text := strings.TrimSpace(t.Text)
			if text == "" || o.hangupPending.Load() {
				continue
			}
			if text == lastFinal && time.Since(lastFinalAt) < debounceWindow {
				continue
			}
			lastFinal, lastFinalAt = text, time.Now()
			o.lastAudio.Store(time.Now().UnixNano())
			if current != nil {
				o.interrupt(current)
				current = nil
			}
			o.history.AppendUser(text)
			o.sink.Event(protocol.NewASRFinal(text))
			o.turnSeq++
			current = o.startTurn(o.turnSeq)

		case e, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			o.sink.Event(protocol.NewVAD(e))
			if e.SpeechOnset() && current != nil && !o.hangupPending.Load() {
				o.interrupt(current)
				current = nil
			}

		case n := <-o.notices:
			if current == nil || n.turnID != current.id {
				continue
			}
			switch n.kind {
			case noticeFinalSegment:
				o.hangupPending.Store(true)
				o.sink.Event(protocol.NewHangup())
				timer := time.NewTimer(o.cfg.HangupTimeout)
				defer timer.Stop()
				hangupC = timer.C
			case noticeDone:
				o.history.AppendAssistant(n.text)
				o.sink.Event(protocol.NewTurnDone())
				current = nil
			case noticeError:
				o.sink.Event(protocol.NewTurnDone())
				current = nil
			case noticeCancelled:
				current = nil
			}

		case <-hangupC:
			o.logger.Info("hangup confirmation timed out")
			return

		case kind := <-o.ctrl:
			if kind == protocol.InboundFinalAudioComplete && o.hangupPending.Load() {
				return
			}

		case <-o.stopCh:
			return

		case <-idleTicker.C:
			idle := time.Since(time.Unix(0, o.lastAudio.Load()))
			if idle > o.cfg.IdleTimeout {
				o.logger.Info("session idle, terminating", slog.Duration("idle", idle))
				return
			}

		case <-o.ctx.Done():
			return
		}
	}
}

// interrupt cancels the speaking turn, waits for its pipeline to unwind, and
// tells the client to drop queued playback.
func (o *Orchestrator) interrupt(p *turnPipeline) {
	p.cancel()
	<-p.done
	o.sink.Event(protocol.NewClear())
	o.metrics.BargeIns.Add(o.ctx, 1)
	o.logger.Debug("barge-in", slog.Int("turn", p.id))
}

// teardown runs exactly once when the supervisor exits. The done event is the
// last thing handed to the sink.
func (o *Orchestrator) teardown(current *turnPipeline) {
	if current != nil {
		current.cancel()
		<-current.done
	}
	o.emitDone()
	o.cancel()
	if err := o.asrSession.Close(); err != nil {
		o.logger.Warn("asr close failed", slog.String("error", err.Error()))
	}
	o.metrics.ActiveSessions.Add(context.Background(), -1)
	o.logger.Info("session ended", slog.Int("turns", o.turnSeq))
	close(o.finished)
}

// emitDone sends the done event at most once.
func (o *Orchestrator) emitDone() {
	o.doneOnce.Do(func() {
		o.sink.Event(protocol.NewDone())
	})
}

// notify reports a turn outcome to the supervisor.
func (o *Orchestrator) notify(n turnNotice) {
	select {
	case o.notices <- n:
	case <-o.ctx.Done():
	}
}
