package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/callcraft-ai/callcraft/internal/protocol"
	"github.com/callcraft-ai/callcraft/pkg/provider/llm"
)

// errLLMStream marks a model stream that failed mid-turn. It cancels the
// turn's group so segments still queued for synthesis are dropped unspoken;
// the turn ends with turn_done and no further audio.
var errLLMStream = errors.New("session: llm stream failed")

const (
	// llmTemperature and llmMaxTokens are the sampling parameters for
	// realtime persona replies. Replies must stay short enough to speak.
	llmTemperature = 0.2
	llmMaxTokens   = 256
)

// noticeKind enumerates what a turn pipeline reports back to the supervisor.
type noticeKind int

const (
	// noticeFinalSegment fires after the segment_done of the hangup closing
	// phrase has been sent.
	noticeFinalSegment noticeKind = iota

	// noticeDone fires when the pipeline finished cleanly; text carries the
	// assistant reply to commit.
	noticeDone

	// noticeError fires when the model stream failed mid-turn.
	noticeError

	// noticeCancelled fires when the pipeline was cancelled (barge-in or
	// teardown) before completing.
	noticeCancelled
)

// turnNotice is one report from a pipeline to the supervisor.
type turnNotice struct {
	turnID int
	kind   noticeKind
	text   string
}

// turnPipeline runs one assistant turn: stream the model reply, cut it into
// segments, synthesise each segment serially, and report the outcome. All
// client-visible events for the turn are written to the sink by the pipeline;
// the supervisor only appends hangup/turn_done afterwards.
type turnPipeline struct {
	id     int
	cancel context.CancelFunc
	done   chan struct{}
}

// startTurn launches the pipeline for one user utterance. History must
// already contain the utterance.
func (o *Orchestrator) startTurn(id int) *turnPipeline {
	ctx, cancel := context.WithCancel(o.ctx)
	p := &turnPipeline{id: id, cancel: cancel, done: make(chan struct{})}
	go o.runTurn(ctx, p)
	return p
}

func (o *Orchestrator) runTurn(ctx context.Context, p *turnPipeline) {
	defer close(p.done)
	defer p.cancel()

	started := time.Now()
	req := llm.CompletionRequest{
		SystemPrompt: SystemPrompt(o.persona),
		Messages:     o.history.Snapshot(),
		Temperature:  llmTemperature,
		MaxTokens:    llmMaxTokens,
	}
	chunks, err := o.cfg.LLM.StreamCompletion(ctx, req)
	if err != nil {
		o.logger.Error("llm stream failed to start", slog.Int("turn", p.id), slog.String("error", err.Error()))
		o.metrics.RecordProviderError(ctx, "llm", "stream_start")
		o.notify(turnNotice{turnID: p.id, kind: noticeError})
		return
	}

	extractor := NewSegmentExtractor()
	segCh := make(chan Segment, 8)

	g, gctx := errgroup.WithContext(ctx)

	// Token consumer: forward safe text, queue completed segments.
	g.Go(func() error {
		defer close(segCh)
		firstToken := true
		for chunk := range chunks {
			if chunk.FinishReason == "error" {
				o.logger.Warn("llm stream error", slog.Int("turn", p.id), slog.String("error", chunk.Text))
				o.metrics.RecordProviderError(gctx, "llm", "stream")
				return errLLMStream
			}
			if chunk.Text == "" {
				continue
			}
			if firstToken {
				firstToken = false
				o.metrics.LLMFirstToken.Record(gctx, time.Since(started).Seconds())
			}
			forward, segs, hangup := extractor.Append(chunk.Text)
			if forward != "" {
				o.sink.Event(protocol.NewLLMToken(forward))
			}
			for _, seg := range segs {
				select {
				case segCh <- seg:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if hangup {
				// Anything after the sentinel is discarded; stop reading.
				return nil
			}
		}
		forward, segs := extractor.Flush()
		if forward != "" {
			o.sink.Event(protocol.NewLLMToken(forward))
		}
		for _, seg := range segs {
			select {
			case segCh <- seg:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Synthesis consumer: one segment at a time, in order. Group cancellation
	// wins over queued segments so a failed model stream produces no more
	// audio.
	g.Go(func() error {
		for {
			select {
			case seg, ok := <-segCh:
				if !ok {
					return nil
				}
				if err := o.speakSegment(gctx, p.id, seg); err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	err = g.Wait()
	// Release the provider goroutine: cancel the stream, then drain it.
	p.cancel()
	for range chunks {
	}

	switch {
	case errors.Is(err, errLLMStream):
		o.metrics.RecordTurn(ctx, "error")
		o.notify(turnNotice{turnID: p.id, kind: noticeError})
	case err != nil || ctx.Err() != nil:
		o.metrics.RecordTurn(ctx, "cancelled")
		o.notify(turnNotice{turnID: p.id, kind: noticeCancelled})
	case extractor.HangupDetected():
		o.metrics.RecordTurn(ctx, "hangup")
		o.notify(turnNotice{turnID: p.id, kind: noticeDone, text: extractor.FinalText()})
	default:
		o.metrics.RecordTurn(ctx, "done")
		o.notify(turnNotice{turnID: p.id, kind: noticeDone, text: extractor.FinalText()})
	}
}

// speakSegment synthesises one segment and streams its audio to the sink. A
// synthesis failure skips the segment but still emits segment_done so the
// client's segment accounting stays intact.
func (o *Orchestrator) speakSegment(ctx context.Context, turnID int, seg Segment) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if seg.Text != "" {
		dispatched := time.Now()
		audio, err := o.cfg.TTS.Synthesize(ctx, seg.Text)
		if err != nil {
			o.logger.Warn("tts synthesis failed",
				slog.Int("turn", turnID),
				slog.Int("segment_len", len(seg.Text)),
				slog.String("error", err.Error()))
			o.metrics.RecordProviderError(ctx, "tts", "synthesize")
		} else {
			first := true
			for chunk := range audio {
				if first {
					first = false
					o.metrics.TTSFirstAudio.Record(ctx, time.Since(dispatched).Seconds())
					o.sink.Event(protocol.NewAudioStart())
				}
				o.sink.Audio(chunk)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
	o.sink.Event(protocol.NewSegmentDone(seg.Final))
	if seg.Final {
		o.notify(turnNotice{turnID: turnID, kind: noticeFinalSegment})
	}
	return nil
}
