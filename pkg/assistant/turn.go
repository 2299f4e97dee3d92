package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errEmptyReply = errors.New("assistant: model returned an empty reply")

type stage int

const (
	stageTranscribe stage = iota
	stageConverse
	stageSpeak
)

func (s stage) String() string {
	switch s {
	case stageTranscribe:
		return "transcribe"
	case stageConverse:
		return "converse"
	case stageSpeak:
		return "speak"
	default:
		return "unknown"
	}
}

// turn is one utterance-to-reply cycle. Its context is cancelled when the
// turn ends for any reason, so late stage results carry a stale id and are
// dropped.
type turn struct {
	id       uint64
	ctx      context.Context
	cancel   context.CancelFunc
	span     trace.Span
	started  time.Time
	userText string
	before   History
}

func (o *Orchestrator) beginTurn(audio []byte, text string) {
	o.turnSeq++
	ctx, cancel := context.WithCancel(o.ctx)
	ctx, span := o.cfg.Tracer.Start(ctx, "assistant.turn",
		trace.WithAttributes(
			attribute.Int64("turn.id", int64(o.turnSeq)),
			attribute.Bool("turn.manual", text != ""),
			attribute.Int("turn.audio_bytes", len(audio)),
		),
	)
	t := &turn{
		id:       o.turnSeq,
		ctx:      ctx,
		cancel:   cancel,
		span:     span,
		started:  time.Now(),
		userText: text,
	}
	o.turn = t
	o.setState(StateProcessing)

	o.logger.Info("turn started", "turn", t.id, "audio_bytes", len(audio), "manual", text != "")

	if text != "" {
		o.startConverse(t)
		return
	}
	o.runStage(t, stageTranscribe, func(ctx context.Context) (string, error) {
		return o.convo.SpeechToText(ctx, audio)
	})
}

func (o *Orchestrator) startConverse(t *turn) {
	msgs := o.history.Messages(o.cfg.ContextTurns)
	userText := t.userText
	o.runStage(t, stageConverse, func(ctx context.Context) (string, error) {
		return o.convo.Converse(ctx, userText, msgs)
	})
}

// runStage runs fn off the event loop and posts its result back. Release
// waits for every stage worker.
func (o *Orchestrator) runStage(t *turn, s stage, fn func(context.Context) (string, error)) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, span := o.cfg.Tracer.Start(t.ctx, "assistant."+s.String())
		start := time.Now()

		var (
			text string
			err  error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%s stage panicked: %v", s, r)
				}
			}()
			text, err = fn(ctx)
		}()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		o.post(stageEvent{
			turnID:  t.id,
			stage:   s,
			text:    text,
			err:     err,
			elapsed: time.Since(start),
		})
	}()
}

func (o *Orchestrator) onStage(ev stageEvent) {
	t := o.turn
	if t == nil || t.id != ev.turnID {
		o.logger.Debug("stale stage result dropped", "turn", ev.turnID, "stage", ev.stage)
		return
	}
	o.cfg.Metrics.StageCompleted(ev.stage.String(), ev.elapsed, ev.err)

	switch ev.stage {
	case stageTranscribe:
		if ev.err != nil {
			o.failTurn(TranscriptionFailure, "could not transcribe speech", ev.err)
			return
		}
		text := strings.TrimSpace(ev.text)
		if text == "" {
			o.logger.Info("empty transcript, listening again", "turn", t.id)
			o.finishTurn(OutcomeEmpty)
			o.setState(StateListening)
			return
		}
		t.userText = text
		o.logger.Debug("transcribed", "turn", t.id, "text", text, "elapsed", ev.elapsed)
		o.startConverse(t)

	case stageConverse:
		if ev.err != nil {
			o.failTurn(ConversationFailure, "could not get a reply", ev.err)
			return
		}
		reply := strings.TrimSpace(ev.text)
		if reply == "" {
			o.failTurn(ConversationFailure, "empty reply", errEmptyReply)
			return
		}
		t.before = o.history
		o.history = o.history.Append(NewConversationItem(t.userText, reply))
		o.logger.Debug("reply received", "turn", t.id, "chars", len(reply), "elapsed", ev.elapsed)
		o.setState(StateSpeaking)
		o.runStage(t, stageSpeak, func(ctx context.Context) (string, error) {
			return "", o.convo.TextToSpeech(ctx, reply)
		})

	case stageSpeak:
		if ev.err != nil {
			if errors.Is(ev.err, ErrSpeechNotStarted) {
				o.history = t.before
			}
			o.failTurn(SpeechSynthesisFailure, "could not speak the reply", ev.err)
			return
		}
		o.finishTurn(OutcomeCompleted)
		o.setState(o.restState())
	}
}

// finishTurn cancels the current turn and closes its span.
func (o *Orchestrator) finishTurn(outcome TurnOutcome) {
	t := o.turn
	if t == nil {
		return
	}
	o.turn = nil
	t.cancel()

	elapsed := time.Since(t.started)
	t.span.SetAttributes(attribute.String("turn.outcome", string(outcome)))
	if outcome == OutcomeFailed {
		t.span.SetStatus(codes.Error, "turn failed")
	}
	t.span.End()

	o.cfg.Metrics.TurnFinished(outcome, elapsed)
	o.logger.Info("turn finished", "turn", t.id, "outcome", outcome, "elapsed", elapsed)
}

func (o *Orchestrator) failTurn(kind FailureKind, message string, err error) {
	if o.turn != nil {
		o.turn.span.RecordError(err)
	}
	o.finishTurn(OutcomeFailed)
	o.raise(kind, message, err)
}
