package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Orchestrator owns the assistant state machine. All state, history and
// free-mode mutations happen on a single event-loop goroutine fed by a
// mailbox; sensing streams, stage workers, timers and intents only post
// events into it.
type Orchestrator struct {
	cfg    Config
	faces  FaceSignalSource
	voice  VoiceActivitySource
	convo  ConversationService
	logger *slog.Logger

	events  chan event
	closeCh chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pub     *broadcaster

	lifeMu      sync.Mutex
	started     bool
	released    bool
	stopStreams context.CancelFunc
	releaseOnce sync.Once

	// Event-loop owned.
	state       State
	history     History
	freeMode    bool
	lastFace    FaceDetectionResult
	turn        *turn
	turnSeq     uint64
	sensorsDown bool
	listenTimer *time.Timer
	listenStart time.Time
	listenGen   uint64
	recoverGen  uint64

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates an orchestrator in the Idle state. Its event loop runs until
// Release is called.
func New(faces FaceSignalSource, voice VoiceActivitySource, convo ConversationService, opts ...Option) (*Orchestrator, error) {
	if faces == nil || voice == nil || convo == nil {
		return nil, ErrNilCollaborator
	}

	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("assistant: invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = DefaultConfig().Tracer
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      *cfg,
		faces:    faces,
		voice:    voice,
		convo:    convo,
		logger:   cfg.Logger.With("component", "assistant.orchestrator"),
		events:   make(chan event, cfg.MailboxSize),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		pub:      newBroadcaster(),
		state:    StateIdle,
		history:  NewHistory(cfg.InitialHistory...),
		freeMode: cfg.FreeMode,
	}
	o.publish()

	go o.run()
	return o, nil
}

// Start moves Idle to Detecting, initializes voice activity detection and
// begins consuming both sensing streams. Sensor failures are surfaced once on
// the error stream and returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()

	if o.released {
		return ErrReleased
	}
	if o.started {
		return ErrAlreadyStarted
	}
	o.started = true

	o.faces.SetDetectionSensitivity(o.cfg.Sensitivity)

	if !o.voice.InitializeVAD(ctx) {
		o.sensorFailure("voice activity detection unavailable", nil)
		return fmt.Errorf("%w: voice activity detection unavailable", ErrSensorInit)
	}
	o.voice.SetVADThreshold(o.cfg.VADThreshold)

	streamCtx, stop := context.WithCancel(ctx)
	faceCh, err := o.faces.StartFaceDetection(streamCtx)
	if err != nil {
		stop()
		o.sensorFailure("face detection unavailable", err)
		return fmt.Errorf("%w: face detection: %w", ErrSensorInit, err)
	}
	audioCh, err := o.voice.StartAudioDetection(streamCtx)
	if err != nil {
		stop()
		o.faces.StopFaceDetection()
		o.sensorFailure("microphone unavailable", err)
		return fmt.Errorf("%w: audio detection: %w", ErrSensorInit, err)
	}
	o.stopStreams = stop

	o.call(func() {
		if o.state == StateIdle {
			o.setState(StateDetecting)
		}
	})

	o.wg.Add(2)
	go o.forwardFaces(streamCtx, faceCh)
	go o.forwardAudio(streamCtx, audioCh)

	o.logger.Info("assistant started",
		"sensitivity", o.cfg.Sensitivity,
		"vad_threshold", o.cfg.VADThreshold,
		"listen_timeout", o.cfg.ListenTimeout,
	)
	return nil
}

// Release stops both sensing sources, cancels any in-flight turn and frees
// the microphone and speech engine. It is idempotent.
func (o *Orchestrator) Release() {
	o.releaseOnce.Do(func() {
		o.lifeMu.Lock()
		o.released = true
		stop := o.stopStreams
		o.lifeMu.Unlock()

		if stop != nil {
			stop()
		}
		o.faces.StopFaceDetection()
		o.voice.StopAudioDetection()

		close(o.closeCh)
		<-o.done

		o.convo.StopSpeaking()
		if err := o.voice.Release(); err != nil {
			o.logger.Warn("voice source release failed", "error", err)
		}
		o.wg.Wait()
		o.pub.close()

		o.logger.Info("assistant released")
	})
}

// ProcessFaceFrame runs one frame through face detection and evaluates the
// attention gate. It blocks only for the detection call.
func (o *Orchestrator) ProcessFaceFrame(ctx context.Context, frame []byte) (FaceDetectionResult, error) {
	if o.isReleased() {
		return FaceDetectionResult{}, ErrReleased
	}

	result, err := o.faces.DetectFaces(ctx, frame)
	if err != nil {
		return result, fmt.Errorf("assistant: detect faces: %w", err)
	}
	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}

	if !o.call(func() { o.onFace(result) }) {
		return result, ErrReleased
	}
	return result, nil
}

// ToggleFreeMode flips free mode and returns the new value. It causes no
// immediate transition; the next finished turn honours it.
func (o *Orchestrator) ToggleFreeMode() bool {
	var on bool
	if !o.call(func() {
		o.freeMode = !o.freeMode
		on = o.freeMode
		o.logger.Info("free mode toggled", "free_mode", on)
		o.publish()
	}) {
		return o.Snapshot().FreeMode
	}
	return on
}

// SetFreeMode sets free mode explicitly.
func (o *Orchestrator) SetFreeMode(on bool) {
	o.call(func() {
		if o.freeMode == on {
			return
		}
		o.freeMode = on
		o.logger.Info("free mode set", "free_mode", on)
		o.publish()
	})
}

// InterruptSpeaking stops playback while Speaking, or abandons the
// in-flight transcription or model call while Processing. The abandoned
// turn is not recorded. In any other state it does nothing.
func (o *Orchestrator) InterruptSpeaking() {
	o.call(func() {
		switch o.state {
		case StateSpeaking:
			o.convo.StopSpeaking()
			o.finishTurn(OutcomeInterrupted)
			o.setState(o.restState())
		case StateProcessing:
			o.finishTurn(OutcomeInterrupted)
			o.setState(o.restState())
		default:
			o.logger.Debug("interrupt ignored", "state", o.state)
		}
	})
}

// ClearConversationHistory empties the history. The state is untouched.
func (o *Orchestrator) ClearConversationHistory() {
	o.call(func() {
		o.history = History{}
		o.logger.Info("conversation history cleared")
		o.publish()
	})
}

// TriggerManual starts listening without a face, from Idle or Detecting.
// A non-empty text skips listening and transcription and runs the turn on
// that text directly. It reports whether the trigger was accepted.
func (o *Orchestrator) TriggerManual(text string) bool {
	var accepted bool
	o.call(func() {
		if o.state != StateIdle && o.state != StateDetecting {
			o.logger.Debug("manual trigger ignored", "state", o.state)
			return
		}
		accepted = true
		if text == "" {
			o.setState(StateListening)
			return
		}
		o.beginTurn(nil, text)
	})
	return accepted
}

// Resume moves Idle to Detecting. It is refused after a sensor failure.
func (o *Orchestrator) Resume() bool {
	var accepted bool
	o.call(func() {
		if o.state != StateIdle || o.sensorsDown {
			return
		}
		accepted = true
		o.setState(StateDetecting)
	})
	return accepted
}

// SetSensitivity changes the face confidence gate.
func (o *Orchestrator) SetSensitivity(s float64) error {
	if s < 0 || s > 1 {
		return fmt.Errorf("assistant: sensitivity must be in [0,1], got %v", s)
	}
	o.faces.SetDetectionSensitivity(s)
	o.call(func() { o.cfg.Sensitivity = s })
	return nil
}

// SetVADThreshold changes the voice-activity threshold.
func (o *Orchestrator) SetVADThreshold(t float64) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("assistant: vad threshold must be in [0,1], got %v", t)
	}
	o.voice.SetVADThreshold(t)
	return nil
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.Snapshot().State }

// History returns the current history.
func (o *Orchestrator) History() History { return o.Snapshot().History }

// LastFace returns the most recent face result.
func (o *Orchestrator) LastFace() FaceDetectionResult { return o.Snapshot().LastFace }

// FreeMode returns the free-mode flag.
func (o *Orchestrator) FreeMode() bool { return o.Snapshot().FreeMode }

// Snapshot returns the most recently published snapshot.
func (o *Orchestrator) Snapshot() Snapshot {
	o.snapMu.RLock()
	defer o.snapMu.RUnlock()
	return o.snap
}

// Subscribe returns a channel holding the latest snapshot. A slow reader
// skips intermediate snapshots but never sees a partial one. Call the
// returned function to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	return o.pub.subscribeSnapshots()
}

// Errors returns a channel of failures emitted after the call. Delivery is
// best effort: a full subscriber misses failures.
func (o *Orchestrator) Errors() (<-chan Failure, func()) {
	return o.pub.subscribeErrors()
}

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case <-o.closeCh:
			o.shutdown()
			return
		case ev := <-o.events:
			o.handle(ev)
		}
	}
}

func (o *Orchestrator) handle(ev event) {
	switch ev := ev.(type) {
	case callEvent:
		ev.fn()
		close(ev.done)
	case faceEvent:
		o.onFace(ev.result)
	case audioEvent:
		o.onAudio(ev.obs)
	case stageEvent:
		o.onStage(ev)
	case timerEvent:
		o.onTimer(ev)
	case sensorLostEvent:
		o.onSensorLost(ev)
	default:
		o.logger.Warn("unknown event", "event", ev.eventName())
	}
}

func (o *Orchestrator) shutdown() {
	o.stopListenTimer()
	o.recoverGen++
	o.finishTurn(OutcomeInterrupted)
	o.cancel()
	if o.state != StateIdle {
		o.setState(StateIdle)
	}
}

// post enqueues an event unless the orchestrator is closing.
func (o *Orchestrator) post(ev event) bool {
	select {
	case <-o.closeCh:
		return false
	default:
	}
	select {
	case o.events <- ev:
		return true
	case <-o.closeCh:
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (o *Orchestrator) call(fn func()) bool {
	ev := callEvent{fn: fn, done: make(chan struct{})}
	if !o.post(ev) {
		return false
	}
	select {
	case <-ev.done:
		return true
	case <-o.done:
		return false
	}
}

func (o *Orchestrator) isReleased() bool {
	o.lifeMu.Lock()
	defer o.lifeMu.Unlock()
	return o.released
}

func (o *Orchestrator) forwardFaces(ctx context.Context, ch <-chan FaceDetectionResult) {
	defer o.wg.Done()
	for {
		select {
		case <-o.closeCh:
			return
		case r, ok := <-ch:
			if !ok {
				o.streamClosed(ctx, "camera")
				return
			}
			if !o.post(faceEvent{result: r}) {
				return
			}
		}
	}
}

func (o *Orchestrator) forwardAudio(ctx context.Context, ch <-chan AudioObservation) {
	defer o.wg.Done()
	for {
		select {
		case <-o.closeCh:
			return
		case obs, ok := <-ch:
			if !ok {
				o.streamClosed(ctx, "microphone")
				return
			}
			if !o.post(audioEvent{obs: obs}) {
				return
			}
		}
	}
}

// streamClosed reports a stream that ended on its own. Streams closed by
// Release or by the Start context are expected.
func (o *Orchestrator) streamClosed(ctx context.Context, source string) {
	if ctx.Err() != nil {
		o.logger.Debug("sensing stream stopped", "source", source)
		return
	}
	o.logger.Warn("sensing stream closed unexpectedly", "source", source)
	o.post(sensorLostEvent{source: source})
}

// onSensorLost abandons any turn and ends the session. It fires once even
// when both streams die.
func (o *Orchestrator) onSensorLost(ev sensorLostEvent) {
	if o.sensorsDown {
		return
	}
	if o.state == StateSpeaking {
		o.convo.StopSpeaking()
	}
	o.finishTurn(OutcomeInterrupted)
	o.raise(SensorInitFailure, ev.source+" stream ended", ErrStreamClosed)
}

func (o *Orchestrator) onFace(r FaceDetectionResult) {
	o.lastFace = r
	if o.state == StateDetecting && r.Present(o.cfg.Sensitivity) {
		o.logger.Info("attention detected",
			"faces", r.FaceCount,
			"confidence", r.Confidence,
		)
		o.setState(StateListening)
		return
	}
	o.publish()
}

func (o *Orchestrator) onAudio(obs AudioObservation) {
	switch obs.Kind {
	case ObservationSpeechStarted:
		// Speech near the deadline gets one more window, capped at twice
		// the timeout from when listening began.
		if o.state == StateListening {
			o.armListenTimer(min(o.cfg.ListenTimeout, o.listenLeft(2*o.cfg.ListenTimeout)))
		}
	case ObservationSpeechEnded:
		if o.state != StateListening {
			o.logger.Debug("utterance ignored", "state", o.state, "bytes", len(obs.Audio))
			return
		}
		if len(obs.Audio) == 0 {
			return
		}
		o.beginTurn(obs.Audio, "")
	case ObservationError:
		o.logger.Warn("voice activity source error", "reason", obs.Reason)
	}
}

func (o *Orchestrator) onTimer(ev timerEvent) {
	switch ev.kind {
	case timerListen:
		if ev.gen != o.listenGen || o.state != StateListening {
			return
		}
		o.listenTimer = nil
		o.cfg.Metrics.ListenTimedOut()
		o.logger.Info("no speech before listen timeout", "timeout", o.cfg.ListenTimeout)
		o.setState(o.restState())
	case timerRecover:
		if ev.gen != o.recoverGen || o.state != StateError {
			return
		}
		o.setState(StateIdle)
		if o.freeMode && !o.sensorsDown {
			o.setState(StateDetecting)
		}
	}
}

// setState is the only place the state changes.
func (o *Orchestrator) setState(next State) {
	prev := o.state
	if prev == StateListening && next != StateListening {
		o.stopListenTimer()
	}
	o.state = next
	if next == StateListening && prev != StateListening {
		// An empty transcript returns here from Processing and keeps the
		// deadline it already had.
		if prev != StateProcessing {
			o.listenStart = time.Now()
		}
		o.armListenTimer(o.listenLeft(o.cfg.ListenTimeout))
	}

	if prev != next {
		o.cfg.Metrics.StateChanged(prev, next)
		o.logger.Debug("state changed", "from", prev, "to", next)
	}
	o.publish()
}

func (o *Orchestrator) restState() State {
	if o.freeMode && !o.sensorsDown {
		return StateDetecting
	}
	return StateIdle
}

// listenLeft is what remains of window measured from when listening began.
func (o *Orchestrator) listenLeft(window time.Duration) time.Duration {
	return max(time.Until(o.listenStart.Add(window)), 0)
}

func (o *Orchestrator) armListenTimer(d time.Duration) {
	o.stopListenTimer()
	gen := o.listenGen
	o.listenTimer = time.AfterFunc(d, func() {
		o.post(timerEvent{kind: timerListen, gen: gen})
	})
}

func (o *Orchestrator) stopListenTimer() {
	if o.listenTimer != nil {
		o.listenTimer.Stop()
		o.listenTimer = nil
	}
	o.listenGen++
}

// raise moves to Error, emits the failure once and schedules recovery.
func (o *Orchestrator) raise(kind FailureKind, message string, err error) {
	f := newFailure(kind, message, err)
	if kind == SensorInitFailure {
		o.sensorsDown = true
	}

	o.setState(StateError)
	o.pub.emit(f)
	o.cfg.Metrics.FailureRaised(kind)
	o.logger.Error("assistant failure", "kind", kind, "message", message, "error", err)

	o.recoverGen++
	gen := o.recoverGen
	time.AfterFunc(o.cfg.ErrorRecoveryDelay, func() {
		o.post(timerEvent{kind: timerRecover, gen: gen})
	})
}

func (o *Orchestrator) sensorFailure(message string, err error) {
	o.call(func() { o.raise(SensorInitFailure, message, err) })
}

func (o *Orchestrator) publish() {
	s := Snapshot{
		State:     o.state,
		FreeMode:  o.freeMode,
		LastFace:  o.lastFace,
		History:   o.history,
		UpdatedAt: time.Now(),
	}
	o.snapMu.Lock()
	o.snap = s
	o.snapMu.Unlock()
	o.pub.publish(s)
}
