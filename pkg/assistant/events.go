package assistant

import "time"

// event is anything the orchestrator's mailbox accepts.
type event interface {
	eventName() string
}

// callEvent runs fn on the event loop. Intents use it so that every state
// mutation happens on one goroutine.
type callEvent struct {
	fn   func()
	done chan struct{}
}

type faceEvent struct {
	result FaceDetectionResult
}

type audioEvent struct {
	obs AudioObservation
}

type stageEvent struct {
	turnID  uint64
	stage   stage
	text    string
	err     error
	elapsed time.Duration
}

// sensorLostEvent reports a sensing stream that ended while the session
// was still running.
type sensorLostEvent struct {
	source string
}

type timerKind int

const (
	timerListen timerKind = iota
	timerRecover
)

type timerEvent struct {
	kind timerKind
	gen  uint64
}

func (callEvent) eventName() string { return "call" }
func (faceEvent) eventName() string { return "face" }
func (audioEvent) eventName() string { return "audio" }
func (stageEvent) eventName() string { return "stage" }
func (timerEvent) eventName() string { return "timer" }
func (sensorLostEvent) eventName() string { return "sensor_lost" }
