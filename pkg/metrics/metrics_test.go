package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/teslashibe/go-attend/pkg/assistant"
)

func TestStateChanged(t *testing.T) {
	m := New("test")

	if got := testutil.ToFloat64(m.State.WithLabelValues("idle")); got != 1 {
		t.Errorf("initial idle gauge = %v, want 1", got)
	}

	m.StateChanged(assistant.StateIdle, assistant.StateDetecting)
	m.StateChanged(assistant.StateDetecting, assistant.StateListening)

	tests := []struct {
		state string
		want  float64
	}{
		{"idle", 0},
		{"detecting", 0},
		{"listening", 1},
		{"speaking", 0},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.State.WithLabelValues(tt.state)); got != tt.want {
			t.Errorf("state %s gauge = %v, want %v", tt.state, got, tt.want)
		}
	}

	if got := testutil.ToFloat64(m.Transitions.WithLabelValues("idle", "detecting")); got != 1 {
		t.Errorf("idle->detecting = %v, want 1", got)
	}
}

func TestTurnsAndStages(t *testing.T) {
	m := New("test")

	m.TurnFinished(assistant.OutcomeCompleted, 2*time.Second)
	m.TurnFinished(assistant.OutcomeCompleted, 3*time.Second)
	m.TurnFinished(assistant.OutcomeInterrupted, time.Second)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("completed")); got != 2 {
		t.Errorf("completed turns = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("interrupted")); got != 1 {
		t.Errorf("interrupted turns = %v, want 1", got)
	}

	m.StageCompleted("transcribe", 300*time.Millisecond, nil)
	m.StageCompleted("converse", time.Second, errors.New("quota"))
	if count := testutil.CollectAndCount(m.StageDuration); count != 2 {
		t.Errorf("stage series = %d, want 2", count)
	}

	m.FailureRaised(assistant.ConversationFailure)
	m.ListenTimedOut()
	if got := testutil.ToFloat64(m.FailuresTotal.WithLabelValues("conversation")); got != 1 {
		t.Errorf("conversation failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ListenTimeouts); got != 1 {
		t.Errorf("listen timeouts = %v, want 1", got)
	}
}

func TestHandler(t *testing.T) {
	m := New("")
	m.ListenTimedOut()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{"attend_listen_timeouts_total 1", `attend_state{state="idle"} 1`, "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
