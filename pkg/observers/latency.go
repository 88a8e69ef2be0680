package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/metrics"
)

// LatencyObserver reconstructs per-turn stage timings from the event
// stream and logs one summary line when the turn finishes. A stage that
// never ran reports -1.
type LatencyObserver struct {
	log *slog.Logger

	mu     sync.Mutex
	traces map[string]*trace
}

type trace struct {
	started     time.Time
	captured    time.Time
	transcribed time.Time
	replied     time.Time
	finished    time.Time
	outcome     string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{log: log, traces: make(map[string]*trace)}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	turnID := ev.Tags["turn_id"]
	if turnID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[turnID]
	if t == nil {
		t = &trace{}
		o.traces[turnID] = t
	}
	switch ev.Name {
	case "turn_started":
		markOnce(&t.started, ev.Time)
	case "capture_stopped":
		markOnce(&t.captured, ev.Time)
	case "stt_done":
		markOnce(&t.transcribed, ev.Time)
	case "llm_done":
		markOnce(&t.replied, ev.Time)
	case "turn_finished":
		t.finished = ev.Time
		t.outcome = ev.Tags["outcome"]
		o.summarizeLocked(turnID, t)
		delete(o.traces, turnID)
	}
}

func (o *LatencyObserver) summarizeLocked(turnID string, t *trace) {
	o.log.Info("turn_latency",
		"turn_id", turnID,
		"outcome", t.outcome,
		"listening_ms", spanMs(t.started, t.captured),
		"stt_ms", spanMs(t.captured, t.transcribed),
		"llm_ms", spanMs(t.transcribed, t.replied),
		"speak_ms", spanMs(t.replied, t.finished),
		"turn_ms", spanMs(t.started, t.finished),
	)
}

func markOnce(at *time.Time, when time.Time) {
	if at.IsZero() {
		*at = when
	}
}

func spanMs(from, to time.Time) int64 {
	if from.IsZero() || to.IsZero() {
		return -1
	}
	return to.Sub(from).Milliseconds()
}

var _ metrics.Observer = (*LatencyObserver)(nil)
