package metrics

import "time"

// Observer consumes the engine's event stream. The engine runs its
// sinks behind an AsyncObserver, so a single goroutine delivers events
// in order.
type Observer interface {
	RecordEvent(ev MetricsEvent)
}

// MetricsEvent is one entry in that stream: turn lifecycle
// (turn_started, state_changed, turn_finished), stage results
// (stt_done, llm_done, tts_done, playback_done), display client churn,
// and provider breaker activity. Value carries the stage latency in
// milliseconds where one applies. Tags hold low-cardinality labels
// such as turn_id, provider, and outcome; Fields hold free-form
// payloads such as the redacted transcript.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// NoopObserver discards everything.
type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}
