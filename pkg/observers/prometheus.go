package observers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sproutbotics/robin/pkg/metrics"
)

var (
	metricStateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robin_state_transitions_total",
		Help: "Turn controller state transitions",
	}, []string{"from", "to"})

	metricTurnsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robin_turns_started_total",
		Help: "Turns started",
	})

	metricTurnsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robin_turns_finished_total",
		Help: "Turns finished by outcome",
	}, []string{"outcome"})

	metricSilenceDetections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robin_silence_detections_total",
		Help: "Silence detector firings",
	})

	metricStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "robin_stage_latency_ms",
		Help:    "Pipeline stage latency in milliseconds",
		Buckets: prometheus.ExponentialBuckets(50, 1.6, 10),
	}, []string{"stage"})

	metricDisplayClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robin_display_clients",
		Help: "Currently connected display clients",
	})

	metricDisplayClientsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robin_display_clients_dropped_total",
		Help: "Display clients dropped after transport errors",
	})
)

// PrometheusObserver exports pipeline events as Prometheus metrics.
// Collectors are package-level and registered once on the default
// registerer, so multiple observer instances share them.
type PrometheusObserver struct{}

func NewPrometheusObserver() *PrometheusObserver {
	return &PrometheusObserver{}
}

func (o *PrometheusObserver) RecordEvent(ev metrics.MetricsEvent) {
	switch ev.Name {
	case "state_changed":
		if ev.Tags != nil {
			metricStateTransitions.WithLabelValues(ev.Tags["from"], ev.Tags["to"]).Inc()
		}
	case "turn_started":
		metricTurnsStarted.Inc()
	case "turn_finished":
		outcome := ""
		if ev.Tags != nil {
			outcome = ev.Tags["outcome"]
		}
		metricTurnsFinished.WithLabelValues(outcome).Inc()
	case "silence_detected":
		metricSilenceDetections.Inc()
	case "stt_done":
		metricStageLatency.WithLabelValues("stt").Observe(ev.Value)
	case "llm_done":
		metricStageLatency.WithLabelValues("llm").Observe(ev.Value)
	case "tts_done":
		metricStageLatency.WithLabelValues("tts").Observe(ev.Value)
	case "playback_done":
		metricStageLatency.WithLabelValues("playback").Observe(ev.Value)
	case "client_connected":
		metricDisplayClients.Inc()
	case "client_disconnected":
		metricDisplayClients.Dec()
	case "client_dropped":
		metricDisplayClientsDropped.Inc()
	}
}

var _ metrics.Observer = (*PrometheusObserver)(nil)
