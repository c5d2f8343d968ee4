package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"floodwatch/internal/logger"
)

// Metrics is the engine's observability surface. Per-event failures are
// counted here, never raised: dropped alerts and skipped detections are
// visible only through these counters.
type Metrics struct {
	registry *prometheus.Registry

	EventsProcessed   prometheus.Counter
	EventErrors       prometheus.Counter
	MalformedFields   prometheus.Counter
	LayerCandidates   *prometheus.CounterVec
	AlertsForwarded   prometheus.Counter
	AlertsSuppressed  prometheus.Counter
	ProcessingSeconds prometheus.Histogram
}

// New creates a registry with the engine collectors. The func arguments read
// live values owned by the state store and aggregator; any may be nil.
func New(trackedSources, stateResets, alertsDropped func() float64) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodwatch_events_processed_total",
			Help: "Events consumed from the inbound feed.",
		}),
		EventErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodwatch_event_errors_total",
			Help: "Events that could not be normalized at all.",
		}),
		MalformedFields: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodwatch_malformed_fields_total",
			Help: "Raw fields replaced by sentinels during normalization.",
		}),
		LayerCandidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "floodwatch_layer_candidates_total",
			Help: "Candidate alerts produced, by detection layer.",
		}, []string{"layer"}),
		AlertsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodwatch_alerts_forwarded_total",
			Help: "Alerts pushed to the outbound feed.",
		}),
		AlertsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "floodwatch_alerts_suppressed_total",
			Help: "Duplicate alerts discarded inside the suppression interval.",
		}),
		ProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "floodwatch_event_processing_seconds",
			Help:    "Per-event detection path latency.",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		}),
	}

	registry.MustRegister(
		m.EventsProcessed,
		m.EventErrors,
		m.MalformedFields,
		m.LayerCandidates,
		m.AlertsForwarded,
		m.AlertsSuppressed,
		m.ProcessingSeconds,
	)

	if trackedSources != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "floodwatch_tracked_sources",
			Help: "Source records currently held by the state store.",
		}, trackedSources))
	}
	if stateResets != nil {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "floodwatch_state_window_resets_total",
			Help: "Per-source window resets performed by the state store.",
		}, stateResets))
	}
	if alertsDropped != nil {
		registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "floodwatch_alerts_dropped_total",
			Help: "Alerts shed from a full outbound buffer.",
		}, alertsDropped))
	}

	return m
}

// Serve exposes /metrics and /healthz on addr. It blocks; run it in a
// goroutine.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Infof("Metrics server listening on %s", addr)
	return srv.ListenAndServe()
}
