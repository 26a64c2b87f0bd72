// Package metrics exposes Prometheus collectors for the console.
package metrics

import (
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stream outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Metrics holds every collector on its own registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	Registry *prometheus.Registry

	streams        *prometheus.CounterVec
	fragments      prometheus.Histogram
	streamDuration prometheus.Histogram
	envelopes      *prometheus.CounterVec
	dropped        prometheus.Counter
	sessions       prometheus.Gauge
	persistWrites  *prometheus.CounterVec
	authAttempts   *prometheus.CounterVec
	storage        *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omni_streams_total",
			Help: "Model response streams by outcome.",
		}, []string{"outcome"}),
		fragments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omni_stream_fragments",
			Help:    "Fragments received per stream.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "omni_stream_duration_seconds",
			Help:    "Time from placeholder to settled message.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omni_crosstab_envelopes_total",
			Help: "Cross-tab envelopes by kind and direction.",
		}, []string{"kind", "direction"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "omni_crosstab_dropped_total",
			Help: "Envelopes dropped because a tab inbox was full.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "omni_sessions_open",
			Help: "Open console sessions.",
		}),
		persistWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omni_persist_writes_total",
			Help: "Transcript snapshot writes by result.",
		}, []string{"result"}),
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omni_auth_attempts_total",
			Help: "Signup and login attempts by result.",
		}, []string{"op", "result"}),
		storage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "omni_storage_changes_total",
			Help: "Committed key/value writes and deletes by key family.",
		}, []string{"family", "op"}),
	}
	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "omni_goroutines",
		Help: "Number of active goroutines.",
	}, func() float64 { return float64(runtime.NumGoroutine()) })

	m.Registry.MustRegister(m.streams, m.fragments, m.streamDuration, m.envelopes,
		m.dropped, m.sessions, m.persistWrites, m.authAttempts, m.storage, goroutines)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// StreamSettled records one settled stream.
func (m *Metrics) StreamSettled(outcome string, fragments int, seconds float64) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(outcome).Inc()
	m.fragments.Observe(float64(fragments))
	m.streamDuration.Observe(seconds)
}

// Envelope records a cross-tab envelope sent or applied.
func (m *Metrics) Envelope(kind, direction string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(kind, direction).Inc()
}

// Dropped records an envelope dropped by a full inbox.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// SessionOpened increments the open-session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

// SessionClosed decrements the open-session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// PersistWrite records a transcript write result: written, skipped or error.
func (m *Metrics) PersistWrite(result string) {
	if m == nil {
		return
	}
	m.persistWrites.WithLabelValues(result).Inc()
}

// AuthAttempt records a signup or login result.
func (m *Metrics) AuthAttempt(op, result string) {
	if m == nil {
		return
	}
	m.authAttempts.WithLabelValues(op, result).Inc()
}

// StorageChange records a committed write or delete of a key family.
func (m *Metrics) StorageChange(family string, deleted bool) {
	if m == nil {
		return
	}
	op := "set"
	if deleted {
		op = "delete"
	}
	m.storage.WithLabelValues(family, op).Inc()
}
