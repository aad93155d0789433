package terminal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for terminal sessions. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions     prometheus.Gauge
	Admissions         *prometheus.CounterVec
	Evictions          prometheus.Counter
	Kicks              prometheus.Counter
	OutputBytes        prometheus.Counter
	MalformedSequences prometheus.Counter
	LogicPanics        prometheus.Counter
}

// NewMetrics creates and registers all collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "grbbs",
				Name:      "active_sessions",
				Help:      "Number of admitted terminal sessions",
			},
		),
		Admissions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "grbbs",
				Name:      "admissions_total",
				Help:      "Admission attempts by result",
			},
			[]string{"result"}, // admitted/rejected
		),
		Evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "grbbs",
				Name:      "evictions_total",
				Help:      "Sessions closed because the same user logged in elsewhere",
			},
		),
		Kicks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "grbbs",
				Name:      "kicks_total",
				Help:      "Sessions disconnected by an operator",
			},
		),
		OutputBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "grbbs",
				Name:      "output_bytes_total",
				Help:      "Bytes written to terminal transports",
			},
		),
		MalformedSequences: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "grbbs",
				Name:      "malformed_control_sequences_total",
				Help:      "Outbound fragments with an unterminated control sequence",
			},
		),
		LogicPanics: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "grbbs",
				Name:      "logic_panics_total",
				Help:      "Session logic tasks that terminated with a panic",
			},
		),
	}
}

func (m *Metrics) admitted() {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues("admitted").Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) rejected() {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues("rejected").Inc()
}

func (m *Metrics) removed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) evicted() {
	if m == nil {
		return
	}
	m.Evictions.Inc()
}

func (m *Metrics) kicked() {
	if m == nil {
		return
	}
	m.Kicks.Inc()
}

func (m *Metrics) wrote(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

func (m *Metrics) malformed() {
	if m == nil {
		return
	}
	m.MalformedSequences.Inc()
}

func (m *Metrics) panicked() {
	if m == nil {
		return
	}
	m.LogicPanics.Inc()
}
