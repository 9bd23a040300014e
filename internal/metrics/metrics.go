// Package metrics exposes the kiosk's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for sessions and the gallery.
// All methods are safe on a nil receiver.
type Metrics struct {
	// Terminal outcomes by session kind
	SessionOutcomes *prometheus.CounterVec

	// Wall-clock session duration by kind and outcome
	SessionDuration *prometheus.HistogramVec

	// Detection + embedding + comparison time per frame
	FrameLatency *prometheus.HistogramVec

	// Frames that could not be acquired
	SensorFaults prometheus.Counter

	ActiveSessions prometheus.Gauge
	GallerySize    prometheus.Gauge

	// Audit trail totals, refreshed by the Aggregator
	AuditedOutcomes *prometheus.GaugeVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SessionOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "totem_session_outcomes_total",
			Help: "Total finished sessions by kind and outcome",
		}, []string{"kind", "outcome"}),

		SessionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "totem_session_duration_seconds",
			Help:    "Duration of sessions from start to terminal outcome",
			Buckets: []float64{0.5, 1, 2, 5, 10, 15, 20, 30, 60},
		}, []string{"kind", "outcome"}),

		FrameLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "totem_frame_evaluation_duration_seconds",
			Help:    "Duration of per-frame face detection and matching",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"kind"}),

		SensorFaults: f.NewCounter(prometheus.CounterOpts{
			Name: "totem_sensor_faults_total",
			Help: "Frame acquisitions that failed and were retried",
		}),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "totem_active_sessions",
			Help: "Sessions currently running",
		}),

		GallerySize: f.NewGauge(prometheus.GaugeOpts{
			Name: "totem_gallery_identities",
			Help: "Identities in the embedding store",
		}),

		AuditedOutcomes: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "totem_audited_sessions",
			Help: "Sessions recorded in the audit table by kind and outcome",
		}, []string{"kind", "outcome"}),
	}
}

// ObserveSession records a finished session.
func (m *Metrics) ObserveSession(kind, outcome string, d time.Duration) {
	if m != nil {
		m.SessionOutcomes.WithLabelValues(kind, outcome).Inc()
		m.SessionDuration.WithLabelValues(kind, outcome).Observe(d.Seconds())
	}
}

// ObserveFrame records the evaluation time of one frame.
func (m *Metrics) ObserveFrame(kind string, d time.Duration) {
	if m != nil {
		m.FrameLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) IncSensorFault() {
	if m != nil {
		m.SensorFaults.Inc()
	}
}

func (m *Metrics) SessionStarted() {
	if m != nil {
		m.ActiveSessions.Inc()
	}
}

func (m *Metrics) SessionEnded() {
	if m != nil {
		m.ActiveSessions.Dec()
	}
}

func (m *Metrics) SetGallerySize(n int) {
	if m != nil {
		m.GallerySize.Set(float64(n))
	}
}

func (m *Metrics) SetAudited(kind, outcome string, n int) {
	if m != nil {
		m.AuditedOutcomes.WithLabelValues(kind, outcome).Set(float64(n))
	}
}
