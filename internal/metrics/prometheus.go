package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// KeystrokeEvents counts reports accepted by POST /keystroke.
	KeystrokeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keystroke_events_total",
			Help: "Total number of keystroke reports received",
		},
		[]string{"action", "language"},
	)

	// PasteDetections counts recorded pastes by the signal that found them.
	PasteDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keystroke_paste_detections_total",
			Help: "Total number of pastes recorded",
		},
		[]string{"source"},
	)

	// SessionsCleared counts POST /keystroke/clear outcomes.
	SessionsCleared = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keystroke_sessions_cleared_total",
			Help: "Total number of keystroke session clear requests",
		},
		[]string{"status"},
	)

	// PasteEventsPersisted counts paste stream messages by outcome.
	PasteEventsPersisted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keystroke_paste_events_persisted_total",
			Help: "Total number of paste events processed from the stream",
		},
		[]string{"status"},
	)

	// ReportsSent counts editor-side report deliveries.
	ReportsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keystroke_reports_sent_total",
			Help: "Total number of keystroke reports sent by the editor client",
		},
		[]string{"action", "result"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var once sync.Once

// InitPrometheus registers all collectors with the default registry. It is
// safe to call more than once.
func InitPrometheus() {
	once.Do(func() {
		prometheus.MustRegister(
			KeystrokeEvents,
			PasteDetections,
			SessionsCleared,
			PasteEventsPersisted,
			ReportsSent,
			RequestDuration,
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
