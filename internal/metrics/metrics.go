// Package metrics holds the prometheus collectors shared by every gagyebu process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Commit outcomes.
const (
	OutcomeSaved     = "saved"
	OutcomeUnchanged = "unchanged"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// ─── Editor ─────────────────────────────────────────────────────────────────

var EditorCommits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gagyebu",
	Subsystem: "editor",
	Name:      "commits_total",
	Help:      "Cell commits by field and outcome.",
}, []string{"field", "outcome"})

var EditorValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gagyebu",
	Subsystem: "editor",
	Name:      "validation_errors_total",
	Help:      "Local validation rejections by field.",
}, []string{"field"})

var RecordsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gagyebu",
	Name:      "records_loaded",
	Help:      "Records currently held in the collection store.",
})

// ─── Record API ─────────────────────────────────────────────────────────────

var APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gagyebu",
	Subsystem: "api",
	Name:      "requests_total",
	Help:      "Record API requests by route pattern and status code.",
}, []string{"route", "code"})

var RemoteRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gagyebu",
	Subsystem: "remote",
	Name:      "request_seconds",
	Help:      "Round trip time of record API calls made by clients.",
	Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
}, []string{"op"})

// ─── UI server ──────────────────────────────────────────────────────────────

var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gagyebu",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "UI write requests refused by the rate limiter.",
})

var SuspiciousRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gagyebu",
	Subsystem: "http",
	Name:      "suspicious_requests_total",
	Help:      "Requests flagged by the probe detector, by whether they were blocked.",
}, []string{"blocked"})

// ─── Export ─────────────────────────────────────────────────────────────────

var ExportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gagyebu",
	Subsystem: "export",
	Name:      "runs_total",
	Help:      "Month snapshot exports by sink and outcome.",
}, []string{"sink", "outcome"})

// ObserveRemote records the duration of a client call started at start.
func ObserveRemote(op string, start time.Time) {
	RemoteRequestSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
