// Package metrics exposes the Prometheus collectors shared by the ledger,
// the period store, the migration pass and the export worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SalesRecorded counts successful period increments.
	SalesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_recorded_total",
			Help: "Total number of sales written to period files",
		},
		[]string{"granularity"},
	)

	// SalesUnrecognized counts sales recorded under a key the catalog does not know.
	SalesUnrecognized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sales_unrecognized_total",
			Help: "Total number of sales recorded under unrecognized keys",
		},
	)

	SaleRecordFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sale_record_failures_total",
			Help: "Total number of sale recordings that failed",
		},
		[]string{"reason"},
	)

	PeriodWriteDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "period_write_duration_seconds",
			Help:    "Duration of period file read-modify-write cycles",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"granularity"},
	)

	MigrationFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migration_files_total",
			Help: "Period files visited by the key migration pass",
		},
		[]string{"outcome"},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sale_events_published_total",
			Help: "Sale events handed to the message broker",
		},
		[]string{"outcome"},
	)

	Exports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exports_total",
			Help: "Rows and reports exported to spreadsheets",
		},
		[]string{"backend", "outcome"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_sessions",
			Help: "Operator sessions currently cached",
		},
	)
)

// Failure reasons used with SaleRecordFailures.
const (
	ReasonStaleSession = "stale_session"
	ReasonInvalidKey   = "invalid_key"
	ReasonNotReady     = "not_ready"
	ReasonCorrupt      = "corrupt_file"
	ReasonPersistence  = "persistence"
)

// Migration outcomes used with MigrationFiles.
const (
	OutcomeRewritten = "rewritten"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
	OutcomeOK        = "ok"
	OutcomeError     = "error"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
