// Package metrics defines the Prometheus collectors docsql exports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Operation label values.
const (
	OpDiscover = "discover"
	OpCompile  = "compile"
	OpQuery    = "query"
)

// Metrics holds the collectors of one registry.
type Metrics struct {
	// OperationsTotal counts engine operations by operation and status.
	OperationsTotal *prometheus.CounterVec

	// OperationDuration is the latency of engine operations.
	OperationDuration *prometheus.HistogramVec

	// SchemaTables is the table count of the latest discovery per schema.
	SchemaTables *prometheus.GaugeVec

	// RowsTotal counts documents read through query cursors.
	RowsTotal prometheus.Counter
}

// New registers the collectors with reg. A nil reg uses a fresh private
// registry, which keeps repeated construction in tests from colliding.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		OperationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docsql_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docsql_operation_duration_seconds",
				Help:    "Engine operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SchemaTables: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "docsql_schema_tables",
				Help: "Number of tables in the latest discovered schema",
			},
			[]string{"schema"},
		),
		RowsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "docsql_rows_total",
				Help: "Total number of result documents read",
			},
		),
	}
}

// Observe records one finished operation.
func (m *Metrics) Observe(op string, start time.Time, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
