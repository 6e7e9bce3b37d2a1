package db

import (
	"errors"
	"time"

	"github.com/jackc/pgconn"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var QueryDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "gmp",
	Subsystem: "db",
	Name:      "query_duration_seconds",
	Buckets:   []float64{0.02, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
}, []string{"query"})

var QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gmp",
	Subsystem: "db",
	Name:      "query_errors_total",
}, []string{"query", "code"})

func ObserveDuration(query string) func() time.Duration {
	return prometheus.NewTimer(QueryDurations.WithLabelValues(query)).ObserveDuration
}

// ObserveError counts failed queries by the postgres error code, "unknown" for errors
// that never reached the server.
func ObserveError(query string, err error) {
	if err == nil {
		return
	}
	code := "unknown"
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code = pgErr.Code
	}
	QueryErrors.WithLabelValues(query, code).Inc()
}
