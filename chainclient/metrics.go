package chainclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "chain",
		Name:      "request_results_total",
	}, []string{"client", "query", "status"})

	RequestDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gmp",
		Subsystem: "chain",
		Name:      "request_duration_seconds",
		Buckets:   []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 20},
	}, []string{"client", "query"})
)

func ObserveError(client, query string, err error) {
	var cmdErr *CommandError
	switch {
	case err == nil:
		RequestResults.WithLabelValues(client, query, "ok").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		RequestResults.WithLabelValues(client, query, "timeout").Inc()
	case errors.As(err, &cmdErr):
		RequestResults.WithLabelValues(client, query, fmt.Sprintf("exit-%d", cmdErr.ExitCode)).Inc()
	default:
		RequestResults.WithLabelValues(client, query, "error").Inc()
	}
}

func ObserveDuration(client, query string) func() time.Duration {
	return prometheus.NewTimer(RequestDurations.WithLabelValues(client, query)).ObserveDuration
}
