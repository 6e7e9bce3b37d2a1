package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IngestedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "ingested_events_total",
		Help:      "Number of posted events by type and result: accepted, duplicate or error.",
	}, []string{"chain", "type", "result"})
	VerifyTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "verify_tasks_total",
		Help:      "Number of completed CALL / GAS_CREDIT pairs, by whether a new VERIFY task was created.",
	}, []string{"chain", "created"})
	BroadcastResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "broadcast_results_total",
		Help:      "Number of completed broadcasts by request kind and terminal status.",
	}, []string{"kind", "status"})
	BroadcastDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gmp",
		Subsystem: "relay",
		Name:      "broadcast_duration_seconds",
		Help:      "Time from broadcast acceptance to its completion, lock waiting included.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"kind"})
)
