package subscriber

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PagesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "subscriber",
		Name:      "pages_scanned_total",
		Help:      "Number of tx history pages fetched while searching for follow-up events.",
	}, []string{"event_type"})
	WorkResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "subscriber",
		Name:      "work_results_total",
		Help:      "Outcomes of handled queue items: task_created, too_old, retry or failed.",
	}, []string{"kind", "result"})
)
