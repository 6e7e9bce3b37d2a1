package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "queue",
		Name:      "published_items_total",
		Help:      "Number of follow-up items published to the queue.",
	}, []string{"queue", "kind"})
	DeliveryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gmp",
		Subsystem: "queue",
		Name:      "delivery_results_total",
		Help:      "Outcomes of consumed queue items: ack, requeue, dead or undecodable.",
	}, []string{"queue", "kind", "result"})
)
