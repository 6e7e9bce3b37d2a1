package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertStuckBroadcast = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "gmp",
		Name:      "stuck_broadcast",
		Help:      "Shows broadcasts which are still in the RECEIVED state, the value is their age in seconds.",
	}, []string{"broadcast_id", "contract_address"})
	AlertDeadQueueItem = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "alert",
		Subsystem: "gmp",
		Name:      "dead_queue_item",
		Help:      "Shows dead-lettered follow-up items, the value is the number of delivery attempts.",
	}, []string{"queue", "item_id", "kind", "last_error"})
)
