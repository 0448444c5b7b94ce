package notify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	enqueueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "email_outbox",
		Name:      "enqueue_total",
		Help:      "Total number of emails enqueued.",
	})
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "email_outbox",
		Name:      "dispatch_total",
		Help:      "Total number of delivery attempts by result.",
	}, []string{"result"})
	deadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "email_outbox",
		Name:      "dead_total",
		Help:      "Total number of emails moved to the dead-letter state.",
	})
	outboxDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "email_outbox",
		Name:      "pending",
		Help:      "Current number of undelivered emails.",
	})
)
