package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reminder_scheduler",
		Name:      "scans_total",
		Help:      "Completed escalation scans.",
	})
	remindersSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "reminder_scheduler",
		Name:      "reminders_sent_total",
		Help:      "Reminder emails dispatched to waiting approvers.",
	})
)
