package topology

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	refreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "topology",
			Name:      "refreshes_total",
			Help:      "Number of times a changed descriptor was re-read, by outcome.",
		},
		[]string{"result"})
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "topology",
			Name:      "notifications_total",
			Help:      "Number of property changes delivered to listeners.",
		},
		[]string{"property"})
	notificationsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "topology",
			Name:      "notifications_dropped_total",
			Help:      "Number of property changes dropped because the queue was full.",
		})
	mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "topology",
			Name:      "mutations_total",
			Help:      "Number of topology mutations, by operation and outcome.",
		},
		[]string{"op", "result"})
)

func init() {
	prometheus.MustRegister(refreshesTotal)
	prometheus.MustRegister(notificationsTotal)
	prometheus.MustRegister(notificationsDroppedTotal)
	prometheus.MustRegister(mutationsTotal)
}
