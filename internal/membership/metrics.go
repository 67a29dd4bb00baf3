package membership

import (
	"context"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	commitsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "membership",
			Name:      "commits_started_total",
			Help:      "Total number of descriptor commits handed to a committer.",
		},
		[]string{"name"})
	commitsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "membership",
			Name:      "commits_failed_total",
			Help:      "Total number of descriptor commits that returned an error.",
		},
		[]string{"name"})
	commitDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "multicell",
			Subsystem: "membership",
			Name:      "commit_duration_seconds",
			Help:      "Amount of time spent per descriptor commit, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, math.Pow(10.0, 1.0/3.0), 6*3+1),
		},
		[]string{"name"})
	journalFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multicell",
			Subsystem: "membership",
			Name:      "journal_failures_total",
			Help:      "Total number of committed descriptor versions that could not be journaled.",
		})
)

func init() {
	prometheus.MustRegister(commitsStartedTotal)
	prometheus.MustRegister(commitsFailedTotal)
	prometheus.MustRegister(commitDurationSeconds)
	prometheus.MustRegister(journalFailuresTotal)
}

type metricsCommitter struct {
	committer Committer
	name      string
}

// NewMetricsCommitter creates an adapter for Committer that adds basic
// instrumentation in the form of Prometheus metrics.
func NewMetricsCommitter(committer Committer, name string) Committer {
	return &metricsCommitter{
		committer: committer,
		name:      name,
	}
}

func (mc *metricsCommitter) Commit(ctx context.Context, p Proposal) error {
	commitsStartedTotal.WithLabelValues(mc.name).Inc()
	timeStart := time.Now()
	err := mc.committer.Commit(ctx, p)
	commitDurationSeconds.WithLabelValues(mc.name).Observe(time.Since(timeStart).Seconds())
	if err != nil {
		commitsFailedTotal.WithLabelValues(mc.name).Inc()
	}
	return err
}
