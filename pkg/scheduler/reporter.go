package scheduler

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "m2m"
	subsystem = "scheduler"
)

var (
	jobStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_started_total",
		Help:      "Number of scheduled job runs started",
	}, []string{"job"})

	jobCompletedSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "job_completed_seconds",
		Help:      "Histogram of scheduled job duration",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"job", "outcome"})

	jobsScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "jobs_scheduled",
		Help:      "Number of jobs currently scheduled",
	})
)

// RegisterMetrics registers the scheduler metrics on reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	metrics := []prometheus.Collector{
		jobStartedTotal,
		jobCompletedSeconds,
		jobsScheduled,
	}
	for _, metric := range metrics {
		if err := reg.Register(metric); err != nil {
			return fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return nil
}

func reportJobStarted(name string) {
	jobStartedTotal.WithLabelValues(name).Inc()
}

func reportJobCompleted(name string, duration time.Duration, err error) {
	jobCompletedSeconds.WithLabelValues(name, outcomeFromErr(err)).Observe(duration.Seconds())
}

func outcomeFromErr(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
