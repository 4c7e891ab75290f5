package cleanup

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the dangling intermediary cleanup.
type Metrics struct {
	DeletedPostsTotal prometheus.Counter
	RemainingPosts    prometheus.Gauge
	BatchesTotal      *prometheus.CounterVec
}

// NewMetrics creates the cleanup metrics and registers them on reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeletedPostsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: "m2m",
			Subsystem: "cleanup",
			Name:      "deleted_posts_total",
			Help:      "Total number of dangling intermediary posts deleted",
		}),
		RemainingPosts: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "m2m",
			Subsystem: "cleanup",
			Name:      "remaining_posts",
			Help:      "Dangling intermediary posts left after the last batch",
		}),
		BatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "m2m",
				Subsystem: "cleanup",
				Name:      "batches_total",
				Help:      "Total number of cleanup batches by status",
			},
			[]string{"status"},
		),
	}
}
