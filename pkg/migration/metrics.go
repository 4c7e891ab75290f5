package migration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts migration steps.
type Metrics struct {
	StepsTotal      *prometheus.CounterVec
	LegacyRowsTotal *prometheus.CounterVec
}

// NewMetrics creates the migration metrics and registers them on reg. A nil
// reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StepsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "m2m",
				Subsystem: "migration",
				Name:      "steps_total",
				Help:      "Total number of migration steps by phase and status",
			},
			[]string{"phase", "status"},
		),
		LegacyRowsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "m2m",
				Subsystem: "migration",
				Name:      "legacy_rows_total",
				Help:      "Total number of legacy association rows processed by outcome",
			},
			[]string{"outcome"},
		),
	}
}
