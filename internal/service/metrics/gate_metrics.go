package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ValidationVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgate",
			Subsystem: "shadow",
			Name:      "verdicts_total",
			Help:      "Shadow validation verdicts by outcome",
		},
		[]string{"strategy", "approved"},
	)

	PromotionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgate",
			Subsystem: "promotion",
			Name:      "events_total",
			Help:      "Promotion gate transitions by type",
		},
		[]string{"strategy", "type"},
	)

	CoverageGap = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "modelgate",
			Subsystem: "conformal",
			Name:      "coverage_gap",
			Help:      "Absolute gap between empirical and nominal interval coverage",
		},
		[]string{"strategy"},
	)

	ChampionEvaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelgate",
			Subsystem: "champion",
			Name:      "evaluations_total",
			Help:      "Champion/challenger evaluations by result",
		},
		[]string{"challenger", "promoted"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ValidationVerdicts, PromotionEvents, CoverageGap, ChampionEvaluations)
	})
}
