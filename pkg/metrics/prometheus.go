package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	predictions *prometheus.CounterVec
	settlements *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	notional    *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		predictions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_predictions_total",
				Help: "Total number of shadow predictions processed",
			},
			[]string{"strategy", "symbol"},
		),
		settlements: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_settlements_total",
				Help: "Total number of trade outcomes settled",
			},
			[]string{"strategy", "symbol"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modelgate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		notional: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modelgate_live_notional",
				Help: "Current authorized live notional per strategy",
			},
			[]string{"strategy"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelgate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordPrediction counts one processed shadow prediction.
func (r *Recorder) RecordPrediction(strategy, symbol string) {
	r.predictions.WithLabelValues(strategy, symbol).Inc()
}

// RecordSettlement counts one settled trade outcome.
func (r *Recorder) RecordSettlement(strategy, symbol string) {
	r.settlements.WithLabelValues(strategy, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordNotional records the authorized live notional for a strategy.
func (r *Recorder) RecordNotional(strategy string, notional float64) {
	r.notional.WithLabelValues(strategy).Set(notional)
}
