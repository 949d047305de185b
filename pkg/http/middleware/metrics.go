package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	httpInFlight      *prometheus.GaugeVec
	httpMetricsOnce   sync.Once
)

// Metrics records request counts, latency, and in-flight gauges keyed
// by the echo route template, which keeps label cardinality bounded.
func Metrics() echo.MiddlewareFunc {
	httpMetricsOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "modelgate_http_requests_total", Help: "HTTP requests served"},
			[]string{"route", "method", "status"},
		)
		httpLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modelgate_http_request_seconds",
				Help:    "HTTP request latency",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method"},
		)
		httpInFlight = promauto.NewGaugeVec(
			prometheus.GaugeOpts{Name: "modelgate_http_in_flight_requests", Help: "In-flight HTTP requests"},
			[]string{"route"},
		)
	})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			method := c.Request().Method

			httpInFlight.WithLabelValues(route).Inc()
			start := time.Now()
			err := next(c)
			httpInFlight.WithLabelValues(route).Dec()

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			httpLatency.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
