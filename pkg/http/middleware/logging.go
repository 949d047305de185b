// Package middleware holds the echo middleware the API server wires in:
// structured request logging and Prometheus request metrics.
package middleware

import (
	"time"

	applogger "ModelGate/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits one structured log line per request. Requests
// slower than slowThreshold are logged at warn, 5xx responses at error.
func RequestLogging(l *applogger.Logger, slowThreshold time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if l == nil {
				return err
			}

			elapsed := time.Since(start)
			fields := []applogger.Field{
				applogger.String("method", c.Request().Method),
				applogger.String("route", c.Path()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("elapsed", elapsed),
				applogger.String("remote", c.RealIP()),
			}
			switch {
			case c.Response().Status >= 500:
				l.Error("http request failed", fields...)
			case slowThreshold > 0 && elapsed >= slowThreshold:
				l.Warn("http request slow", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return err
		}
	}
}
