package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/StrathCole/fee-oracle/pkg/logging"
	"github.com/StrathCole/fee-oracle/pkg/metrics"
)

func recoverMiddleware(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Panic in handler", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
					err = dataResponse(c, http.StatusInternalServerError, "Internal Server Error")
				}
			}()
			return next(c)
		}
	}
}

// requestMetrics logs every request and records it under its route
// template to keep label cardinality low.
func requestMetrics(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			duration := time.Since(start)
			metrics.RecordHTTPRequest(route, strconv.Itoa(status), duration)

			if status >= http.StatusInternalServerError {
				logger.Error("HTTP request failed", "method", c.Request().Method, "route", route, "status", status, "duration", duration.String())
			} else {
				logger.Debug("HTTP request", "method", c.Request().Method, "route", route, "status", status, "duration", duration.String())
			}
			return nil
		}
	}
}
