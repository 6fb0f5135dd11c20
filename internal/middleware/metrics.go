package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/batch-admin-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, so scanners and
// typos cannot mint one time series per raw URL.
const unmatchedRoute = "unmatched"

// probePaths are scraped or polled continuously and would drown the API series.
var probePaths = map[string]struct{}{
	"/health":  {},
	"/ready":   {},
	"/metrics": {},
}

// Metrics observes request latency and status per route template
// (e.g. /api/v1/batches/:id/points), never per concrete batch or student id.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		route := c.FullPath()
		if _, skip := probePaths[route]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
