package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/repfit/repfit/pkg/metrics"
)

// Metrics observes per-route request latency. The route template is used as
// the path label so IDs do not explode cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}
