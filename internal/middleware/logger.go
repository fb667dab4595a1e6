package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkline/adengine/pkg/metrics"
)

// Logger returns a zap-based request logging middleware. Requests under a
// quiet prefix (the telemetry ingress) are logged at debug unless they fail.
func Logger(logger *zap.Logger, quietPrefixes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		clientIP := c.ClientIP()
		method := c.Request.Method

		c.Next()

		statusCode := c.Writer.Status()
		latency := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(method, route, strconv.Itoa(statusCode/100)+"xx", latency.Seconds())

		fields := []zap.Field{
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", clientIP),
		}
		switch {
		case statusCode >= 500:
			logger.Error("request", fields...)
		case isQuiet(path, quietPrefixes):
			logger.Debug("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

func isQuiet(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
