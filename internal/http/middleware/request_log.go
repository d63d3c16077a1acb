package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lotline-backend/internal/platform/ctxutil"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

const healthPath = "/healthcheck"

// RequestLogger writes one line per request. Health probes log at debug so
// they do not drown out operator traffic.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"actor_id", ctxutil.ActorFrom(c.Request.Context()),
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		if key := c.GetHeader("Idempotency-Key"); key != "" {
			fields = append(fields, "idempotency_key", key)
		}
		if c.Writer.Header().Get("Idempotent-Replayed") != "" {
			fields = append(fields, "replayed", true)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "error", c.Errors.Last().Error())
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		case route == healthPath:
			log.Debug("health probe", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
