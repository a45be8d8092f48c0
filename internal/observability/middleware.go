package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Gin context keys OCPP handlers fill in so request logs name the charge
// point and the action carried by the request.
const (
	IdentityKey = "ocpp.identity"
	ActionKey   = "ocpp.action"
)

// routeOf prefers the registered route so metrics stay low-cardinality.
func routeOf(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

// RequestLogger logs one line per request. Successful requests log at debug
// since SOAP charge points poll constantly.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		default:
			event = logger.Debug()
		}
		if identity := c.GetString(IdentityKey); identity != "" {
			event = event.Str("identity", identity)
		}
		if action := c.GetString(ActionKey); action != "" {
			event = event.Str("action", action)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("observability.RequestLogger http request")
	}
}

// RequestMetricsMiddleware records every request against node, which is
// the central system id or the transport name.
func RequestMetricsMiddleware(node string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(node, c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}
