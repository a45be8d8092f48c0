package centralsystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/auth"
	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/observability"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
)

var ErrBadPayload = errors.New("centralsystem: request payload rejected")

// NewAdminRouter builds the admin engine with the shared middleware stack.
func NewAdminRouter(id string, corsOrigins []string) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	return r
}

// RequireToken rejects admin requests without a valid bearer token.
// /health stays open for probes.
func RequireToken(v auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.FullPath() == "/health" {
			c.Next()
			return
		}
		token, ok := auth.BearerToken(c.Request)
		if !ok || v.Validate(token) != nil {
			c.Header("WWW-Authenticate", `Bearer realm="ocppctl"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

// RegisterRoutes mounts the admin API on routes.
func (s *Server) RegisterRoutes(routes gin.IRoutes) {
	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  s.uptime().String(),
			"central": s.cfg.ID,
			"version": "0.0.1",
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.Ready() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":    status == http.StatusOK,
			"central":  s.cfg.ID,
			"versions": s.Versions(),
		})
	})

	routes.GET("/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions": s.Sessions(),
		})
	})

	routes.DELETE("/sessions/:session", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		if err := s.CloseSession(id); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "closed"})
	})

	routes.POST("/sessions/:session/calls/:action", func(c *gin.Context) {
		id, ok := sessionParam(c)
		if !ok {
			return
		}
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		conf, err := s.Dispatch(c.Request.Context(), id, c.Param("action"), body)
		if err != nil {
			resp := gin.H{"error": err.Error()}
			var callErr *protocol.CallError
			if errors.As(err, &callErr) {
				resp["code"] = callErr.Code
			}
			c.JSON(statusFor(err), resp)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "confirmation": conf})
	})
}

// Dispatch decodes a JSON request for action and sends it on session id.
func (s *Server) Dispatch(ctx context.Context, id uuid.UUID, action string, body []byte) (feature.Confirmation, error) {
	sess, ok := s.Session(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	set := s.features[sess.Version()]
	if set.Outbound == nil {
		return nil, fmt.Errorf("%w: %s", feature.ErrUnknownAction, action)
	}
	f, ok := set.Outbound.Lookup(action)
	if !ok {
		return nil, fmt.Errorf("%w: %s", feature.ErrUnknownAction, action)
	}
	req := f.NewRequest()
	if len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	return sess.Call(ctx, req)
}

func sessionParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("session"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(err error) int {
	var callErr *protocol.CallError
	switch {
	case errors.Is(err, ErrUnknownSession), errors.Is(err, feature.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, ErrBadPayload), errors.Is(err, session.ErrPayloadInvalid):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, session.ErrTooManyPendingCalls):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict
	case errors.As(err, &callErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) uptime() time.Duration {
	s.mu.RLock()
	appeared := s.appeared
	s.mu.RUnlock()
	if appeared.IsZero() {
		return 0
	}
	return s.clock.Now().Sub(appeared)
}
