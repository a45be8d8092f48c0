package centralsystem

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/ocppctl/internal/auth"
)

// ServiceConfig is the full daemon configuration. An empty AdminAddr
// disables the admin HTTP server and an empty AdminToken leaves it open.
// Passwords, when set, require Basic credentials from every charge point.
type ServiceConfig struct {
	Server            Config
	AdminAddr         string
	AdminToken        string
	CORSOrigins       []string
	HeartbeatInterval time.Duration
	IdTags            []string
	Passwords         map[string]string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Server:            DefaultConfig(),
		AdminAddr:         "127.0.0.1:8080",
		HeartbeatInterval: 5 * time.Minute,
	}
}

// Service runs a Server with the default Backend and the admin API.
type Service struct {
	cfg     ServiceConfig
	server  *Server
	backend *Backend

	mu      sync.RWMutex
	adminLn net.Listener
}

func NewService(cfg ServiceConfig, events ServerEvents) (*Service, error) {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultServiceConfig().HeartbeatInterval
	}
	if len(cfg.Passwords) > 0 && cfg.Server.Authenticator == nil {
		cfg.Server.Authenticator = auth.Passwords(cfg.Passwords)
	}
	backend := NewBackend(cfg.HeartbeatInterval, cfg.IdTags, nil)
	server, err := NewServer(cfg.Server, backend.Profiles(), events)
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, server: server, backend: backend}, nil
}

func (s *Service) Server() *Server {
	return s.server
}

// AdminAddr is the bound admin address while Run is serving.
func (s *Service) AdminAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.adminLn == nil {
		return nil
	}
	return s.adminLn.Addr()
}

// Run opens the listeners and the admin API and blocks until ctx ends or
// one of them fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.server.Open(); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)

	if addr := strings.TrimSpace(s.cfg.AdminAddr); addr != "" {
		router := NewAdminRouter(s.cfg.Server.ID, s.cfg.CORSOrigins)
		if token := strings.TrimSpace(s.cfg.AdminToken); token != "" {
			router.Use(RequireToken(auth.StaticToken{Token: token}))
		}
		s.server.RegisterRoutes(router)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			_ = s.server.Close()
			return err
		}
		s.mu.Lock()
		s.adminLn = ln
		s.mu.Unlock()
		admin := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}
		log.Info().Str("addr", ln.Addr().String()).Msg("centralsystem.Service.Run admin listening")

		g.Go(func() error {
			if err := admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return admin.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return s.server.Close()
	})
	err := g.Wait()
	log.Info().Err(err).Msg("centralsystem.Service.Run stopped")
	return err
}
