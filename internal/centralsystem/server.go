package centralsystem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/auth"
	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/observability"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/transport/soap"
	"github.com/danmuck/ocppctl/internal/transport/ws"
)

var (
	ErrUnknownSession = errors.New("centralsystem: unknown session")
	ErrServerOpen     = errors.New("centralsystem: server already open")
	ErrServerClosed   = errors.New("centralsystem: server closed")
)

// Config selects the listeners a Server opens. A zero SOAPPort disables
// the SOAP listener.
type Config struct {
	ID            string
	Host          string
	WebSocketPort int
	SOAPPort      int
	// SOAPEndpoint is the address charge points answer to over SOAP.
	SOAPEndpoint string
	Versions     []protocol.Version
	Workers      int
	Session      session.Config
	// Authenticator checks WebSocket Basic credentials; nil admits all.
	Authenticator auth.Authenticator
}

func DefaultConfig() Config {
	return Config{
		ID:            "central.local",
		Host:          "0.0.0.0",
		WebSocketPort: 8887,
		Versions:      []protocol.Version{protocol.Version201, protocol.Version16},
		Workers:       ws.DefaultWorkers,
		Session:       session.DefaultConfig(),
	}
}

// Profiles lists the capability sets served per protocol version.
type Profiles map[protocol.Version][]feature.Profile

// ServerEvents receives session lifecycle notifications. Callbacks run on
// transport goroutines and must not block.
type ServerEvents interface {
	NewSession(info session.Information)
	LostSession(id uuid.UUID)
}

// SessionInfo is the admin view of one live session.
type SessionInfo struct {
	ID             string `json:"id"`
	Identifier     string `json:"identifier"`
	Version        string `json:"version"`
	Transport      string `json:"transport"`
	RemoteAddress  string `json:"remote_address"`
	ProxiedAddress string `json:"proxied_address,omitempty"`
	State          string `json:"state"`
	PendingCalls   int    `json:"pending_calls"`
}

// Server owns the listeners and the session table of a central system.
type Server struct {
	cfg      Config
	features map[protocol.Version]feature.Set
	events   ServerEvents
	clock    clock.Clock
	appeared time.Time

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session
	ws       *ws.Listener
	soap     *soap.Listener
	open     bool
	closed   bool
}

var _ session.ListenerEvents = (*Server)(nil)

// NewServer builds the central system side feature sets for every version
// in cfg.Versions. events may be nil.
func NewServer(cfg Config, profiles Profiles, events ServerEvents) (*Server, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = DefaultConfig().ID
	}
	if len(cfg.Versions) == 0 {
		cfg.Versions = DefaultConfig().Versions
	}
	cfg.Session = cfg.Session.WithDefaults()
	features := make(map[protocol.Version]feature.Set, len(cfg.Versions))
	for _, v := range cfg.Versions {
		set, err := feature.NewSet(v, feature.OriginCentralSystem, profiles[v]...)
		if err != nil {
			return nil, fmt.Errorf("centralsystem: features for %s: %w", v, err)
		}
		features[v] = set
	}
	return &Server{
		cfg:      cfg,
		features: features,
		events:   events,
		clock:    clock.WallClock,
		sessions: make(map[uuid.UUID]*session.Session),
	}, nil
}

// Open starts the WebSocket listener and, when configured, the SOAP
// listener.
func (s *Server) Open() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.open {
		s.mu.Unlock()
		return ErrServerOpen
	}
	s.open = true
	s.mu.Unlock()

	wsl, soapl, err := s.listen()
	if err != nil {
		// Failed listeners hold nothing, so a later Open may retry.
		s.mu.Lock()
		s.open = false
		s.mu.Unlock()
		log.Warn().Str("central", s.cfg.ID).Err(err).Msg("centralsystem.Server.Open failed")
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = wsl.Close()
		if soapl != nil {
			_ = soapl.Close()
		}
		return ErrServerClosed
	}
	s.ws, s.soap = wsl, soapl
	s.appeared = s.clock.Now()
	s.mu.Unlock()
	log.Info().Str("central", s.cfg.ID).Int("ws_port", s.cfg.WebSocketPort).Int("soap_port", s.cfg.SOAPPort).Msg("centralsystem.Server.Open opened")
	return nil
}

func (s *Server) listen() (*ws.Listener, *soap.Listener, error) {
	observability.RegisterMetrics()
	wsl, err := ws.NewListener(ws.ListenerConfig{
		Versions:      s.cfg.Versions,
		Features:      s.features,
		Session:       s.cfg.Session,
		Workers:       s.cfg.Workers,
		Clock:         s.clock,
		Authenticator: s.cfg.Authenticator,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := wsl.Open(s.cfg.Host, s.cfg.WebSocketPort, s); err != nil {
		return nil, nil, err
	}
	var soapl *soap.Listener
	if set, ok := s.features[protocol.Version16]; ok && s.cfg.SOAPPort > 0 {
		soapl, err = soap.NewListener(soap.ListenerConfig{
			Features: set,
			Session:  s.cfg.Session,
			Clock:    s.clock,
			Endpoint: s.cfg.SOAPEndpoint,
		})
		if err != nil {
			_ = wsl.Close()
			return nil, nil, err
		}
		if err := soapl.Open(s.cfg.Host, s.cfg.SOAPPort, s); err != nil {
			_ = soapl.Close()
			_ = wsl.Close()
			return nil, nil, err
		}
	}
	return wsl, soapl, nil
}

// WebSocketAddr is the bound WebSocket address once Open has succeeded.
func (s *Server) WebSocketAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ws == nil {
		return nil
	}
	return s.ws.Addr()
}

// SOAPAddr is the bound SOAP address, nil when SOAP is disabled.
func (s *Server) SOAPAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.soap == nil {
		return nil
	}
	return s.soap.Addr()
}

// Ready reports whether the listeners are open.
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ws != nil && !s.closed
}

func (s *Server) NewSession(sess *session.Session, info session.Information) {
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	log.Info().
		Str("session", sess.ID().String()).
		Str("identifier", info.Identifier).
		Str("transport", info.Transport).
		Str("version", string(info.Version)).
		Msg("centralsystem.Server.NewSession charge point connected")
	if s.events != nil {
		s.events.NewSession(info)
	}
}

func (s *Server) LostSession(id uuid.UUID) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	log.Info().Str("session", id.String()).Msg("centralsystem.Server.LostSession charge point gone")
	if s.events != nil {
		s.events.LostSession(id)
	}
}

// Session returns the live session with id.
func (s *Server) Session(id uuid.UUID) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// SessionFor returns the live session of a charge point identity.
func (s *Server) SessionFor(identifier string) (*session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Information().Identifier == identifier {
			return sess, true
		}
	}
	return nil, false
}

// Sessions snapshots the live sessions ordered by identifier.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	list := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		info := sess.Information()
		list = append(list, SessionInfo{
			ID:             sess.ID().String(),
			Identifier:     info.Identifier,
			Version:        string(info.Version),
			Transport:      info.Transport,
			RemoteAddress:  info.RemoteAddress,
			ProxiedAddress: info.ProxiedAddress,
			State:          sess.State().String(),
			PendingCalls:   sess.PendingCount(),
		})
	}
	s.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].Identifier == list[j].Identifier {
			return list[i].ID < list[j].ID
		}
		return list[i].Identifier < list[j].Identifier
	})
	return list
}

// Send issues req on the session with id and waits for its confirmation.
func (s *Server) Send(ctx context.Context, id uuid.UUID, req feature.Request) (feature.Confirmation, error) {
	sess, ok := s.Session(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess.Call(ctx, req)
}

// CloseSession closes one session. LostSession follows.
func (s *Server) CloseSession(id uuid.UUID) error {
	sess, ok := s.Session(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return sess.Close()
}

// Versions lists the served protocol versions in preference order.
func (s *Server) Versions() []protocol.Version {
	return slices.Clone(s.cfg.Versions)
}

// Close stops the listeners; every live session is closed and reported.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wsl, soapl := s.ws, s.soap
	s.mu.Unlock()

	var errs []error
	if wsl != nil {
		errs = append(errs, wsl.Close())
	}
	if soapl != nil {
		errs = append(errs, soapl.Close())
	}
	log.Info().Str("central", s.cfg.ID).Msg("centralsystem.Server.Close closed")
	return errors.Join(errs...)
}
