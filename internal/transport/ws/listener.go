package ws

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/auth"
	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/frame"
	"github.com/danmuck/ocppctl/internal/protocol/session"
)

// DefaultWorkers bounds concurrent handshakes when ListenerConfig.Workers
// is zero.
const DefaultWorkers = 4

var (
	ErrNoVersions       = errors.New("ws: listener serves no protocol versions")
	ErrListenerOpen     = errors.New("ws: listener already open")
	ErrListenerClosed   = errors.New("ws: listener closed")
	ErrMissingEvents    = errors.New("ws: listener events required")
	ErrUnsupportedProto = errors.New("ws: no supported sub-protocol offered")
)

// ListenerConfig selects what a Listener accepts. Versions lists the
// served protocol generations in preference order; Features holds the
// registry pair for each of them. A nil Authenticator admits every
// charge point.
type ListenerConfig struct {
	Versions      []protocol.Version
	Features      map[protocol.Version]feature.Set
	Session       session.Config
	Workers       int
	Clock         clock.Clock
	Authenticator auth.Authenticator
}

// Listener accepts WebSocket connections and turns each into a session.
type Listener struct {
	cfg      ListenerConfig
	upgrader websocket.Upgrader
	tokens   []string
	workers  chan struct{}

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session
	server   *http.Server
	ln       net.Listener
	closed   bool
}

func NewListener(cfg ListenerConfig) (*Listener, error) {
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	var tokens []string
	for _, v := range cfg.Versions {
		if _, ok := cfg.Features[v]; !ok {
			return nil, fmt.Errorf("%w: no features for %s", protocol.ErrUnsupportedVersion, v)
		}
		if token := v.SubProtocol(); token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil, ErrNoVersions
	}
	return &Listener{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.Session.HandshakeTimeout,
			Subprotocols:     tokens,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		tokens:   tokens,
		workers:  make(chan struct{}, cfg.Workers),
		sessions: make(map[uuid.UUID]*session.Session),
	}, nil
}

// Open listens on host:port and serves upgrades until Close. TLS is used
// when the session config enables it.
func (l *Listener) Open(host string, port int, events session.ListenerEvents) error {
	if events == nil {
		return ErrMissingEvents
	}
	if err := l.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrListenerClosed
	}
	if l.server != nil {
		return ErrListenerOpen
	}
	ln, err := l.listen(net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	l.ln = ln
	l.server = &http.Server{
		Handler:           l.Handler(events),
		ReadHeaderTimeout: l.cfg.Session.HandshakeTimeout,
	}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ws.Listener.Open serve failed")
		}
	}(l.server)
	log.Info().Str("addr", ln.Addr().String()).Strs("subprotocols", l.tokens).Msg("ws.Listener.Open listening")
	return nil
}

func (l *Listener) listen(addr string) (net.Listener, error) {
	tlsCfg, err := l.cfg.Session.ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return net.Listen("tcp", addr)
	}
	return tls.Listen("tcp", addr, tlsCfg)
}

// Addr is the bound address once Open has succeeded.
func (l *Listener) Addr() net.Addr {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Handler serves WebSocket upgrades for events. Open mounts it on its own
// server; tests and embedding applications may mount it directly.
func (l *Listener) Handler(events session.ListenerEvents) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l.serveUpgrade(events, w, r)
	})
}

func (l *Listener) serveUpgrade(events session.ListenerEvents, w http.ResponseWriter, r *http.Request) {
	remote := r.RemoteAddr
	version, ok := l.negotiate(websocket.Subprotocols(r))
	if !ok {
		log.Warn().Str("remote", remote).Strs("offered", websocket.Subprotocols(r)).Msg("ws.Listener.serveUpgrade rejected sub-protocol")
		http.Error(w, ErrUnsupportedProto.Error(), http.StatusBadRequest)
		return
	}
	identifier := identifierFromPath(r.URL.Path)
	if identifier == "" {
		http.Error(w, "missing charge point identity", http.StatusNotFound)
		return
	}
	if l.cfg.Authenticator != nil {
		if err := auth.CheckRequest(l.cfg.Authenticator, r, identifier); err != nil {
			log.Warn().Str("remote", remote).Str("identifier", identifier).Msg("ws.Listener.serveUpgrade rejected credentials")
			w.Header().Set("WWW-Authenticate", `Basic realm="ocpp"`)
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
	}

	select {
	case l.workers <- struct{}{}:
	case <-r.Context().Done():
		return
	}
	defer func() { <-l.workers }()

	if l.isClosed() {
		http.Error(w, ErrListenerClosed.Error(), http.StatusServiceUnavailable)
		return
	}
	raw, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Str("remote", remote).Err(err).Msg("ws.Listener.serveUpgrade upgrade failed")
		return
	}
	if raw.Subprotocol() != version.SubProtocol() {
		log.Warn().Str("remote", remote).Str("subprotocol", raw.Subprotocol()).Msg("ws.Listener.serveUpgrade sub-protocol mismatch")
		_ = raw.Close()
		return
	}

	conn := newConn(raw, l.cfg.Session, l.cfg.Clock)
	notify := session.NewNotifier(events)
	info := session.Information{
		Identifier:     identifier,
		RemoteAddress:  remote,
		ProxiedAddress: proxiedAddress(r),
		Version:        version,
		Transport:      Transport,
	}
	s, err := session.New(session.Params{
		Information:  info,
		Codec:        frame.NewCodec(frame.Limits{MaxFrameBytes: l.cfg.Session.MaxFrameBytes}),
		Communicator: conn,
		Features:     l.cfg.Features[version],
		Config:       l.cfg.Session,
		Clock:        l.cfg.Clock,
		OnClosed: func(s *session.Session, cause error) {
			l.untrack(s.ID())
			notify.Closed(s, cause)
		},
	})
	if err != nil {
		log.Error().Str("remote", remote).Err(err).Msg("ws.Listener.serveUpgrade build session")
		_ = raw.Close()
		return
	}
	if !l.track(s) {
		_ = raw.Close()
		return
	}
	if err := s.Open(); err != nil {
		l.untrack(s.ID())
		_ = raw.Close()
		return
	}
	log.Info().
		Str("session", s.ID().String()).
		Str("identifier", identifier).
		Str("remote", remote).
		Str("version", string(version)).
		Msg("ws.Listener.serveUpgrade session opened")
	notify.Opened(s)
	conn.start(s)
}

// negotiate picks the first of our versions the client offered.
func (l *Listener) negotiate(offered []string) (protocol.Version, bool) {
	for _, v := range l.cfg.Versions {
		for _, token := range offered {
			if got, ok := protocol.VersionFromSubProtocol(token); ok && got == v {
				return v, true
			}
		}
	}
	return "", false
}

func identifierFromPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

func proxiedAddress(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return ""
	}
	first, _, _ := strings.Cut(fwd, ",")
	return strings.TrimSpace(first)
}

func (l *Listener) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

func (l *Listener) track(s *session.Session) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.sessions[s.ID()] = s
	return true
}

func (l *Listener) untrack(id uuid.UUID) {
	l.mu.Lock()
	delete(l.sessions, id)
	l.mu.Unlock()
}

// Session returns the live session with id.
func (l *Listener) Session(id uuid.UUID) (*session.Session, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s, ok := l.sessions[id]
	return s, ok
}

// Sessions snapshots the live sessions.
func (l *Listener) Sessions() []*session.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*session.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		out = append(out, s)
	}
	return out
}

// Close stops accepting connections and closes every live session. Each
// closed session is reported through LostSession.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	srv := l.server
	live := make([]*session.Session, 0, len(l.sessions))
	for _, s := range l.sessions {
		live = append(live, s)
	}
	l.mu.Unlock()

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(ctx)
		cancel()
	}
	for _, s := range live {
		_ = s.Close()
	}
	log.Info().Int("sessions", len(live)).Msg("ws.Listener.Close closed")
	return err
}
