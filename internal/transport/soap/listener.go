package soap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/observability"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/protocol/soapenv"
)

// DefaultBridgeTimeout bounds an inbound exchange when the session config
// disables call timeouts.
const DefaultBridgeTimeout = 30 * time.Second

var (
	ErrListenerOpen   = errors.New("soap: listener already open")
	ErrListenerClosed = errors.New("soap: listener closed")
	ErrMissingEvents  = errors.New("soap: listener events required")
	ErrNoFeatures     = errors.New("soap: listener has no inbound features")
)

// ListenerConfig selects what a Listener serves. OCPP-S only exists for
// 1.6, so a single feature set is enough. Endpoint is the address charge
// points should answer to; it defaults to the URL a request arrived on.
type ListenerConfig struct {
	Features feature.Set
	Session  session.Config
	Clock    clock.Clock
	Endpoint string
	Relay    *HTTPRelay
}

type entry struct {
	session *session.Session
	bridge  *Bridge
	codec   *soapenv.Codec
}

// Listener accepts OCPP-S requests and keeps one session per
// chargeBoxIdentity until it goes idle.
type Listener struct {
	cfg     ListenerConfig
	timeout time.Duration

	openMu sync.Mutex

	mu       sync.RWMutex
	byName   map[string]*entry
	server   *http.Server
	ln       net.Listener
	closed   bool
	sweeping sync.Once
	stop     chan struct{}
	swept    chan struct{}
}

func NewListener(cfg ListenerConfig) (*Listener, error) {
	if cfg.Features.Inbound == nil {
		return nil, ErrNoFeatures
	}
	if v := cfg.Features.Inbound.Version(); v != protocol.Version16 {
		return nil, fmt.Errorf("%w: soap serves %s only, got %s", protocol.ErrUnsupportedVersion, protocol.Version16, v)
	}
	cfg.Session = cfg.Session.WithDefaults()
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Relay == nil {
		relay, err := NewHTTPRelay(cfg.Session)
		if err != nil {
			return nil, err
		}
		cfg.Relay = relay
	}
	timeout := cfg.Session.CallTimeout
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	return &Listener{
		cfg:     cfg,
		timeout: timeout,
		byName:  make(map[string]*entry),
		stop:    make(chan struct{}),
		swept:   make(chan struct{}),
	}, nil
}

// Open listens on host:port and serves OCPP-S until Close.
func (l *Listener) Open(host string, port int, events session.ListenerEvents) error {
	if events == nil {
		return ErrMissingEvents
	}
	if err := l.cfg.Session.ValidateServerTransport(); err != nil {
		return err
	}
	handler := l.Handler(events)
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
		Handler:           handler,
		ReadHeaderTimeout: l.cfg.Session.HandshakeTimeout,
	}
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("soap.Listener.Open serve failed")
		}
	}(l.server)
	log.Info().Str("addr", ln.Addr().String()).Msg("soap.Listener.Open listening")
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

// Handler returns the OCPP-S endpoint for events. The first call starts the
// idle sweeper.
func (l *Listener) Handler(events session.ListenerEvents) http.Handler {
	l.sweeping.Do(func() { go l.sweep() })
	notify := session.NewNotifier(events)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(Transport))
	r.POST("/*path", func(c *gin.Context) {
		l.serveEnvelope(notify, c)
	})
	return r
}

func (l *Listener) serveEnvelope(notify *session.Notifier, c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, int64(l.cfg.Session.MaxFrameBytes)))
	if err != nil {
		c.String(http.StatusRequestEntityTooLarge, "envelope too large")
		return
	}
	h, err := soapenv.ReadHeader(body)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if h.ChargeBoxIdentity == "" {
		c.String(http.StatusBadRequest, soapenv.ErrMissingIdentity.Error())
		return
	}
	c.Set(observability.IdentityKey, h.ChargeBoxIdentity)
	c.Set(observability.ActionKey, h.Action)

	e, err := l.sessionFor(notify, h, c.Request)
	if err != nil {
		c.String(http.StatusServiceUnavailable, err.Error())
		return
	}
	if address := h.ReplyAddress(); address != "" {
		e.bridge.SetAddress(address)
		e.codec.SetTo(address)
	}

	if h.RelatesTo != "" {
		e.bridge.touch()
		e.session.OnInbound(body)
		c.Status(http.StatusAccepted)
		return
	}
	if h.MessageID == "" {
		c.String(http.StatusBadRequest, protocol.ErrMissingMessageID.Error())
		return
	}

	reply, err := e.bridge.Exchange(c.Request.Context(), h.MessageID, body)
	if err != nil {
		log.Warn().
			Str("session", e.session.ID().String()).
			Str("identity", h.ChargeBoxIdentity).
			Str("id", h.MessageID).
			Err(err).
			Msg("soap.Listener.serveEnvelope no reply")
		fault, encErr := e.codec.Encode(protocol.NewCallError(h.MessageID, protocol.InternalError, "no reply within timeout"))
		if encErr != nil {
			c.String(http.StatusInternalServerError, err.Error())
			return
		}
		c.Data(http.StatusInternalServerError, soapenv.ContentType, fault)
		return
	}
	status := http.StatusOK
	if rh, err := soapenv.ReadHeader(reply); err == nil && rh.Action == soapenv.ActionFault {
		status = http.StatusInternalServerError
	}
	c.Data(status, soapenv.ContentType, reply)
}

func (l *Listener) lookup(identity string) (*entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byName[identity]
	return e, ok
}

// sessionFor returns the live session of h's charge point, opening one on
// first contact.
func (l *Listener) sessionFor(notify *session.Notifier, h soapenv.Header, r *http.Request) (*entry, error) {
	if e, ok := l.lookup(h.ChargeBoxIdentity); ok {
		return e, nil
	}
	l.openMu.Lock()
	defer l.openMu.Unlock()
	if e, ok := l.lookup(h.ChargeBoxIdentity); ok {
		return e, nil
	}

	endpoint := l.cfg.Endpoint
	if endpoint == "" {
		endpoint = requestURL(r)
	}
	codec := soapenv.NewCodec(soapenv.CentralSystemAddressing(h.ChargeBoxIdentity, endpoint, h.ReplyAddress()))
	bridge := NewBridge(l.cfg.Relay, l.cfg.Clock, l.timeout)
	identity := h.ChargeBoxIdentity
	s, err := session.New(session.Params{
		Information: session.Information{
			Identifier:     identity,
			RemoteAddress:  r.RemoteAddr,
			ProxiedAddress: proxiedAddress(r),
			Version:        protocol.Version16,
			Transport:      Transport,
		},
		Codec:        codec,
		Communicator: bridge,
		Features:     l.cfg.Features,
		Config:       l.cfg.Session,
		Clock:        l.cfg.Clock,
		OnClosed: func(s *session.Session, cause error) {
			l.untrack(identity, s.ID())
			notify.Closed(s, cause)
		},
	})
	if err != nil {
		return nil, err
	}
	bridge.attach(s)
	e := &entry{session: s, bridge: bridge, codec: codec}
	if !l.track(identity, e) {
		return nil, ErrListenerClosed
	}
	if err := s.Open(); err != nil {
		l.untrack(identity, s.ID())
		return nil, err
	}
	log.Info().
		Str("session", s.ID().String()).
		Str("identifier", identity).
		Str("remote", r.RemoteAddr).
		Msg("soap.Listener.sessionFor session opened")
	notify.Opened(s)
	return e, nil
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}

func proxiedAddress(r *http.Request) string {
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return ""
	}
	first, _, _ := strings.Cut(fwd, ",")
	return strings.TrimSpace(first)
}

func (l *Listener) track(identity string, e *entry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.byName[identity] = e
	return true
}

// untrack removes identity only while it still maps to session id, so an
// expired session cannot evict its successor.
func (l *Listener) untrack(identity string, id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.byName[identity]; ok && e.session.ID() == id {
		delete(l.byName, identity)
	}
}

// Session returns the live session of a charge point.
func (l *Listener) Session(identity string) (*session.Session, bool) {
	e, ok := l.lookup(identity)
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Sessions snapshots the live sessions.
func (l *Listener) Sessions() []*session.Session {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*session.Session, 0, len(l.byName))
	for _, e := range l.byName {
		out = append(out, e.session)
	}
	return out
}

func (l *Listener) entries() []*entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*entry, 0, len(l.byName))
	for _, e := range l.byName {
		out = append(out, e)
	}
	return out
}

// sweep closes sessions that saw no traffic for SOAPIdleTimeout.
func (l *Listener) sweep() {
	defer close(l.swept)
	idle := l.cfg.Session.SOAPIdleTimeout
	for {
		select {
		case <-l.stop:
			return
		case <-l.cfg.Clock.After(idle / 2):
		}
		now := l.cfg.Clock.Now()
		for _, e := range l.entries() {
			if now.Sub(e.bridge.IdleSince()) < idle {
				continue
			}
			log.Info().
				Str("session", e.session.ID().String()).
				Str("identifier", e.session.Information().Identifier).
				Dur("idle", now.Sub(e.bridge.IdleSince())).
				Msg("soap.Listener.sweep expired idle session")
			_ = e.session.Close()
		}
	}
}

// Close stops serving, closes every live session and stops the sweeper.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	srv := l.server
	live := make([]*entry, 0, len(l.byName))
	for _, e := range l.byName {
		live = append(live, e)
	}
	l.mu.Unlock()

	close(l.stop)
	// A listener whose Handler never ran has no sweeper to wait for.
	l.sweeping.Do(func() { close(l.swept) })

	var err error
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(ctx)
		cancel()
	}
	for _, e := range live {
		_ = e.session.Close()
	}
	<-l.swept
	l.cfg.Relay.CloseIdle()
	log.Info().Int("sessions", len(live)).Msg("soap.Listener.Close closed")
	return err
}
