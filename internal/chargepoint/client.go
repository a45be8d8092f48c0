package chargepoint

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/auth"
	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/transport/ws"
)

var (
	ErrClientClosed    = errors.New("chargepoint: client closed")
	ErrMissingID       = errors.New("chargepoint: charge point id required")
	ErrMissingURL      = errors.New("chargepoint: central system url required")
	ErrAttemptsSpent   = errors.New("chargepoint: connect attempts exhausted")
	ErrBootNotAccepted = errors.New("chargepoint: registration not accepted")
)

// Config describes one charge point. URL is the central system endpoint;
// the identity is appended as the last path segment.
type Config struct {
	ID       string
	URL      string
	Versions []protocol.Version
	Vendor   string
	Model    string
	// MaxAttempts bounds Connect; zero retries until the context ends.
	MaxAttempts int
	// Password is offered as Basic credentials when set.
	Password string
	Session  session.Config
}

func DefaultConfig() Config {
	return Config{
		ID:       "CP-001",
		URL:      "ws://127.0.0.1:8887/ocpp",
		Versions: []protocol.Version{protocol.Version201, protocol.Version16},
		Vendor:   "ocppctl",
		Model:    "sim-1",
		Session:  session.DefaultConfig(),
	}
}

// Profiles lists the capability sets a charge point serves per version.
type Profiles map[protocol.Version][]feature.Profile

// Client owns the connection of one charge point.
type Client struct {
	cfg      Config
	features map[protocol.Version]feature.Set
	clock    clock.Clock
	rng      *rand.Rand

	mu      sync.Mutex
	session *session.Session
	closed  bool
}

func NewClient(cfg Config, profiles Profiles) (*Client, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, ErrMissingID
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrMissingURL
	}
	if len(cfg.Versions) == 0 {
		cfg.Versions = DefaultConfig().Versions
	}
	cfg.Session = cfg.Session.WithDefaults()
	features := make(map[protocol.Version]feature.Set, len(cfg.Versions))
	for _, v := range cfg.Versions {
		set, err := feature.NewSet(v, feature.OriginChargePoint, profiles[v]...)
		if err != nil {
			return nil, fmt.Errorf("chargepoint: features for %s: %w", v, err)
		}
		features[v] = set
	}
	return &Client{
		cfg:      cfg,
		features: features,
		clock:    clock.WallClock,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// SetClock replaces the wall clock; intended for tests.
func (c *Client) SetClock(clk clock.Clock) {
	c.mu.Lock()
	c.clock = clk
	c.mu.Unlock()
}

func (c *Client) endpoint() string {
	return strings.TrimRight(c.cfg.URL, "/") + "/" + c.cfg.ID
}

func (c *Client) header() http.Header {
	if c.cfg.Password == "" {
		return nil
	}
	return auth.BasicHeader(c.cfg.ID, c.cfg.Password)
}

// Connect dials until a session opens, waiting between attempts with the
// configured backoff. An already open session is returned as is.
func (c *Client) Connect(ctx context.Context) (*session.Session, error) {
	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrClientClosed
		}
		if c.session != nil && c.session.State() == session.StateOpen {
			s := c.session
			c.mu.Unlock()
			return s, nil
		}
		clk := c.clock
		c.mu.Unlock()

		s, err := ws.Dial(ctx, c.endpoint(), ws.DialConfig{
			Versions: c.cfg.Versions,
			Features: c.features,
			Session:  c.cfg.Session,
			Clock:    clk,
			Header:   c.header(),
			OnClosed: c.onClosed,
		})
		if err == nil {
			if c.adopt(s) {
				return s, nil
			}
			_ = s.Close()
			return nil, ErrClientClosed
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w after %d: %w", ErrAttemptsSpent, attempt, err)
		}
		log.Warn().
			Str("charge_point", c.cfg.ID).
			Int("attempt", attempt).
			Dur("delay", session.NextBackoffDelay(c.cfg.Session.Backoff, attempt, nil)).
			Err(err).
			Msg("chargepoint.Client.Connect dial failed")
		if err := session.WaitBackoff(ctx, clk, c.cfg.Session.Backoff, attempt, c.rng); err != nil {
			return nil, err
		}
	}
}

func (c *Client) adopt(s *session.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.session = s
	return true
}

func (c *Client) onClosed(s *session.Session, cause error) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	event := log.Info()
	if cause != nil {
		event = log.Warn().Err(cause)
	}
	event.Str("charge_point", c.cfg.ID).Str("session", s.ID().String()).Msg("chargepoint.Client session lost")
}

// Session returns the open session, if any.
func (c *Client) Session() (*session.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, false
	}
	return c.session, true
}

// Send issues req on the open session and waits for its confirmation.
func (c *Client) Send(ctx context.Context, req feature.Request) (feature.Confirmation, error) {
	s, ok := c.Session()
	if !ok {
		return nil, session.ErrNotConnected
	}
	return s.Call(ctx, req)
}

// Close ends the session and refuses further connects.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s != nil {
		return s.Close()
	}
	return nil
}
