package soap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/protocol/soapenv"
)

// Transport is the session.Information transport label.
const Transport = "soap"

var (
	ErrReplyTimeout    = errors.New("soap: no reply within bridge timeout")
	ErrNoWaiter        = errors.New("soap: reply has no waiting request")
	ErrDuplicateWaiter = errors.New("soap: request id already in flight")
	ErrBridgeClosed    = errors.New("soap: bridge closed")
)

// Bridge is the session.Communicator of one SOAP session. Replies the
// session produces are handed to the HTTP exchange waiting for them;
// outbound Calls are relayed to the charge point and their response fed
// back into the session.
type Bridge struct {
	relay   *HTTPRelay
	clock   clock.Clock
	timeout time.Duration

	mu       sync.Mutex
	session  *session.Session
	waiters  map[string]chan []byte
	address  string
	lastSeen time.Time
	closed   bool
	done     chan struct{}
}

var _ session.Communicator = (*Bridge)(nil)

func NewBridge(relay *HTTPRelay, clk clock.Clock, timeout time.Duration) *Bridge {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Bridge{
		relay:    relay,
		clock:    clk,
		timeout:  timeout,
		waiters:  make(map[string]chan []byte),
		lastSeen: clk.Now(),
		done:     make(chan struct{}),
	}
}

func (b *Bridge) attach(s *session.Session) {
	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
}

// SetAddress records where outbound calls for this charge point go.
func (b *Bridge) SetAddress(address string) {
	if address == "" {
		return
	}
	b.mu.Lock()
	b.address = address
	b.mu.Unlock()
}

func (b *Bridge) touch() {
	b.mu.Lock()
	b.lastSeen = b.clock.Now()
	b.mu.Unlock()
}

// IdleSince reports the last time traffic crossed the bridge.
func (b *Bridge) IdleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen
}

// Exchange feeds one inbound request to the session and waits, bounded by
// the bridge timeout, for the reply envelope the session produces for
// messageID.
func (b *Bridge) Exchange(ctx context.Context, messageID string, envelope []byte) ([]byte, error) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBridgeClosed
	}
	if _, dup := b.waiters[messageID]; dup {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateWaiter, messageID)
	}
	b.waiters[messageID] = ch
	s := b.session
	b.lastSeen = b.clock.Now()
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.waiters, messageID)
		b.mu.Unlock()
	}()

	s.OnInbound(envelope)

	timer := b.clock.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case reply := <-ch:
		return reply, nil
	case <-timer.Chan():
		return nil, fmt.Errorf("%w: %s after %s", ErrReplyTimeout, messageID, b.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		return nil, ErrBridgeClosed
	}
}

// Transmit routes one encoded envelope: replies go to their waiting
// exchange, Calls are relayed to the charge point.
func (b *Bridge) Transmit(ctx context.Context, data []byte) error {
	h, err := soapenv.ReadHeader(data)
	if err != nil {
		return err
	}
	if h.RelatesTo != "" {
		return b.deliver(h.RelatesTo, data)
	}

	b.mu.Lock()
	closed, address, s := b.closed, b.address, b.session
	b.mu.Unlock()
	if closed {
		return ErrBridgeClosed
	}
	resp, err := b.relay.Post(ctx, address, data)
	if err != nil {
		return err
	}
	b.touch()
	s.OnInbound(resp)
	return nil
}

func (b *Bridge) deliver(id string, data []byte) error {
	b.mu.Lock()
	ch, ok := b.waiters[id]
	if ok {
		delete(b.waiters, id)
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoWaiter, id)
	}
	ch <- data
	return nil
}

// Close releases waiting exchanges. It is idempotent.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.done)
	log.Debug().Int("waiters", len(b.waiters)).Msg("soap.Bridge.Close closed")
	return nil
}
