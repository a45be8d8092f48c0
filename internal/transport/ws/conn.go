package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"
	"gopkg.in/tomb.v2"

	"github.com/danmuck/ocppctl/internal/protocol/session"
)

// Transport is the session.Information transport label.
const Transport = "websocket"

var (
	ErrConnClosed = errors.New("ws: connection closed")
	ErrPeerSilent = errors.New("ws: peer silent")
)

// Conn adapts one WebSocket connection to session.Communicator. A read pump
// feeds every text frame to the session and a ping pump keeps the peer
// honest; a peer that sends neither a frame nor a pong for PongWait faults
// the session. Liveness runs on the injected clock; socket write deadlines
// stay on wall time.
type Conn struct {
	ws    *websocket.Conn
	cfg   session.Config
	clock clock.Clock
	tomb  tomb.Tomb

	// lastSeen is the clock time, in unix nanoseconds, of the latest frame
	// or pong from the peer.
	lastSeen atomic.Int64

	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ session.Communicator = (*Conn)(nil)

func newConn(ws *websocket.Conn, cfg session.Config, clk clock.Clock) *Conn {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Conn{ws: ws, cfg: cfg.WithDefaults(), clock: clk}
}

func (c *Conn) touch() {
	c.lastSeen.Store(c.clock.Now().UnixNano())
}

func (c *Conn) silentFor() time.Duration {
	return c.clock.Now().Sub(time.Unix(0, c.lastSeen.Load()))
}

// start runs the pumps for s and ends s when they stop.
func (c *Conn) start(s *session.Session) {
	c.ws.SetReadLimit(int64(c.cfg.MaxFrameBytes))
	c.touch()
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})
	c.tomb.Go(func() error {
		c.tomb.Go(c.pingLoop)
		return c.readLoop(s)
	})
	go func() {
		if err := c.tomb.Wait(); err != nil {
			s.Fault(err)
			return
		}
		_ = s.Close()
	}()
}

func (c *Conn) readLoop(s *session.Session) error {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.tomb.Dying():
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Str("session", s.ID().String()).Msg("ws.Conn.readLoop peer closed")
				c.tomb.Kill(nil)
				return nil
			}
			return err
		}
		c.touch()
		if kind != websocket.TextMessage {
			log.Debug().Str("session", s.ID().String()).Int("kind", kind).Msg("ws.Conn.readLoop ignored non-text frame")
			continue
		}
		s.OnInbound(data)
	}
}

// pingLoop pings every PingInterval. Once the peer has been silent for
// PongWait it drops the socket, which unblocks the read pump.
func (c *Conn) pingLoop() error {
	for {
		select {
		case <-c.tomb.Dying():
			return nil
		case <-c.clock.After(c.cfg.PingInterval):
			if silent := c.silentFor(); silent >= c.cfg.PongWait {
				c.tomb.Kill(fmt.Errorf("%w for %s", ErrPeerSilent, silent))
				_ = c.ws.Close()
				return nil
			}
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
				return err
			}
		}
	}
}

// Transmit writes one text frame. A failed write kills the connection.
func (c *Conn) Transmit(ctx context.Context, data []byte) error {
	select {
	case <-c.tomb.Dying():
		return ErrConnClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.tomb.Kill(err)
		return err
	}
	return nil
}

// Close sends a normal closure and releases the socket. It does not wait
// for the pumps, so it is safe to call from a session callback.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.tomb.Kill(nil)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.cfg.WriteTimeout))
		err = c.ws.Close()
	})
	return err
}

// Wait blocks until both pumps have stopped.
func (c *Conn) Wait() error {
	return c.tomb.Wait()
}

func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}
