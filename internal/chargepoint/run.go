package chargepoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/ocpp16"
	"github.com/danmuck/ocppctl/internal/ocpp201"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
)

// DefaultHeartbeat is used until the central system names an interval.
const DefaultHeartbeat = 5 * time.Minute

// Boot sends the BootNotification of s's version and returns the heartbeat
// interval granted with it.
func (c *Client) Boot(ctx context.Context, s *session.Session) (time.Duration, error) {
	var req feature.Request
	switch s.Version() {
	case protocol.Version16:
		req = ocpp16.NewBootNotificationRequest(c.cfg.Vendor, c.cfg.Model)
	case protocol.Version201:
		req = ocpp201.NewBootNotificationRequest(c.cfg.Vendor, c.cfg.Model, ocpp201.BootReasonPowerUp)
	default:
		return 0, fmt.Errorf("%w: %s", protocol.ErrUnsupportedVersion, s.Version())
	}
	conf, err := s.Call(ctx, req)
	if err != nil {
		return 0, err
	}
	var (
		status   string
		interval int
	)
	switch v := conf.(type) {
	case *ocpp16.BootNotificationConfirmation:
		status, interval = string(v.Status), v.Interval
	case *ocpp201.BootNotificationResponse:
		status, interval = string(v.Status), v.Interval
	}
	every := DefaultHeartbeat
	if interval > 0 {
		every = time.Duration(interval) * time.Second
	}
	if status != "Accepted" {
		return every, fmt.Errorf("%w: %s", ErrBootNotAccepted, status)
	}
	return every, nil
}

// Heartbeat sends one Heartbeat on s.
func (c *Client) Heartbeat(ctx context.Context, s *session.Session) error {
	var req feature.Request = &ocpp16.HeartbeatRequest{}
	if s.Version() == protocol.Version201 {
		req = &ocpp201.HeartbeatRequest{}
	}
	_, err := s.Call(ctx, req)
	return err
}

// Run keeps the charge point registered until ctx ends: connect, boot,
// heartbeat, and start over when the session is lost.
func (c *Client) Run(ctx context.Context, st *Station) error {
	if st != nil {
		st.setTrigger(func(action string) { c.triggered(ctx, action) })
		defer st.setTrigger(nil)
	}
	defer c.Close()
	for {
		s, err := c.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.serve(ctx, s); err != nil && ctx.Err() == nil {
			log.Warn().Str("charge_point", c.cfg.ID).Err(err).Msg("chargepoint.Client.Run session ended")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// serve boots s and keeps its heartbeat until s or ctx ends.
func (c *Client) serve(ctx context.Context, s *session.Session) error {
	c.mu.Lock()
	clk := c.clock
	c.mu.Unlock()

	interval, err := c.Boot(ctx, s)
	for errors.Is(err, ErrBootNotAccepted) {
		log.Info().Str("charge_point", c.cfg.ID).Dur("retry", interval).Err(err).Msg("chargepoint.Client.Run boot deferred")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			return s.Err()
		case <-clk.After(interval):
		}
		interval, err = c.Boot(ctx, s)
	}
	if err != nil {
		_ = s.Close()
		return err
	}
	log.Info().
		Str("charge_point", c.cfg.ID).
		Str("version", string(s.Version())).
		Dur("heartbeat", interval).
		Msg("chargepoint.Client.Run registered")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.Done():
			return s.Err()
		case <-clk.After(interval):
		}
		if err := c.Heartbeat(ctx, s); err != nil {
			if errors.Is(err, session.ErrSessionClosed) || errors.Is(err, session.ErrNotConnected) {
				return err
			}
			log.Warn().Str("charge_point", c.cfg.ID).Err(err).Msg("chargepoint.Client.Run heartbeat failed")
		}
	}
}

func (c *Client) triggered(ctx context.Context, action string) {
	s, ok := c.Session()
	if !ok {
		return
	}
	var err error
	switch action {
	case string(ocpp201.TriggerHeartbeat):
		err = c.Heartbeat(ctx, s)
	case string(ocpp201.TriggerBootNotification):
		_, err = c.Boot(ctx, s)
	}
	if err != nil {
		log.Warn().Str("charge_point", c.cfg.ID).Str("action", action).Err(err).Msg("chargepoint.Client triggered message failed")
	}
}
