package chargepoint

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"

	"github.com/danmuck/ocppctl/internal/auth"
	"github.com/danmuck/ocppctl/internal/centralsystem"
	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/ocpp16"
	"github.com/danmuck/ocppctl/internal/ocpp201"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/testutil/testlog"
)

type recorder struct {
	newCh chan session.Information
}

func (r *recorder) NewSession(info session.Information) { r.newCh <- info }
func (r *recorder) LostSession(uuid.UUID)               {}

func openCentral(t *testing.T, profiles centralsystem.Profiles, versions ...protocol.Version) (*centralsystem.Server, *recorder) {
	t.Helper()
	cfg := centralsystem.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.WebSocketPort = 0
	cfg.Versions = versions
	cfg.Session.CallTimeout = 5 * time.Second
	rec := &recorder{newCh: make(chan session.Information, 8)}
	s, err := centralsystem.NewServer(cfg, profiles, rec)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func clientConfig(central *centralsystem.Server, versions ...protocol.Version) Config {
	cfg := DefaultConfig()
	cfg.ID = "CP-042"
	cfg.URL = "ws://" + central.WebSocketAddr().String() + "/ocpp"
	cfg.Versions = versions
	return cfg
}

func waitNew(t *testing.T, rec *recorder) session.Information {
	t.Helper()
	select {
	case info := <-rec.newCh:
		return info
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for NewSession")
		return session.Information{}
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	testlog.Start(t)
	if _, err := NewClient(Config{URL: "ws://x"}, nil); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
	if _, err := NewClient(Config{ID: "CP"}, nil); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("expected ErrMissingURL, got %v", err)
	}
	c, err := NewClient(Config{ID: "CP", URL: "ws://127.0.0.1:1/ocpp/"}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if got := c.endpoint(); got != "ws://127.0.0.1:1/ocpp/CP" {
		t.Fatalf("unexpected endpoint %q", got)
	}
	if _, err := c.Send(context.Background(), &ocpp16.HeartbeatRequest{}); !errors.Is(err, session.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	cfg := DefaultConfig()
	cfg.URL = "ws://" + addr + "/ocpp"
	cfg.MaxAttempts = 3
	cfg.Session.Backoff = session.BackoffConfig{InitialDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
	c, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrAttemptsSpent) {
		t.Fatalf("expected ErrAttemptsSpent, got %v", err)
	}
	_ = c.Close()
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected ErrClientClosed, got %v", err)
	}
}

func TestConnectOffersPassword(t *testing.T) {
	testlog.Start(t)
	cfg := centralsystem.DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.WebSocketPort = 0
	cfg.Versions = []protocol.Version{protocol.Version16}
	cfg.Authenticator = auth.Passwords{"CP-042": "s3cret"}
	rec := &recorder{newCh: make(chan session.Information, 8)}
	central, err := centralsystem.NewServer(cfg, nil, rec)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := central.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = central.Close() })

	wrong := clientConfig(central, protocol.Version16)
	wrong.Password = "guess"
	wrong.MaxAttempts = 1
	c, err := NewClient(wrong, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.Connect(context.Background()); !errors.Is(err, ErrAttemptsSpent) {
		t.Fatalf("expected rejected credentials to spend attempts, got %v", err)
	}
	_ = c.Close()

	right := clientConfig(central, protocol.Version16)
	right.Password = "s3cret"
	c, err = NewClient(right, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect with password: %v", err)
	}
	if info := waitNew(t, rec); info.Identifier != "CP-042" {
		t.Fatalf("unexpected identifier %q", info.Identifier)
	}
}

func TestStationAnswersCentralSystemCalls(t *testing.T) {
	testlog.Start(t)
	central, rec := openCentral(t, centralsystem.NewBackend(time.Minute, nil, nil).Profiles(), protocol.Version16)
	st := NewStation()
	c, err := NewClient(clientConfig(central, protocol.Version16), st.Profiles())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer c.Close()
	s, err := c.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	info := waitNew(t, rec)
	if info.Identifier != "CP-042" {
		t.Fatalf("unexpected identifier %q", info.Identifier)
	}
	interval, err := c.Boot(context.Background(), s)
	if err != nil || interval != time.Minute {
		t.Fatalf("boot: interval=%s err=%v", interval, err)
	}

	ctx := context.Background()
	conf, err := central.Send(ctx, info.SessionID, &ocpp16.ChangeConfigurationRequest{Key: "HeartbeatInterval", Value: "60"})
	if err != nil || conf.(*ocpp16.ChangeConfigurationConfirmation).Status != ocpp16.ConfigurationAccepted {
		t.Fatalf("change configuration: %+v err=%v", conf, err)
	}
	if v, _ := st.ConfigValue("HeartbeatInterval"); v != "60" {
		t.Fatalf("configuration not applied: %q", v)
	}
	conf, err = central.Send(ctx, info.SessionID, &ocpp16.ChangeConfigurationRequest{Key: "Unknown", Value: "1"})
	if err != nil || conf.(*ocpp16.ChangeConfigurationConfirmation).Status != ocpp16.ConfigurationNotSupported {
		t.Fatalf("unknown key: %+v err=%v", conf, err)
	}
	if _, err := central.Send(ctx, info.SessionID, ocpp16.NewResetRequest(ocpp16.ResetHard)); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := st.Resets(); len(got) != 1 || got[0] != ocpp16.ResetHard {
		t.Fatalf("unexpected resets: %v", got)
	}
	if err := c.Heartbeat(ctx, s); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
}

func TestRunRegistersHeartbeatsAndHonoursTriggers(t *testing.T) {
	testlog.Start(t)
	booted := make(chan struct{}, 4)
	beats := make(chan struct{}, 4)
	provisioning := ocpp201.ProvisioningFunction().MustBind(map[string]feature.Handler{
		ocpp201.ActionBootNotification: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.BootNotificationRequest) (*ocpp201.BootNotificationResponse, error) {
			booted <- struct{}{}
			return &ocpp201.BootNotificationResponse{CurrentTime: time.Now(), Interval: 60, Status: ocpp201.RegistrationAccepted}, nil
		}),
		ocpp201.ActionHeartbeat: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp201.HeartbeatRequest) (*ocpp201.HeartbeatResponse, error) {
			beats <- struct{}{}
			return &ocpp201.HeartbeatResponse{CurrentTime: time.Now()}, nil
		}),
	})
	central, rec := openCentral(t, centralsystem.Profiles{
		protocol.Version201: {provisioning, ocpp201.AuthorizationFunction(), ocpp201.RemoteControlFunction()},
	}, protocol.Version201)

	st := NewStation()
	cfg := clientConfig(central, protocol.Version201)
	cfg.Session.CallTimeout = 0
	cfg.Session.PongWait = time.Hour
	c, err := NewClient(cfg, st.Profiles())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	clk := testclock.NewClock(time.Now())
	c.SetClock(clk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, st) }()

	info := waitNew(t, rec)
	wait := func(ch <-chan struct{}, what string) {
		t.Helper()
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			cancel()
			t.Fatalf("timed out waiting for %s", what)
		}
	}
	wait(booted, "boot notification")

	// The socket ping timer and the heartbeat timer.
	if err := clk.WaitAdvance(time.Minute, 5*time.Second, 2); err != nil {
		cancel()
		t.Fatalf("advance: %v", err)
	}
	wait(beats, "scheduled heartbeat")

	conf, err := central.Send(ctx, info.SessionID, ocpp201.NewTriggerMessageRequest(ocpp201.TriggerHeartbeat))
	if err != nil || conf.(*ocpp201.TriggerMessageResponse).Status != ocpp201.TriggerAccepted {
		cancel()
		t.Fatalf("trigger: %+v err=%v", conf, err)
	}
	wait(beats, "triggered heartbeat")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if _, ok := c.Session(); ok {
		t.Fatalf("session kept after Run returned")
	}
}
