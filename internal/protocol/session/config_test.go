package session

import (
	"context"
	"crypto/tls"
	"errors"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/danmuck/ocppctl/internal/testutil/testlog"
	"github.com/danmuck/ocppctl/internal/testutil/tlstest"
)

func TestWithDefaultsKeepsMeaningfulZeros(t *testing.T) {
	testlog.Start(t)
	cfg := Config{CallTimeout: 0, MaxPendingCalls: 1, PongWait: 10 * time.Second, PingInterval: 20 * time.Second}.WithDefaults()
	if cfg.CallTimeout != 0 {
		t.Fatalf("call timeout should stay disabled, got %v", cfg.CallTimeout)
	}
	if cfg.MaxPendingCalls != 1 {
		t.Fatalf("unexpected pending cap=%d", cfg.MaxPendingCalls)
	}
	if cfg.PingInterval != 9*time.Second {
		t.Fatalf("ping interval must sit under pong wait, got %v", cfg.PingInterval)
	}
	if cfg.InboundBacklog != 64 || cfg.WriteTimeout != 10*time.Second || cfg.SecurityMode != SecurityModeDevelopment {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	got := NextBackoffDelay(cfg, 1, rng)
	if got < 125*time.Millisecond || got > 375*time.Millisecond {
		t.Fatalf("jitter out of range: %v", got)
	}
}

func TestWaitBackoffFollowsClock(t *testing.T) {
	testlog.Start(t)
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 2}
	done := make(chan error, 1)
	go func() {
		done <- WaitBackoff(context.Background(), clk, cfg, 2, nil)
	}()
	if err := clk.WaitAdvance(2*time.Second, 5*time.Second, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("wait backoff: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitBackoff(ctx, clk, cfg, 3, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestValidateClientTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
}

func TestValidateClientTransportMutualRequiresCertKeyCA(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.TLS.Enabled = true
	cfg.TLS.Mutual = true
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ErrTLSCAFileRequired, got %v", err)
	}

	cfg.TLS.CAFile = "/tmp/ca.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected ErrTLSCertFileRequired, got %v", err)
	}

	cfg.TLS.CertFile = "/tmp/client.pem"
	if err := cfg.ValidateClientTransport(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected ErrTLSKeyFileRequired, got %v", err)
	}

	cfg.TLS.KeyFile = "/tmp/client.key"
	if err := cfg.ValidateClientTransport(); err != nil {
		t.Fatalf("expected valid transport config, got %v", err)
	}
}

func TestValidateServerTransportProductionRequiresTLSMTLS(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.SecurityMode = SecurityModeProduction
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrTLSRequired) {
		t.Fatalf("expected ErrTLSRequired, got %v", err)
	}

	cfg.TLS.Enabled = true
	if err := cfg.ValidateServerTransport(); !errors.Is(err, ErrMTLSRequired) {
		t.Fatalf("expected ErrMTLSRequired, got %v", err)
	}
}

func TestTLSConfigsDisabledReturnNil(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	server, err := cfg.ServerTLSConfig()
	if err != nil || server != nil {
		t.Fatalf("expected nil server tls config, got %v err=%v", server, err)
	}
	client, err := cfg.ClientTLSConfig("localhost")
	if err != nil || client != nil {
		t.Fatalf("expected nil client tls config, got %v err=%v", client, err)
	}
}

func TestTLSConfigsLoadMutualMaterial(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	ca := tlstest.NewAuthority(t, dir, "ocpp-test-ca")
	serverCert, serverKey := ca.IssueServerCert(t, dir, "central", []string{"localhost"}, []net.IP{net.ParseIP("127.0.0.1")})
	clientCert, clientKey := ca.IssueClientCert(t, dir, "CP-001")

	serverCfg := DefaultConfig()
	serverCfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: serverCert, KeyFile: serverKey, CAFile: ca.CAFile()}
	st, err := serverCfg.ServerTLSConfig()
	if err != nil {
		t.Fatalf("server tls config: %v", err)
	}
	if st.ClientAuth != tls.RequireAndVerifyClientCert || st.ClientCAs == nil || len(st.Certificates) != 1 {
		t.Fatalf("unexpected server tls config: %+v", st)
	}

	clientCfg := DefaultConfig()
	clientCfg.TLS = TLSConfig{Enabled: true, Mutual: true, CertFile: clientCert, KeyFile: clientKey, CAFile: ca.CAFile()}
	ct, err := clientCfg.ClientTLSConfig("localhost")
	if err != nil {
		t.Fatalf("client tls config: %v", err)
	}
	if ct.ServerName != "localhost" || ct.RootCAs == nil || len(ct.Certificates) != 1 {
		t.Fatalf("unexpected client tls config: %+v", ct)
	}
}
