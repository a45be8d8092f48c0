package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/testutil/testlog"
)

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.ID != "central.local" {
		t.Fatalf("unexpected id: %q", cfg.Server.ID)
	}
	if cfg.Server.WebSocketPort != 8887 || cfg.Server.SOAPPort != 8888 {
		t.Fatalf("unexpected ports: ws=%d soap=%d", cfg.Server.WebSocketPort, cfg.Server.SOAPPort)
	}
	if cfg.Server.SOAPEndpoint != "http://127.0.0.1:8888/ocpp" {
		t.Fatalf("unexpected soap endpoint: %q", cfg.Server.SOAPEndpoint)
	}
	if len(cfg.Server.Versions) != 2 || cfg.Server.Versions[0] != protocol.Version201 {
		t.Fatalf("unexpected versions: %v", cfg.Server.Versions)
	}
	if cfg.AdminAddr != "127.0.0.1:8080" {
		t.Fatalf("unexpected admin addr: %q", cfg.AdminAddr)
	}
	if cfg.HeartbeatInterval != 5*time.Minute {
		t.Fatalf("unexpected heartbeat: %v", cfg.HeartbeatInterval)
	}
	if len(cfg.IdTags) != 2 || cfg.IdTags[0] != "ABC123" {
		t.Fatalf("unexpected id tags: %v", cfg.IdTags)
	}
	if cfg.Server.Session.CallTimeout != 30*time.Second || cfg.Server.Session.SOAPIdleTimeout != 10*time.Minute {
		t.Fatalf("unexpected session timeouts: %+v", cfg.Server.Session)
	}
	if cfg.Server.Session.SecurityMode != "development" {
		t.Fatalf("unexpected security mode: %q", cfg.Server.Session.SecurityMode)
	}
	if cfg.Server.Session.TLS.Enabled || cfg.Server.Session.TLS.Mutual {
		t.Fatalf("expected tls disabled")
	}
	if cfg.AdminToken != "dev-admin-token" || cfg.Passwords["CP-001"] != "change-me" {
		t.Fatalf("unexpected credentials: token=%q passwords=%v", cfg.AdminToken, cfg.Passwords)
	}
}

func TestLoadServiceConfigKeepsDefaultsForAbsentKeys(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("call_timeout = \"0s\"\nmax_pending_calls = 1\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Session.CallTimeout != 0 {
		t.Fatalf("explicit zero call timeout must survive, got %v", cfg.Server.Session.CallTimeout)
	}
	if cfg.Server.Session.MaxPendingCalls != 1 {
		t.Fatalf("unexpected max pending calls: %d", cfg.Server.Session.MaxPendingCalls)
	}
	if cfg.Server.ID != "central.local" || cfg.AdminAddr != "127.0.0.1:8080" || cfg.Server.SOAPPort != 0 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadServiceConfigRejectsInvalidValues(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"version":       "versions = [\"1.2\"]\n",
		"duration":      "heartbeat_interval = \"often\"\n",
		"port clash":    "websocket_port = 9000\nsoap_port = 9000\n",
		"security mode": "session_security_mode = \"paranoid\"\n",
		"production":    "session_security_mode = \"production\"\n",
	}
	for name, body := range cases {
		path := filepath.Join(t.TempDir(), "config.toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
		if _, err := loadServiceConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
