package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/ocppctl/internal/centralsystem"
	"github.com/danmuck/ocppctl/internal/config"
	"github.com/danmuck/ocppctl/internal/protocol/session"
)

// centralsystem config.toml key mapping to service settings.
type fileConfig struct {
	ID                  string   `toml:"id"`
	Host                string   `toml:"host"`
	WebSocketPort       int      `toml:"websocket_port"`
	SOAPPort            int      `toml:"soap_port"`
	SOAPEndpoint        string   `toml:"soap_endpoint"`
	Versions            []string `toml:"versions"`
	Workers             int      `toml:"workers"`
	AdminAddr           string   `toml:"admin_addr"`
	CORSOrigins         []string `toml:"cors_origins"`
	HeartbeatInterval   string   `toml:"heartbeat_interval"`
	IdTags              []string `toml:"id_tags"`
	CallTimeout         string   `toml:"call_timeout"`
	MaxPendingCalls     int      `toml:"max_pending_calls"`
	SOAPIdleTimeout     string   `toml:"soap_idle_timeout"`
	SessionSecurityMode string   `toml:"session_security_mode"`
	SessionTLSEnabled   bool     `toml:"session_tls_enabled"`
	SessionTLSMutual    bool     `toml:"session_tls_mutual"`
	SessionTLSCertFile  string   `toml:"session_tls_cert_file"`
	SessionTLSKeyFile   string   `toml:"session_tls_key_file"`
	SessionTLSCAFile    string   `toml:"session_tls_ca_file"`
	AdminToken          string   `toml:"admin_token"`
	// passwords maps charge point identity to its Basic auth password.
	Passwords map[string]string `toml:"passwords"`
}

// loadServiceConfig overlays the keys present in path on the defaults.
func loadServiceConfig(path string) (centralsystem.ServiceConfig, error) {
	cfg := centralsystem.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return centralsystem.ServiceConfig{}, fmt.Errorf("load centralsystem config: %w", err)
	}

	if meta.IsDefined("id") {
		if id := strings.TrimSpace(raw.ID); id != "" {
			cfg.Server.ID = id
		}
	}
	if meta.IsDefined("host") {
		cfg.Server.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("websocket_port") {
		cfg.Server.WebSocketPort = raw.WebSocketPort
	}
	if meta.IsDefined("soap_port") {
		cfg.Server.SOAPPort = raw.SOAPPort
	}
	if meta.IsDefined("soap_endpoint") {
		cfg.Server.SOAPEndpoint = strings.TrimSpace(raw.SOAPEndpoint)
	}
	if meta.IsDefined("versions") {
		versions, err := config.ParseVersions(raw.Versions)
		if err != nil {
			return centralsystem.ServiceConfig{}, fmt.Errorf("load centralsystem config: %w", err)
		}
		cfg.Server.Versions = versions
	}
	if meta.IsDefined("workers") {
		cfg.Server.Workers = raw.Workers
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}
	if meta.IsDefined("id_tags") {
		cfg.IdTags = raw.IdTags
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("passwords") {
		cfg.Passwords = raw.Passwords
	}
	if meta.IsDefined("max_pending_calls") {
		cfg.Server.Session.MaxPendingCalls = raw.MaxPendingCalls
	}

	durations := []struct {
		key string
		raw string
		out *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &cfg.HeartbeatInterval},
		{"call_timeout", raw.CallTimeout, &cfg.Server.Session.CallTimeout},
		{"soap_idle_timeout", raw.SOAPIdleTimeout, &cfg.Server.Session.SOAPIdleTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := config.ParseDuration(d.raw)
		if err != nil {
			return centralsystem.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.out = v
	}

	if meta.IsDefined("session_security_mode") {
		cfg.Server.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SessionSecurityMode))
	}
	if meta.IsDefined("session_tls_enabled") {
		cfg.Server.Session.TLS.Enabled = raw.SessionTLSEnabled
	}
	if meta.IsDefined("session_tls_mutual") {
		cfg.Server.Session.TLS.Mutual = raw.SessionTLSMutual
	}
	if meta.IsDefined("session_tls_cert_file") {
		cfg.Server.Session.TLS.CertFile = strings.TrimSpace(raw.SessionTLSCertFile)
	}
	if meta.IsDefined("session_tls_key_file") {
		cfg.Server.Session.TLS.KeyFile = strings.TrimSpace(raw.SessionTLSKeyFile)
	}
	if meta.IsDefined("session_tls_ca_file") {
		cfg.Server.Session.TLS.CAFile = strings.TrimSpace(raw.SessionTLSCAFile)
	}

	if cfg.Server.SOAPPort != 0 && cfg.Server.SOAPPort == cfg.Server.WebSocketPort {
		return centralsystem.ServiceConfig{}, fmt.Errorf(
			"load centralsystem config: soap_port and websocket_port must differ (%d)",
			cfg.Server.SOAPPort,
		)
	}
	if err := cfg.Server.Session.ValidateServerTransport(); err != nil {
		return centralsystem.ServiceConfig{}, fmt.Errorf("load centralsystem config: %w", err)
	}
	cfg.Server.Session = cfg.Server.Session.WithDefaults()
	return cfg, nil
}
