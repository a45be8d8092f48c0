package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/ocppctl/internal/chargepoint"
	"github.com/danmuck/ocppctl/internal/config"
	"github.com/danmuck/ocppctl/internal/protocol/session"
)

// chargepoint config.toml key mapping to client settings.
type fileConfig struct {
	ID                  string   `toml:"id"`
	URL                 string   `toml:"url"`
	Versions            []string `toml:"versions"`
	Vendor              string   `toml:"vendor"`
	Model               string   `toml:"model"`
	MaxConnectAttempts  int      `toml:"max_connect_attempts"`
	Password            string   `toml:"password"`
	CallTimeout         string   `toml:"call_timeout"`
	BackoffInitial      string   `toml:"backoff_initial"`
	BackoffMax          string   `toml:"backoff_max"`
	FleetConfigPath     string   `toml:"fleet_config_path"`
	SessionSecurityMode string   `toml:"session_security_mode"`
	SessionTLSEnabled   bool     `toml:"session_tls_enabled"`
	SessionTLSMutual    bool     `toml:"session_tls_mutual"`
	SessionTLSCertFile  string   `toml:"session_tls_cert_file"`
	SessionTLSKeyFile   string   `toml:"session_tls_key_file"`
	SessionTLSCAFile    string   `toml:"session_tls_ca_file"`
	SessionTLSServer    string   `toml:"session_tls_server_name"`
}

// loadStationConfigs returns one client config, or one per fleet station
// when fleet_config_path is set. Fleet stations inherit every other key.
func loadStationConfigs(path string) ([]chargepoint.Config, error) {
	cfg := chargepoint.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load chargepoint config: %w", err)
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("versions") {
		versions, err := config.ParseVersions(raw.Versions)
		if err != nil {
			return nil, fmt.Errorf("load chargepoint config: %w", err)
		}
		cfg.Versions = versions
	}
	if meta.IsDefined("vendor") {
		cfg.Vendor = strings.TrimSpace(raw.Vendor)
	}
	if meta.IsDefined("model") {
		cfg.Model = strings.TrimSpace(raw.Model)
	}
	if meta.IsDefined("max_connect_attempts") {
		cfg.MaxAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("password") {
		cfg.Password = raw.Password
	}

	durations := []struct {
		key string
		raw string
		out *time.Duration
	}{
		{"call_timeout", raw.CallTimeout, &cfg.Session.CallTimeout},
		{"backoff_initial", raw.BackoffInitial, &cfg.Session.Backoff.InitialDelay},
		{"backoff_max", raw.BackoffMax, &cfg.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := config.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.out = v
	}

	if meta.IsDefined("session_security_mode") {
		cfg.Session.SecurityMode = session.SecurityMode(strings.TrimSpace(raw.SessionSecurityMode))
	}
	if meta.IsDefined("session_tls_enabled") {
		cfg.Session.TLS.Enabled = raw.SessionTLSEnabled
	}
	if meta.IsDefined("session_tls_mutual") {
		cfg.Session.TLS.Mutual = raw.SessionTLSMutual
	}
	if meta.IsDefined("session_tls_cert_file") {
		cfg.Session.TLS.CertFile = strings.TrimSpace(raw.SessionTLSCertFile)
	}
	if meta.IsDefined("session_tls_key_file") {
		cfg.Session.TLS.KeyFile = strings.TrimSpace(raw.SessionTLSKeyFile)
	}
	if meta.IsDefined("session_tls_ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.SessionTLSCAFile)
	}
	if meta.IsDefined("session_tls_server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.SessionTLSServer)
	}
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return nil, fmt.Errorf("load chargepoint config: %w", err)
	}
	cfg.Session = cfg.Session.WithDefaults()

	fleetPath := strings.TrimSpace(raw.FleetConfigPath)
	if fleetPath == "" {
		if err := config.ValidateStationEntry(config.StationEntry{ID: cfg.ID}); err != nil {
			return nil, fmt.Errorf("load chargepoint config: %w", err)
		}
		if err := config.ValidateStationURL(cfg.URL); err != nil {
			return nil, fmt.Errorf("load chargepoint config: %w", err)
		}
		return []chargepoint.Config{cfg}, nil
	}

	if !filepath.IsAbs(fleetPath) {
		fleetPath = filepath.Join(filepath.Dir(path), fleetPath)
	}
	fleet, err := config.LoadFleetConfig(fleetPath)
	if err != nil {
		return nil, fmt.Errorf("load chargepoint config: fleet %q: %w", raw.FleetConfigPath, err)
	}
	return config.FleetStations(fleet, cfg)
}
