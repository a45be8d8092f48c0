package config

import (
	"strings"

	"github.com/danmuck/ocppctl/internal/centralsystem"
	"github.com/danmuck/ocppctl/internal/chargepoint"
	"github.com/danmuck/ocppctl/internal/protocol"
)

// CentralSystemService overlays a validated file config on the service
// defaults.
func CentralSystemService(cfg CentralSystemConfig) (centralsystem.ServiceConfig, error) {
	out := centralsystem.DefaultServiceConfig()
	versions, err := ParseVersions(cfg.Versions)
	if err != nil {
		return centralsystem.ServiceConfig{}, err
	}
	out.Server.ID = strings.TrimSpace(cfg.ID)
	out.Server.Host = strings.TrimSpace(cfg.Host)
	out.Server.WebSocketPort = cfg.WebSocketPort
	out.Server.SOAPPort = cfg.SOAPPort
	out.Server.SOAPEndpoint = strings.TrimSpace(cfg.SOAPEndpoint)
	out.Server.Versions = versions
	if cfg.Workers > 0 {
		out.Server.Workers = cfg.Workers
	}
	out.Server.Session.MaxPendingCalls = cfg.MaxPendingCalls
	if d, _ := ParseDuration(cfg.CallTimeout); d > 0 {
		out.Server.Session.CallTimeout = d
	}
	if d, _ := ParseDuration(cfg.SOAPIdleTimeout); d > 0 {
		out.Server.Session.SOAPIdleTimeout = d
	}
	if d, _ := ParseDuration(cfg.HeartbeatInterval); d > 0 {
		out.HeartbeatInterval = d
	}
	if cfg.AdminAddr != "" {
		out.AdminAddr = strings.TrimSpace(cfg.AdminAddr)
	}
	out.AdminToken = strings.TrimSpace(cfg.AdminToken)
	out.CORSOrigins = cfg.CORSOrigins
	out.IdTags = cfg.IdTags
	out.Passwords = cfg.Passwords
	return out, nil
}

// FleetStations expands a fleet into one client config per station,
// starting from base for everything the fleet file does not name.
func FleetStations(fleet FleetConfig, base chargepoint.Config) ([]chargepoint.Config, error) {
	versions, err := ParseVersions(fleet.Versions)
	if err != nil {
		return nil, err
	}
	out := make([]chargepoint.Config, 0, len(fleet.Stations))
	for _, entry := range fleet.Stations {
		cfg := base
		cfg.ID = strings.TrimSpace(entry.ID)
		cfg.URL = strings.TrimSpace(fleet.URL)
		cfg.Versions = versions
		if entry.Version != "" {
			cfg.Versions = []protocol.Version{protocol.Version(entry.Version)}
		}
		if v := strings.TrimSpace(entry.Vendor); v != "" {
			cfg.Vendor = v
		}
		if m := strings.TrimSpace(entry.Model); m != "" {
			cfg.Model = m
		}
		if entry.Password != "" {
			cfg.Password = entry.Password
		}
		if fleet.MaxAttempts > 0 {
			cfg.MaxAttempts = fleet.MaxAttempts
		}
		out = append(out, cfg)
	}
	return out, nil
}
