package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/danmuck/ocppctl/internal/protocol"
)

// CentralSystemConfig is the on-disk shape of a central system daemon.
type CentralSystemConfig struct {
	ID                string            `toml:"id"`
	Host              string            `toml:"host"`
	WebSocketPort     int               `toml:"websocket_port"`
	SOAPPort          int               `toml:"soap_port"`
	SOAPEndpoint      string            `toml:"soap_endpoint"`
	Versions          []string          `toml:"versions"`
	Workers           int               `toml:"workers"`
	AdminAddr         string            `toml:"admin_addr"`
	CORSOrigins       []string          `toml:"cors_origins"`
	HeartbeatInterval string            `toml:"heartbeat_interval"`
	IdTags            []string          `toml:"id_tags"`
	CallTimeout       string            `toml:"call_timeout"`
	MaxPendingCalls   int               `toml:"max_pending_calls"`
	SOAPIdleTimeout   string            `toml:"soap_idle_timeout"`
	AdminToken        string            `toml:"admin_token"`
	Passwords         map[string]string `toml:"passwords"`
}

// StationEntry is one simulated charge point of a fleet.
type StationEntry struct {
	ID       string `toml:"id"`
	Vendor   string `toml:"vendor"`
	Model    string `toml:"model"`
	Version  string `toml:"version"`
	Password string `toml:"password"`
}

// FleetConfig describes a set of charge points sharing one central system.
type FleetConfig struct {
	URL         string         `toml:"url"`
	Versions    []string       `toml:"versions"`
	MaxAttempts int            `toml:"max_connect_attempts"`
	Stations    []StationEntry `toml:"stations"`
}

func LoadCentralSystemConfig(path string) (CentralSystemConfig, error) {
	var cfg CentralSystemConfig
	if err := loadToml(path, &cfg); err != nil {
		return CentralSystemConfig{}, err
	}
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = "central.local"
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.WebSocketPort == 0 {
		cfg.WebSocketPort = 8887
	}
	if len(cfg.Versions) == 0 {
		cfg.Versions = []string{string(protocol.Version201), string(protocol.Version16)}
	}
	if err := ValidateCentralSystemConfig(cfg); err != nil {
		return CentralSystemConfig{}, err
	}
	return cfg, nil
}

func LoadFleetConfig(path string) (FleetConfig, error) {
	var cfg FleetConfig
	if err := loadToml(path, &cfg); err != nil {
		return FleetConfig{}, err
	}
	if len(cfg.Versions) == 0 {
		cfg.Versions = []string{string(protocol.Version201), string(protocol.Version16)}
	}
	if err := ValidateFleetConfig(cfg); err != nil {
		return FleetConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateCentralSystemConfig(cfg CentralSystemConfig) error {
	if err := validatePort("websocket_port", cfg.WebSocketPort); err != nil {
		return err
	}
	if cfg.SOAPPort != 0 {
		if err := validatePort("soap_port", cfg.SOAPPort); err != nil {
			return err
		}
		if cfg.SOAPPort == cfg.WebSocketPort {
			return fmt.Errorf("soap_port must differ from websocket_port (%d)", cfg.SOAPPort)
		}
	}
	if _, err := ParseVersions(cfg.Versions); err != nil {
		return err
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if cfg.MaxPendingCalls < 0 {
		return fmt.Errorf("max_pending_calls must not be negative")
	}
	for key, value := range map[string]string{
		"heartbeat_interval": cfg.HeartbeatInterval,
		"call_timeout":       cfg.CallTimeout,
		"soap_idle_timeout":  cfg.SOAPIdleTimeout,
	} {
		if _, err := ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	for _, tag := range cfg.IdTags {
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("id_tags must not contain empty entries")
		}
	}
	for identity, password := range cfg.Passwords {
		if strings.TrimSpace(identity) == "" || password == "" {
			return fmt.Errorf("passwords must map a charge point identity to a non-empty password")
		}
	}
	return nil
}

func ValidateFleetConfig(cfg FleetConfig) error {
	if err := ValidateStationURL(cfg.URL); err != nil {
		return err
	}
	if _, err := ParseVersions(cfg.Versions); err != nil {
		return err
	}
	if cfg.MaxAttempts < 0 {
		return fmt.Errorf("max_connect_attempts must not be negative")
	}
	if len(cfg.Stations) == 0 {
		return fmt.Errorf("fleet requires at least one station")
	}
	seen := make(map[string]struct{}, len(cfg.Stations))
	for _, entry := range cfg.Stations {
		if err := ValidateStationEntry(entry); err != nil {
			return err
		}
		id := strings.TrimSpace(entry.ID)
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicate station id: %s", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func ValidateStationEntry(entry StationEntry) error {
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return fmt.Errorf("station id is required")
	}
	if strings.ContainsAny(id, "/?# ") {
		return fmt.Errorf("station %s: id must be a single path segment", id)
	}
	if entry.Version != "" {
		if !protocol.Version(entry.Version).Valid() {
			return fmt.Errorf("station %s: %w: %q", id, protocol.ErrUnsupportedVersion, entry.Version)
		}
	}
	return nil
}

// ValidateStationURL accepts ws and wss endpoints.
func ValidateStationURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("url host is required")
	}
	return nil
}

// ParseVersions maps version strings in preference order, dropping repeats.
func ParseVersions(in []string) ([]protocol.Version, error) {
	out := make([]protocol.Version, 0, len(in))
	seen := make(map[protocol.Version]struct{}, len(in))
	for _, raw := range in {
		v := protocol.Version(strings.TrimSpace(raw))
		if !v.Valid() {
			return nil, fmt.Errorf("versions: %w: %q", protocol.ErrUnsupportedVersion, raw)
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("versions must name at least one of %s, %s", protocol.Version16, protocol.Version201)
	}
	return out, nil
}

// ParseDuration treats an empty value as zero.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %s", raw)
	}
	return d, nil
}

func validatePort(key string, port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%s out of range: %d", key, port)
	}
	return nil
}
