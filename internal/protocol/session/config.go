package session

import "time"

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig names the certificate material a transport loads. The session
// core never reads it; only its presence switches a transport to TLS.
type TLSConfig struct {
	Enabled            bool
	Mutual             bool
	CertFile           string
	KeyFile            string
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines call and transport defaults shared by every session.
type Config struct {
	// CallTimeout bounds Await for outbound calls. Zero disables the timeout.
	CallTimeout      time.Duration
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// PingInterval must be shorter than PongWait; a peer silent for PongWait
	// is considered lost.
	PingInterval time.Duration
	PongWait     time.Duration
	// InboundBacklog is the per-session buffer of inbound Calls awaiting
	// their turn at the handler.
	InboundBacklog int
	// MaxPendingCalls caps concurrently outstanding outbound calls. Zero
	// means unlimited; 1 gives strict one-call-at-a-time behavior.
	MaxPendingCalls int
	MaxFrameBytes   int
	// SOAPIdleTimeout expires SOAP sessions that have seen no traffic.
	SOAPIdleTimeout time.Duration
	Backoff         BackoffConfig
	SecurityMode    SecurityMode
	TLS             TLSConfig
}

func DefaultConfig() Config {
	return Config{
		CallTimeout:      30 * time.Second,
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     54 * time.Second,
		PongWait:         60 * time.Second,
		InboundBacklog:   64,
		MaxPendingCalls:  0,
		MaxFrameBytes:    1024 * 1024,
		SOAPIdleTimeout:  10 * time.Minute,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     30 * time.Second,
			Jitter:       true,
		},
		SecurityMode: SecurityModeDevelopment,
	}
}

// WithDefaults fills zero-valued durations and sizes from DefaultConfig.
// CallTimeout and MaxPendingCalls are left alone: zero is meaningful there.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.PongWait <= 0 {
		c.PongWait = def.PongWait
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 9 / 10
	}
	if c.InboundBacklog <= 0 {
		c.InboundBacklog = def.InboundBacklog
	}
	if c.MaxPendingCalls < 0 {
		c.MaxPendingCalls = 0
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = def.MaxFrameBytes
	}
	if c.SOAPIdleTimeout <= 0 {
		c.SOAPIdleTimeout = def.SOAPIdleTimeout
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	c.SecurityMode = NormalizeSecurityMode(c.SecurityMode)
	return c
}
