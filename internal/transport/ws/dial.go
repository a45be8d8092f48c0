package ws

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/juju/clock"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/frame"
	"github.com/danmuck/ocppctl/internal/protocol/session"
)

// DialConfig describes the charge point side of a connection. Versions are
// offered in preference order; the server picks one.
type DialConfig struct {
	Versions []protocol.Version
	Features map[protocol.Version]feature.Set
	Session  session.Config
	Clock    clock.Clock
	Header   http.Header
	// OnClosed runs once when the returned session ends.
	OnClosed func(s *session.Session, cause error)
}

// Dial connects to rawURL, whose last path segment is the charge point
// identity, and returns an open session.
func Dial(ctx context.Context, rawURL string, cfg DialConfig) (*session.Session, error) {
	sessCfg := cfg.Session.WithDefaults()
	if err := sessCfg.ValidateClientTransport(); err != nil {
		return nil, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("ws: parse url: %w", err)
	}
	var tokens []string
	for _, v := range cfg.Versions {
		if _, ok := cfg.Features[v]; ok && v.SubProtocol() != "" {
			tokens = append(tokens, v.SubProtocol())
		}
	}
	if len(tokens) == 0 {
		return nil, ErrNoVersions
	}
	tlsCfg, err := sessCfg.ClientTLSConfig(u.Hostname())
	if err != nil {
		return nil, err
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: sessCfg.HandshakeTimeout,
		Subprotocols:     tokens,
		TLSClientConfig:  tlsCfg,
	}

	dialCtx, cancel := context.WithTimeout(ctx, sessCfg.ConnectTimeout+sessCfg.HandshakeTimeout)
	defer cancel()
	raw, resp, err := dialer.DialContext(dialCtx, u.String(), cfg.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws: dial %s: %w", u.Redacted(), err)
	}
	version, ok := protocol.VersionFromSubProtocol(raw.Subprotocol())
	if _, served := cfg.Features[version]; !ok || !served {
		_ = raw.Close()
		return nil, fmt.Errorf("%w: server chose %q", ErrUnsupportedProto, raw.Subprotocol())
	}

	conn := newConn(raw, sessCfg, cfg.Clock)
	s, err := session.New(session.Params{
		Information: session.Information{
			Identifier:    identifierFromPath(u.Path),
			RemoteAddress: conn.RemoteAddr(),
			Version:       version,
			Transport:     Transport,
		},
		Codec:        frame.NewCodec(frame.Limits{MaxFrameBytes: sessCfg.MaxFrameBytes}),
		Communicator: conn,
		Features:     cfg.Features[version],
		Config:       sessCfg,
		Clock:        cfg.Clock,
		OnClosed:     cfg.OnClosed,
	})
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	if err := s.Open(); err != nil {
		_ = raw.Close()
		return nil, err
	}
	conn.start(s)
	log.Info().
		Str("session", s.ID().String()).
		Str("url", u.Redacted()).
		Str("version", string(version)).
		Msg("ws.Dial connected")
	return s, nil
}
