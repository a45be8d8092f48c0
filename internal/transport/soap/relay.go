package soap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/protocol/soapenv"
)

var (
	ErrNoReplyAddress = errors.New("soap: charge point announced no reply address")
	ErrRelayStatus    = errors.New("soap: unexpected relay status")
)

// HTTPRelay posts outbound envelopes to charge points and returns their
// synchronous response envelope.
type HTTPRelay struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPRelay builds a relay whose TLS policy follows cfg.
func NewHTTPRelay(cfg session.Config) (*HTTPRelay, error) {
	cfg = cfg.WithDefaults()
	transport := http.DefaultTransport.(*http.Transport).Clone()
	tlsCfg, err := cfg.ClientTLSConfig("")
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		transport.TLSClientConfig = tlsCfg
	}
	return &HTTPRelay{
		client:   &http.Client{Transport: transport, Timeout: cfg.ConnectTimeout + cfg.WriteTimeout + cfg.CallTimeout},
		maxBytes: int64(cfg.MaxFrameBytes),
	}, nil
}

// Post delivers envelope to address. A SOAP fault is a valid answer and is
// returned as the body, whatever the HTTP status.
func (r *HTTPRelay) Post(ctx context.Context, address string, envelope []byte) ([]byte, error) {
	if address == "" {
		return nil, ErrNoReplyAddress
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("soap: build relay request: %w", err)
	}
	req.Header.Set("Content-Type", soapenv.ContentType)
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("soap: relay to %s: %w", address, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("soap: read relay response: %w", err)
	}
	if int64(len(body)) > r.maxBytes {
		return nil, fmt.Errorf("soap: relay response exceeds %d bytes", r.maxBytes)
	}
	if resp.StatusCode/100 == 2 {
		return body, nil
	}
	if h, err := soapenv.ReadHeader(body); err == nil && h.Action == soapenv.ActionFault {
		return body, nil
	}
	return nil, fmt.Errorf("%w: %s from %s", ErrRelayStatus, resp.Status, address)
}

// CloseIdle drops kept-alive relay connections.
func (r *HTTPRelay) CloseIdle() {
	r.client.CloseIdleConnections()
}
