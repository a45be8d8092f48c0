package soap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"

	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/ocpp16"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/protocol/soapenv"
	"github.com/danmuck/ocppctl/internal/testutil/testlog"
)

type events struct {
	newCh  chan session.Information
	lostCh chan uuid.UUID
}

func newEvents() *events {
	return &events{
		newCh:  make(chan session.Information, 8),
		lostCh: make(chan uuid.UUID, 8),
	}
}

func (e *events) NewSession(s *session.Session, info session.Information) {
	e.newCh <- info
}

func (e *events) LostSession(id uuid.UUID) {
	e.lostCh <- id
}

func centralFeatures(t *testing.T, release <-chan struct{}) feature.Set {
	t.Helper()
	core := ocpp16.CoreProfile().MustBind(map[string]feature.Handler{
		ocpp16.ActionBootNotification: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.BootNotificationRequest) (*ocpp16.BootNotificationConfirmation, error) {
			return &ocpp16.BootNotificationConfirmation{Status: ocpp16.RegistrationAccepted, CurrentTime: time.Now(), Interval: 300}, nil
		}),
		ocpp16.ActionHeartbeat: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.HeartbeatRequest) (*ocpp16.HeartbeatConfirmation, error) {
			return &ocpp16.HeartbeatConfirmation{CurrentTime: time.Now()}, nil
		}),
		// Authorize never answers until the session ends or release closes.
		ocpp16.ActionAuthorize: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.AuthorizeRequest) (*ocpp16.AuthorizeConfirmation, error) {
			select {
			case <-ctx.Done():
			case <-release:
			}
			return nil, ctx.Err()
		}),
	})
	set, err := feature.NewSet(protocol.Version16, feature.OriginCentralSystem, core)
	if err != nil {
		t.Fatalf("new set: %v", err)
	}
	return set
}

type harness struct {
	l     *Listener
	ev    *events
	clk   *testclock.Clock
	url   string
	codec *soapenv.Codec
}

func startListener(t *testing.T, stationURL string) *harness {
	t.Helper()
	release := make(chan struct{})
	clk := testclock.NewClock(time.Now())
	cfg := session.DefaultConfig()
	cfg.CallTimeout = 5 * time.Second
	cfg.SOAPIdleTimeout = 10 * time.Minute
	l, err := NewListener(ListenerConfig{Features: centralFeatures(t, release), Session: cfg, Clock: clk})
	if err != nil {
		t.Fatalf("new listener: %v", err)
	}
	ev := newEvents()
	srv := httptest.NewServer(l.Handler(ev))
	t.Cleanup(func() {
		close(release)
		_ = l.Close()
		srv.Close()
	})
	return &harness{
		l:     l,
		ev:    ev,
		clk:   clk,
		url:   srv.URL + "/ocpp",
		codec: soapenv.NewCodec(soapenv.ChargePointAddressing("CP-001", stationURL, srv.URL+"/ocpp")),
	}
}

func (h *harness) encode(t *testing.T, id string, req feature.Request) []byte {
	t.Helper()
	payload, err := h.codec.MarshalPayload(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	wire, err := h.codec.Encode(&protocol.Call{ID: id, Action: req.Action(), Payload: payload})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return wire
}

func (h *harness) decode(t *testing.T, status int, body []byte) protocol.Message {
	t.Helper()
	msg, err := h.codec.Decode(body)
	if err != nil {
		t.Fatalf("decode reply (status %d): %v\n%s", status, err, body)
	}
	return msg
}

// call posts req as a charge point would and returns the HTTP status and
// the decoded reply.
func (h *harness) call(t *testing.T, id string, req feature.Request) (int, protocol.Message) {
	t.Helper()
	status, body := post(t, h.url, h.encode(t, id, req))
	return status, h.decode(t, status, body)
}

func postRaw(url string, body []byte) (int, []byte, error) {
	resp, err := http.Post(url, soapenv.ContentType, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func post(t *testing.T, url string, body []byte) (int, []byte) {
	t.Helper()
	status, out, err := postRaw(url, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return status, out
}

func waitNew(t *testing.T, ev *events) session.Information {
	t.Helper()
	select {
	case info := <-ev.newCh:
		return info
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for NewSession")
		return session.Information{}
	}
}

func waitLost(t *testing.T, ev *events) uuid.UUID {
	t.Helper()
	select {
	case id := <-ev.lostCh:
		return id
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for LostSession")
		return uuid.Nil
	}
}

func TestBootNotificationOpensSessionPerIdentity(t *testing.T) {
	testlog.Start(t)
	h := startListener(t, "http://10.0.0.7:8080/ocpp")

	status, msg := h.call(t, "urn:uuid:boot-1", ocpp16.NewBootNotificationRequest("Acme", "X1"))
	if status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	result, ok := msg.(*protocol.CallResult)
	if !ok || result.ID != "urn:uuid:boot-1" {
		t.Fatalf("unexpected reply: %#v", msg)
	}
	var conf ocpp16.BootNotificationConfirmation
	if err := h.codec.UnmarshalPayload(result.Payload, &conf); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if conf.Status != ocpp16.RegistrationAccepted || conf.Interval != 300 {
		t.Fatalf("unexpected confirmation: %+v", conf)
	}

	info := waitNew(t, h.ev)
	if info.Identifier != "CP-001" || info.Transport != Transport || info.Version != protocol.Version16 {
		t.Fatalf("unexpected information: %+v", info)
	}

	// The same identity reuses its session.
	if status, _ := h.call(t, "urn:uuid:hb-1", &ocpp16.HeartbeatRequest{}); status != http.StatusOK {
		t.Fatalf("heartbeat status %d", status)
	}
	if got := len(h.l.Sessions()); got != 1 {
		t.Fatalf("expected one session, got %d", got)
	}
	select {
	case extra := <-h.ev.newCh:
		t.Fatalf("unexpected second session: %+v", extra)
	default:
	}
}

func TestUnknownActionAnswersFault(t *testing.T) {
	testlog.Start(t)
	h := startListener(t, "")

	status, msg := h.call(t, "urn:uuid:st-1", &ocpp16.StatusNotificationRequest{
		ConnectorID: 1,
		ErrorCode:   ocpp16.ErrorCodeNoError,
		Status:      ocpp16.StatusAvailable,
	})
	callErr, ok := msg.(*protocol.CallError)
	if !ok || callErr.ID != "urn:uuid:st-1" || callErr.Code != protocol.NotSupported {
		t.Fatalf("expected NotSupported fault, got %#v", msg)
	}
	if status != http.StatusInternalServerError {
		t.Fatalf("fault status %d", status)
	}
}

func TestUnansweredRequestTimesOutWithFault(t *testing.T) {
	testlog.Start(t)
	h := startListener(t, "")

	type reply struct {
		status int
		body   []byte
		err    error
	}
	wire := h.encode(t, "urn:uuid:auth-1", ocpp16.NewAuthorizeRequest("ABC123"))
	done := make(chan reply, 1)
	go func() {
		status, body, err := postRaw(h.url, wire)
		done <- reply{status, body, err}
	}()

	// The sweeper and the bridge timer are both waiting.
	if err := h.clk.WaitAdvance(5*time.Second, 5*time.Second, 2); err != nil {
		t.Fatalf("advance: %v", err)
	}
	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("post: %v", r.err)
		}
		msg := h.decode(t, r.status, r.body)
		callErr, ok := msg.(*protocol.CallError)
		if !ok || callErr.Code != protocol.InternalError || callErr.ID != "urn:uuid:auth-1" {
			t.Fatalf("expected InternalError fault, got %#v", msg)
		}
		if r.status != http.StatusInternalServerError {
			t.Fatalf("unexpected status %d", r.status)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("handler did not return after bridge timeout")
	}
}

func TestIdleSessionExpires(t *testing.T) {
	testlog.Start(t)
	h := startListener(t, "")

	if status, _ := h.call(t, "urn:uuid:hb-1", &ocpp16.HeartbeatRequest{}); status != http.StatusOK {
		t.Fatalf("heartbeat status %d", status)
	}
	waitNew(t, h.ev)
	s, ok := h.l.Session("CP-001")
	if !ok {
		t.Fatalf("session not tracked")
	}

	// Half the idle timeout is not enough.
	if err := h.clk.WaitAdvance(5*time.Minute, 5*time.Second, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := h.clk.WaitAdvance(5*time.Minute, 5*time.Second, 1); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if id := waitLost(t, h.ev); id != s.ID() {
		t.Fatalf("lost %s, want %s", id, s.ID())
	}
	if _, ok := h.l.Session("CP-001"); ok {
		t.Fatalf("expired session still tracked")
	}
	if s.State() != session.StateClosed {
		t.Fatalf("unexpected state %s", s.State())
	}

	// The next request starts a fresh session.
	if status, _ := h.call(t, "urn:uuid:hb-2", &ocpp16.HeartbeatRequest{}); status != http.StatusOK {
		t.Fatalf("heartbeat status %d", status)
	}
	if info := waitNew(t, h.ev); info.SessionID == s.ID() {
		t.Fatalf("expected a new session id")
	}
}

func TestOutboundCallIsRelayedToChargePoint(t *testing.T) {
	testlog.Start(t)
	station := soapenv.NewCodec(soapenv.ChargePointAddressing("CP-001", "", ""))
	actions := make(chan string, 1)
	cp := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		msg, err := station.Decode(body)
		call, ok := msg.(*protocol.Call)
		if err != nil || !ok {
			http.Error(w, "bad call", http.StatusBadRequest)
			return
		}
		actions <- call.Action
		payload, _ := station.MarshalPayload(&ocpp16.ResetConfirmation{Status: ocpp16.RemoteAccepted})
		wire, _ := station.Encode(&protocol.CallResult{ID: call.ID, Payload: payload})
		w.Header().Set("Content-Type", soapenv.ContentType)
		_, _ = w.Write(wire)
	}))
	defer cp.Close()

	h := startListener(t, cp.URL)
	if status, _ := h.call(t, "urn:uuid:hb-1", &ocpp16.HeartbeatRequest{}); status != http.StatusOK {
		t.Fatalf("heartbeat status %d", status)
	}
	s, ok := h.l.Session("CP-001")
	if !ok {
		t.Fatalf("session not tracked")
	}
	conf, err := s.Call(context.Background(), ocpp16.NewResetRequest(ocpp16.ResetSoft))
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if conf.(*ocpp16.ResetConfirmation).Status != ocpp16.RemoteAccepted {
		t.Fatalf("unexpected reset outcome: %+v", conf)
	}
	if got := <-actions; got != ocpp16.ActionReset {
		t.Fatalf("charge point saw action %q", got)
	}
}

func TestRejectsEnvelopesWithoutRouting(t *testing.T) {
	testlog.Start(t)
	h := startListener(t, "")

	anon := soapenv.NewCodec(soapenv.ChargePointAddressing("", "", ""))
	wire, err := anon.Encode(&protocol.Call{ID: "m-1", Action: ocpp16.ActionHeartbeat})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if status, _ := post(t, h.url, wire); status != http.StatusBadRequest {
		t.Fatalf("missing identity: status %d", status)
	}
	if status, _ := post(t, h.url, []byte("not xml")); status != http.StatusBadRequest {
		t.Fatalf("garbage: status %d", status)
	}

	// A posted reply nobody waits for is accepted and dropped.
	late, err := h.codec.Encode(&protocol.CallResult{ID: "urn:uuid:gone"})
	if err != nil {
		t.Fatalf("encode reply: %v", err)
	}
	if status, _ := post(t, h.url, late); status != http.StatusAccepted {
		t.Fatalf("late reply: status %d", status)
	}
}

func TestHTTPRelayOutcomes(t *testing.T) {
	testlog.Start(t)
	relay, err := NewHTTPRelay(session.DefaultConfig())
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	defer relay.CloseIdle()

	codec := soapenv.NewCodec(soapenv.ChargePointAddressing("CP-001", "", ""))
	fault, err := codec.Encode(protocol.NewCallError("m-1", protocol.InternalError, "boom"))
	if err != nil {
		t.Fatalf("encode fault: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fault":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(fault)
		default:
			http.Error(w, "nope", http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	body, err := relay.Post(ctx, srv.URL+"/fault", []byte("<x/>"))
	if err != nil || !bytes.Equal(body, fault) {
		t.Fatalf("fault should be returned as body: err=%v", err)
	}
	if _, err := relay.Post(ctx, srv.URL+"/other", []byte("<x/>")); !errors.Is(err, ErrRelayStatus) {
		t.Fatalf("expected ErrRelayStatus, got %v", err)
	}
	if _, err := relay.Post(ctx, "", []byte("<x/>")); !errors.Is(err, ErrNoReplyAddress) {
		t.Fatalf("expected ErrNoReplyAddress, got %v", err)
	}
}

func TestBridgeRejectsDuplicateAndClosedExchanges(t *testing.T) {
	testlog.Start(t)
	b := NewBridge(nil, testclock.NewClock(time.Now()), time.Second)
	if err := b.deliver("nobody", nil); !errors.Is(err, ErrNoWaiter) {
		t.Fatalf("expected ErrNoWaiter, got %v", err)
	}
	_ = b.Close()
	_ = b.Close()
	if _, err := b.Exchange(context.Background(), "m-1", nil); !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed, got %v", err)
	}
	if err := b.Transmit(context.Background(), []byte(`<Envelope><Header><Action>/Reset</Action><MessageID>m</MessageID></Header><Body/></Envelope>`)); !errors.Is(err, ErrBridgeClosed) {
		t.Fatalf("expected ErrBridgeClosed on transmit, got %v", err)
	}
}
