package centralsystem

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/danmuck/ocppctl/internal/auth"
	"github.com/danmuck/ocppctl/internal/feature"
	"github.com/danmuck/ocppctl/internal/ocpp16"
	"github.com/danmuck/ocppctl/internal/protocol"
	"github.com/danmuck/ocppctl/internal/protocol/session"
	"github.com/danmuck/ocppctl/internal/testutil/testlog"
	"github.com/danmuck/ocppctl/internal/transport/ws"
)

type recorder struct {
	newCh  chan session.Information
	lostCh chan uuid.UUID
}

func newRecorder() *recorder {
	return &recorder{
		newCh:  make(chan session.Information, 8),
		lostCh: make(chan uuid.UUID, 8),
	}
}

func (r *recorder) NewSession(info session.Information) { r.newCh <- info }
func (r *recorder) LostSession(id uuid.UUID)             { r.lostCh <- id }

func testServerConfig() Config {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.WebSocketPort = 0
	cfg.Session.CallTimeout = 5 * time.Second
	return cfg
}

func openServer(t *testing.T) (*Server, *recorder) {
	t.Helper()
	rec := newRecorder()
	s, err := NewServer(testServerConfig(), NewBackend(time.Minute, []string{"ABC123"}, nil).Profiles(), rec)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func dialStation(t *testing.T, s *Server, identity string) *session.Session {
	t.Helper()
	core := ocpp16.CoreProfile().MustBind(map[string]feature.Handler{
		ocpp16.ActionReset: feature.Handle(func(ctx context.Context, id uuid.UUID, req *ocpp16.ResetRequest) (*ocpp16.ResetConfirmation, error) {
			status := ocpp16.RemoteAccepted
			if req.Type == ocpp16.ResetHard {
				status = ocpp16.RemoteRejected
			}
			return &ocpp16.ResetConfirmation{Status: status}, nil
		}),
	})
	set, err := feature.NewSet(protocol.Version16, feature.OriginChargePoint, core)
	if err != nil {
		t.Fatalf("station set: %v", err)
	}
	url := "ws://" + s.WebSocketAddr().String() + "/ocpp/" + identity
	station, err := ws.Dial(context.Background(), url, ws.DialConfig{
		Versions: []protocol.Version{protocol.Version16},
		Features: map[protocol.Version]feature.Set{protocol.Version16: set},
		Session:  testServerConfig().Session,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = station.Close() })
	return station
}

func waitNew(t *testing.T, rec *recorder) session.Information {
	t.Helper()
	select {
	case info := <-rec.newCh:
		return info
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for NewSession")
		return session.Information{}
	}
}

func TestServerTracksSessionsAndRoutesCalls(t *testing.T) {
	testlog.Start(t)
	s, rec := openServer(t)
	station := dialStation(t, s, "CP-001")
	info := waitNew(t, rec)
	if info.Identifier != "CP-001" || info.Version != protocol.Version16 {
		t.Fatalf("unexpected information: %+v", info)
	}

	conf, err := station.Call(context.Background(), ocpp16.NewBootNotificationRequest("Acme", "X1"))
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	boot := conf.(*ocpp16.BootNotificationConfirmation)
	if boot.Status != ocpp16.RegistrationAccepted || boot.Interval != 60 {
		t.Fatalf("unexpected boot confirmation: %+v", boot)
	}

	reply, err := s.Send(context.Background(), info.SessionID, ocpp16.NewResetRequest(ocpp16.ResetSoft))
	if err != nil {
		t.Fatalf("send reset: %v", err)
	}
	if reply.(*ocpp16.ResetConfirmation).Status != ocpp16.RemoteAccepted {
		t.Fatalf("unexpected reset reply: %+v", reply)
	}
	if _, ok := s.SessionFor("CP-001"); !ok {
		t.Fatalf("session not found by identity")
	}
	list := s.Sessions()
	if len(list) != 1 || list[0].Identifier != "CP-001" || list[0].Transport != ws.Transport {
		t.Fatalf("unexpected sessions: %+v", list)
	}

	if err := s.CloseSession(info.SessionID); err != nil {
		t.Fatalf("close session: %v", err)
	}
	select {
	case id := <-rec.lostCh:
		if id != info.SessionID {
			t.Fatalf("lost %s, want %s", id, info.SessionID)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for LostSession")
	}
	if len(s.Sessions()) != 0 {
		t.Fatalf("closed session still listed")
	}
}

func TestSendToUnknownSessionFails(t *testing.T) {
	testlog.Start(t)
	s, _ := openServer(t)
	if _, err := s.Send(context.Background(), uuid.New(), ocpp16.NewResetRequest(ocpp16.ResetSoft)); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if err := s.CloseSession(uuid.New()); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if err := s.Open(); !errors.Is(err, ErrServerOpen) {
		t.Fatalf("expected ErrServerOpen, got %v", err)
	}
}

func TestOpenFailureLeavesServerRetryable(t *testing.T) {
	testlog.Start(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	cfg := testServerConfig()
	cfg.WebSocketPort = busy.Addr().(*net.TCPAddr).Port
	s, err := NewServer(cfg, NewBackend(time.Minute, nil, nil).Profiles(), nil)
	if err != nil {
		_ = busy.Close()
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Open(); err == nil || errors.Is(err, ErrServerOpen) {
		_ = busy.Close()
		t.Fatalf("expected a bind failure, got %v", err)
	}
	if s.Ready() {
		t.Fatalf("failed open reported ready")
	}
	if err := busy.Close(); err != nil {
		t.Fatalf("release port: %v", err)
	}
	if err := s.Open(); err != nil {
		t.Fatalf("retry after failed open: %v", err)
	}
	if !s.Ready() {
		t.Fatalf("expected ready after retry")
	}
}

func TestNewServerRejectsDuplicateProfiles(t *testing.T) {
	testlog.Start(t)
	profiles := Profiles{protocol.Version16: {ocpp16.CoreProfile(), ocpp16.CoreProfile()}}
	cfg := testServerConfig()
	cfg.Versions = []protocol.Version{protocol.Version16}
	if _, err := NewServer(cfg, profiles, nil); !errors.Is(err, feature.ErrDuplicateAction) {
		t.Fatalf("expected ErrDuplicateAction, got %v", err)
	}
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAdminRoutes(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s, err := NewServer(testServerConfig(), NewBackend(time.Minute, nil, nil).Profiles(), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	r := NewAdminRouter("central-test", nil)
	s.RegisterRoutes(r)

	if w := serve(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/ready", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready before open: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/sessions", "")
	var body struct {
		Sessions []SessionInfo `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || len(body.Sessions) != 0 {
		t.Fatalf("sessions: %s err=%v", w.Body.String(), err)
	}
	if w := serve(r, http.MethodDelete, "/sessions/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", w.Code)
	}
	if w := serve(r, http.MethodDelete, "/sessions/"+uuid.NewString(), ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown session: %d", w.Code)
	}
}

func TestAdminDispatchCallsIntoSession(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s, rec := openServer(t)
	dialStation(t, s, "CP-002")
	info := waitNew(t, rec)
	r := NewAdminRouter("central-test", nil)
	s.RegisterRoutes(r)

	if w := serve(r, http.MethodGet, "/ready", ""); w.Code != http.StatusOK {
		t.Fatalf("ready: %d", w.Code)
	}
	base := "/sessions/" + info.SessionID.String() + "/calls/"
	w := serve(r, http.MethodPost, base+"Reset", `{"type":"Soft"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"Accepted"`) {
		t.Fatalf("reset: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodPost, base+"Reset", `{"type":"Bogus"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid payload: %d %s", w.Code, w.Body.String())
	}
	if w := serve(r, http.MethodPost, base+"Reset", `{"type":`); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed payload: %d", w.Code)
	}
	if w := serve(r, http.MethodPost, base+"Heartbeat", `{}`); w.Code != http.StatusNotFound {
		t.Fatalf("inbound-only action: %d", w.Code)
	}
	// ChangeConfiguration is known to the station but not handled there.
	w = serve(r, http.MethodPost, base+"ChangeConfiguration", `{"key":"HeartbeatInterval","value":"60"}`)
	if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), string(protocol.NotSupported)) {
		t.Fatalf("unsupported action: %d %s", w.Code, w.Body.String())
	}
}

func TestBackendTransactionsAndAuthorization(t *testing.T) {
	testlog.Start(t)
	b := NewBackend(time.Minute, []string{"ABC123"}, nil)
	ctx := context.Background()
	id := uuid.New()

	first, _ := b.startTransaction(ctx, id, ocpp16.NewStartTransactionRequest(1, "ABC123", 0, time.Now()))
	second, _ := b.startTransaction(ctx, id, ocpp16.NewStartTransactionRequest(2, "ABC123", 0, time.Now()))
	if *first.TransactionID == 0 || *second.TransactionID <= *first.TransactionID {
		t.Fatalf("transaction ids not increasing: %d %d", *first.TransactionID, *second.TransactionID)
	}
	denied, _ := b.startTransaction(ctx, id, ocpp16.NewStartTransactionRequest(1, "NOPE", 0, time.Now()))
	if denied.IdTagInfo.Status != ocpp16.AuthorizationInvalid || denied.TransactionID == nil || *denied.TransactionID != 0 {
		t.Fatalf("unexpected denied transaction: %+v", denied)
	}
	if err := denied.Validate(); err != nil {
		t.Fatalf("denied confirmation must still validate: %v", err)
	}

	open := NewBackend(time.Minute, nil, nil)
	if !open.authorized("anything") || open.authorized("") {
		t.Fatalf("open backend must accept any non-empty tag")
	}
}

func TestAdminTokenGuardsEverythingButHealth(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	s, err := NewServer(testServerConfig(), NewBackend(time.Minute, nil, nil).Profiles(), nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	r := NewAdminRouter("central-test", nil)
	r.Use(RequireToken(auth.StaticToken{Token: "op-token"}))
	s.RegisterRoutes(r)

	if w := serve(r, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health must stay open: %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/sessions", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("sessions without token: %d", w.Code)
	}
	for header, want := range map[string]int{
		"Bearer wrong":    http.StatusUnauthorized,
		"Basic op-token":  http.StatusUnauthorized,
		"Bearer op-token": http.StatusOK,
	} {
		req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != want {
			t.Fatalf("%q: status %d want %d", header, w.Code, want)
		}
	}
}

func TestServicePasswordsGateChargePoints(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.Server = testServerConfig()
	cfg.AdminAddr = ""
	cfg.Passwords = map[string]string{"CP-AUTH": "s3cret"}
	rec := newRecorder()
	svc, err := NewService(cfg, rec)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(5 * time.Second)
	for !svc.Server().Ready() {
		if time.Now().After(deadline) {
			t.Fatalf("server never opened")
		}
		time.Sleep(10 * time.Millisecond)
	}
	set, err := feature.NewSet(protocol.Version16, feature.OriginChargePoint, ocpp16.CoreProfile())
	if err != nil {
		t.Fatalf("station set: %v", err)
	}
	dial := func(header http.Header) (*session.Session, error) {
		return ws.Dial(context.Background(), "ws://"+svc.Server().WebSocketAddr().String()+"/ocpp/CP-AUTH", ws.DialConfig{
			Versions: []protocol.Version{protocol.Version16},
			Features: map[protocol.Version]feature.Set{protocol.Version16: set},
			Session:  cfg.Server.Session,
			Header:   header,
		})
	}
	if _, err := dial(auth.BasicHeader("CP-AUTH", "nope")); err == nil {
		t.Fatalf("expected wrong password to be rejected")
	}
	station, err := dial(auth.BasicHeader("CP-AUTH", "s3cret"))
	if err != nil {
		t.Fatalf("dial with password: %v", err)
	}
	defer station.Close()
	if info := waitNew(t, rec); info.Identifier != "CP-AUTH" {
		t.Fatalf("unexpected identifier %q", info.Identifier)
	}
}

func TestServiceRunServesAdminUntilCancelled(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultServiceConfig()
	cfg.Server = testServerConfig()
	cfg.AdminAddr = "127.0.0.1:0"
	svc, err := NewService(cfg, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for svc.AdminAddr() == nil {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("admin server never bound")
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + svc.AdminAddr().String() + "/health")
	if err != nil {
		cancel()
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if svc.Server().Ready() {
		t.Fatalf("server still ready after shutdown")
	}
}
