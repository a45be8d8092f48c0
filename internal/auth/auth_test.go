package auth

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/danmuck/ocppctl/internal/testutil/testlog"
)

func TestStaticTokenValidate(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		stored  string
		input   string
		wantErr error
	}{
		{name: "empty token denied", stored: "", input: "abc", wantErr: ErrUnauthorized},
		{name: "mismatched token denied", stored: "abc", input: "xyz", wantErr: ErrUnauthorized},
		{name: "matching token accepted", stored: "abc", input: "abc", wantErr: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (StaticToken{Token: tc.stored}).Validate(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestFuncValidator(t *testing.T) {
	testlog.Start(t)
	validator := FuncValidator(func(token string) error {
		if token != "ok" {
			return ErrUnauthorized
		}
		return nil
	})
	if err := validator.Validate("ok"); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := validator.Validate("bad"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestCheckRequestMatchesIdentityAndPassword(t *testing.T) {
	testlog.Start(t)
	passwords := Passwords{"CP-001": "s3cret", "CP-002": ""}
	tests := []struct {
		name     string
		identity string
		user     string
		password string
		wantErr  error
	}{
		{name: "accepted", identity: "CP-001", user: "CP-001", password: "s3cret"},
		{name: "wrong password", identity: "CP-001", user: "CP-001", password: "guess", wantErr: ErrUnauthorized},
		{name: "username must be identity", identity: "CP-001", user: "CP-009", password: "s3cret", wantErr: ErrUnauthorized},
		{name: "unknown identity", identity: "CP-404", user: "CP-404", password: "x", wantErr: ErrUnauthorized},
		{name: "empty stored password", identity: "CP-002", user: "CP-002", password: "", wantErr: ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ocpp/"+tc.identity, nil)
			r.Header = BasicHeader(tc.user, tc.password)
			if err := CheckRequest(passwords, r, tc.identity); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v, got %v", tc.wantErr, err)
			}
		})
	}

	bare := httptest.NewRequest("GET", "/ocpp/CP-001", nil)
	if err := CheckRequest(passwords, bare, "CP-001"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing credentials must be rejected, got %v", err)
	}
	open := AuthenticatorFunc(func(identity, password string) error { return nil })
	if err := CheckRequest(open, bare, "CP-001"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing credentials must be rejected before the authenticator, got %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":  {"abc", true},
		"bearer  abc": {"abc", true},
		"Basic abc":   {"", false},
		"Bearer":      {"", false},
		"":            {"", false},
	}
	for header, want := range cases {
		r := httptest.NewRequest("GET", "/sessions", nil)
		if header != "" {
			r.Header.Set("Authorization", header)
		}
		got, ok := BearerToken(r)
		if got != want.token || ok != want.ok {
			t.Fatalf("BearerToken(%q)=%q,%v want %q,%v", header, got, ok, want.token, want.ok)
		}
	}
}
