// Package auth checks charge point and operator credentials.
//
// Charge points present HTTP Basic credentials on the WebSocket upgrade
// with their identity as the username. Operators present a bearer token
// to the admin API.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates an operator token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts a single shared token. An empty token accepts
// nothing.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if !equal(s.Token, token) {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Authenticator checks the password a charge point presents for identity.
type Authenticator interface {
	Authenticate(identity, password string) error
}

// Passwords holds one password per charge point identity.
type Passwords map[string]string

func (p Passwords) Authenticate(identity, password string) error {
	want, ok := p[identity]
	if !ok || want == "" {
		return ErrUnauthorized
	}
	if !equal(want, password) {
		return ErrUnauthorized
	}
	return nil
}

// AuthenticatorFunc adapts a function into an Authenticator.
type AuthenticatorFunc func(identity, password string) error

func (f AuthenticatorFunc) Authenticate(identity, password string) error {
	return f(identity, password)
}

// CheckRequest requires Basic credentials on r whose username is identity.
func CheckRequest(a Authenticator, r *http.Request, identity string) error {
	user, password, ok := r.BasicAuth()
	if !ok || user != identity {
		return ErrUnauthorized
	}
	return a.Authenticate(identity, password)
}

// BasicHeader carries the credentials a charge point offers on connect.
func BasicHeader(identity, password string) http.Header {
	h := http.Header{}
	token := base64.StdEncoding.EncodeToString([]byte(identity + ":" + password))
	h.Set("Authorization", "Basic "+token)
	return h
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
