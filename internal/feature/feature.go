package feature

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/danmuck/ocppctl/internal/protocol"
)

// Origin names the side that initiates a feature's Call.
type Origin int

const (
	OriginChargePoint Origin = iota + 1
	OriginCentralSystem
)

func (o Origin) String() string {
	switch o {
	case OriginChargePoint:
		return "charge_point"
	case OriginCentralSystem:
		return "central_system"
	default:
		return fmt.Sprintf("origin(%d)", int(o))
	}
}

// Peer returns the other side of the connection.
func (o Origin) Peer() Origin {
	if o == OriginChargePoint {
		return OriginCentralSystem
	}
	return OriginChargePoint
}

// Request is a Call payload. Validate reports whether the payload satisfies
// its schema; the session never inspects the reason.
type Request interface {
	Action() string
	Validate() error
}

// Confirmation is a CallResult payload.
type Confirmation interface {
	Validate() error
}

// Handler serves one inbound Call. Returning a *HandlerError selects the
// CallError code; any other error is reported as InternalError.
type Handler func(ctx context.Context, sessionID uuid.UUID, req Request) (Confirmation, error)

// Feature describes one action within a protocol version.
type Feature struct {
	Action          string
	Origin          Origin
	NewRequest      func() Request
	NewConfirmation func() Confirmation
	Handler         Handler
}

// HandlerError is an application-defined failure mapped onto a CallError.
type HandlerError struct {
	Code        protocol.ErrorCode
	Description string
	Err         error
}

func NewHandlerError(code protocol.ErrorCode, description string) *HandlerError {
	return &HandlerError{Code: code, Description: description}
}

func (e *HandlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature: handler failed: %s: %s: %v", e.Code, e.Description, e.Err)
	}
	return fmt.Sprintf("feature: handler failed: %s: %s", e.Code, e.Description)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

var ErrRequestType = errors.New("feature: request type mismatch")

// Handle adapts a typed handler function to Handler.
func Handle[Req Request, Conf Confirmation](fn func(ctx context.Context, sessionID uuid.UUID, req Req) (Conf, error)) Handler {
	return func(ctx context.Context, sessionID uuid.UUID, req Request) (Confirmation, error) {
		typed, ok := req.(Req)
		if !ok {
			return nil, &HandlerError{
				Code:        protocol.InternalError,
				Description: "unexpected request type",
				Err:         fmt.Errorf("%w: %T", ErrRequestType, req),
			}
		}
		conf, err := fn(ctx, sessionID, typed)
		if err != nil {
			return nil, err
		}
		return conf, nil
	}
}
