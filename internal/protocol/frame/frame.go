// Package frame implements the OCPP-J JSON array framing:
//
//	[2, "<id>", "<action>", {payload}]
//	[3, "<id>", {payload}]
//	[4, "<id>", "<errorCode>", "<errorDescription>", {errorDetails}]
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/ocppctl/internal/protocol"
)

const (
	callArity       = 4
	callResultArity = 3
	callErrorArity  = 5

	// MaxMessageIDLen is the OCPP-J limit on the unique id field.
	MaxMessageIDLen = 36
)

var (
	ErrFrameTooLarge       = errors.New("frame: frame too large")
	ErrNotArray            = errors.New("frame: not a json array")
	ErrBadArity            = errors.New("frame: unexpected element count")
	ErrBadTypeTag          = errors.New("frame: message type tag is not an integer")
	ErrBadMessageID        = errors.New("frame: message id is not a non-empty string")
	ErrMessageIDLength     = errors.New("frame: message id too long")
	ErrBadAction           = errors.New("frame: action is not a non-empty string")
	ErrBadPayload          = errors.New("frame: payload is not a json object")
	ErrBadErrorCode        = errors.New("frame: error code is not a string")
	ErrBadErrorDescription = errors.New("frame: error description is not a string")
)

// Limits constrains decode/encode memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 1024 * 1024,
	}
}

// Codec is the OCPP-J protocol.Codec.
type Codec struct {
	limits Limits
}

var _ protocol.Codec = (*Codec)(nil)

func NewCodec(limits Limits) *Codec {
	if limits.MaxFrameBytes <= 0 {
		limits = DefaultLimits()
	}
	return &Codec{limits: limits}
}

func (c *Codec) Encode(msg protocol.Message) ([]byte, error) {
	if msg == nil {
		return nil, protocol.ErrUnsupportedMessage
	}
	if strings.TrimSpace(msg.UniqueID()) == "" {
		return nil, protocol.ErrMissingMessageID
	}
	var arr []any
	switch m := msg.(type) {
	case *protocol.Call:
		if strings.TrimSpace(m.Action) == "" {
			return nil, ErrBadAction
		}
		arr = []any{protocol.MessageTypeCall, m.ID, m.Action, objectOrEmpty(m.Payload)}
	case *protocol.CallResult:
		arr = []any{protocol.MessageTypeCallResult, m.ID, objectOrEmpty(m.Payload)}
	case *protocol.CallError:
		arr = []any{protocol.MessageTypeCallError, m.ID, string(m.Code), m.Description, objectOrEmpty(m.Details)}
	default:
		return nil, fmt.Errorf("%w: %T", protocol.ErrUnsupportedMessage, msg)
	}
	out, err := json.Marshal(arr)
	if err != nil {
		return nil, err
	}
	if len(out) > c.limits.MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}
	return out, nil
}

// Decode classifies data purely from its structure. It never returns a
// partially populated message: on failure the result is a *protocol.DecodeError.
func (c *Codec) Decode(data []byte) (protocol.Message, error) {
	if len(data) > c.limits.MaxFrameBytes {
		return nil, decodeErr("frame", 0, "", ErrFrameTooLarge)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return nil, decodeErr("frame", 0, "", fmt.Errorf("%w: %v", ErrNotArray, err))
	}
	if len(elems) < 3 {
		return nil, decodeErr("frame", 0, "", ErrBadArity)
	}

	var tag int
	if err := json.Unmarshal(elems[0], &tag); err != nil {
		return nil, decodeErr("frame", 0, "", ErrBadTypeTag)
	}
	typ := protocol.MessageType(tag)

	id, err := readMessageID(elems[1])
	if err != nil {
		return nil, decodeErr(typ.String(), typ, "", err)
	}

	switch typ {
	case protocol.MessageTypeCall:
		return decodeCall(elems, id)
	case protocol.MessageTypeCallResult:
		return decodeCallResult(elems, id)
	case protocol.MessageTypeCallError:
		return decodeCallError(elems, id)
	default:
		return nil, decodeErr("frame", typ, id, protocol.ErrUnknownMessageType)
	}
}

func (c *Codec) MarshalPayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c *Codec) UnmarshalPayload(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	return json.Unmarshal(data, v)
}

func decodeCall(elems []json.RawMessage, id string) (protocol.Message, error) {
	typ := protocol.MessageTypeCall
	if len(elems) != callArity {
		return nil, decodeErr(typ.String(), typ, id, ErrBadArity)
	}
	var action string
	if err := json.Unmarshal(elems[2], &action); err != nil || strings.TrimSpace(action) == "" {
		return nil, decodeErr(typ.String(), typ, id, ErrBadAction)
	}
	if !isObject(elems[3]) {
		return nil, decodeErr(typ.String(), typ, id, ErrBadPayload)
	}
	return &protocol.Call{ID: id, Action: action, Payload: copyRaw(elems[3])}, nil
}

func decodeCallResult(elems []json.RawMessage, id string) (protocol.Message, error) {
	typ := protocol.MessageTypeCallResult
	if len(elems) != callResultArity {
		return nil, decodeErr(typ.String(), typ, id, ErrBadArity)
	}
	if !isObject(elems[2]) {
		return nil, decodeErr(typ.String(), typ, id, ErrBadPayload)
	}
	return &protocol.CallResult{ID: id, Payload: copyRaw(elems[2])}, nil
}

func decodeCallError(elems []json.RawMessage, id string) (protocol.Message, error) {
	typ := protocol.MessageTypeCallError
	if len(elems) != callErrorArity {
		return nil, decodeErr(typ.String(), typ, id, ErrBadArity)
	}
	var code, desc string
	if err := json.Unmarshal(elems[2], &code); err != nil {
		return nil, decodeErr(typ.String(), typ, id, ErrBadErrorCode)
	}
	if err := json.Unmarshal(elems[3], &desc); err != nil {
		return nil, decodeErr(typ.String(), typ, id, ErrBadErrorDescription)
	}
	if !isObject(elems[4]) {
		return nil, decodeErr(typ.String(), typ, id, ErrBadPayload)
	}
	return &protocol.CallError{
		ID:          id,
		Code:        protocol.ErrorCode(code),
		Description: desc,
		Details:     copyRaw(elems[4]),
	}, nil
}

func readMessageID(raw json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(raw, &id); err != nil || strings.TrimSpace(id) == "" {
		return "", ErrBadMessageID
	}
	if len(id) > MaxMessageIDLen {
		return "", ErrMessageIDLength
	}
	return id, nil
}

func decodeErr(kind string, typ protocol.MessageType, id string, err error) error {
	return &protocol.DecodeError{
		Kind:      kind,
		Type:      typ,
		MessageID: id,
		Err:       fmt.Errorf("%w: %w", protocol.ErrMalformedMessage, err),
	}
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func objectOrEmpty(raw []byte) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(raw)
}

func copyRaw(raw json.RawMessage) []byte {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
