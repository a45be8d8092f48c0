package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedMessage    = errors.New("protocol: malformed message")
	ErrUnknownMessageType  = errors.New("protocol: unknown message type")
	ErrMessageTooLarge     = errors.New("protocol: message too large")
	ErrMissingMessageID    = errors.New("protocol: missing message id")
	ErrUnsupportedVersion  = errors.New("protocol: unsupported version")
	ErrUnsupportedMessage  = errors.New("protocol: unsupported message")
	ErrMessageTypeMismatch = errors.New("protocol: message type mismatch")
)

// DecodeError reports wire text that could not be classified as one of the
// three message kinds. MessageID and Type are set when the frame was readable
// far enough to recover them, so a malformed Call can still be answered.
type DecodeError struct {
	Kind      string
	Type      MessageType
	MessageID string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("protocol: decode %s (message_id=%q): %v", e.Kind, e.MessageID, e.Err)
	}
	return fmt.Sprintf("protocol: decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Answerable reports whether the malformed frame was a Call whose identifier
// is known, so the peer can be sent a CallError instead of silence.
func (e *DecodeError) Answerable() bool {
	return e.Type == MessageTypeCall && e.MessageID != ""
}
