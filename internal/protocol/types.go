package protocol

import "fmt"

// MessageType is the OCPP-J message type tag.
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeCall:
		return "call"
	case MessageTypeCallResult:
		return "call_result"
	case MessageTypeCallError:
		return "call_error"
	default:
		return fmt.Sprintf("message_type(%d)", int(t))
	}
}

// Message is one decoded wire message.
type Message interface {
	Type() MessageType
	UniqueID() string
}

// Call is a request initiated by either peer.
type Call struct {
	ID      string
	Action  string
	Payload []byte
}

func (c *Call) Type() MessageType { return MessageTypeCall }
func (c *Call) UniqueID() string  { return c.ID }

// CallResult is the success reply to a Call with the same ID.
type CallResult struct {
	ID      string
	Payload []byte
}

func (r *CallResult) Type() MessageType { return MessageTypeCallResult }
func (r *CallResult) UniqueID() string  { return r.ID }

// CallError is the error reply to a Call with the same ID. It is also the
// error an awaited outbound call resolves with when the peer rejects it.
type CallError struct {
	ID          string
	Code        ErrorCode
	Description string
	Details     []byte
}

func (e *CallError) Type() MessageType { return MessageTypeCallError }
func (e *CallError) UniqueID() string  { return e.ID }

func (e *CallError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("protocol: call %s failed: %s", e.ID, e.Code)
	}
	return fmt.Sprintf("protocol: call %s failed: %s: %s", e.ID, e.Code, e.Description)
}

// ErrorCode returns the CallError code.
func (e *CallError) ErrorCode() ErrorCode {
	return e.Code
}

// NewCallError builds a reply to the call identified by id.
func NewCallError(id string, code ErrorCode, description string) *CallError {
	return &CallError{ID: id, Code: code, Description: description}
}
