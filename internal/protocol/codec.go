package protocol

// Codec converts between wire text and messages for one transport binding.
// Payloads are opaque to the Codec; MarshalPayload and UnmarshalPayload
// convert request and confirmation values to the binding's payload encoding.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
	MarshalPayload(v any) ([]byte, error)
	UnmarshalPayload(data []byte, v any) error
}
