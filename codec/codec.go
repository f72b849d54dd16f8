// Package codec provides the serialization formats used on the wire: job
// payloads in the broker, deferred entries in the ledger, and result
// documents in the result and blob stores.
package codec

// Codec defines the serialization contract for wire values.
type Codec interface {
	// Encode serializes a value to bytes.
	Encode(v any) ([]byte, error)

	// Decode deserializes bytes into the given value.
	Decode(data []byte, v any) error

	// Name returns the codec identifier (e.g., "json", "msgpack").
	Name() string
}

// Name constants for format negotiation.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Defaults to JSON.
func Get(name string) Codec {
	switch name {
	case NameMsgpack:
		return &MsgpackCodec{}
	case NameJSON, "":
		return &JSONCodec{}
	default:
		return &JSONCodec{}
	}
}
