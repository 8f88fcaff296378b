package protocol

// Value is one decoded, or to-be-encoded, message argument. Type selects
// the live field; the rest are zero.
type Value struct {
	Type   ArgType
	Int    int32
	Uint   uint32
	Fixed  Fixed
	String string
	Object uint32
	NewID  uint32
	Array  []byte
	FD     int

	// Null marks a nullable string carrying no value. Null objects are
	// encoded as Object == 0.
	Null bool
}

// IntValue creates an int argument.
func IntValue(v int32) Value {
	return Value{Type: ArgInt, Int: v}
}

// UintValue creates a uint argument.
func UintValue(v uint32) Value {
	return Value{Type: ArgUint, Uint: v}
}

// FixedValue creates a fixed-point argument.
func FixedValue(v Fixed) Value {
	return Value{Type: ArgFixed, Fixed: v}
}

// StringValue creates a string argument. The string must not contain NUL.
func StringValue(s string) Value {
	return Value{Type: ArgString, String: s}
}

// NullString creates a null string argument for nullable slots.
func NullString() Value {
	return Value{Type: ArgString, Null: true}
}

// ObjectValue creates an object reference argument; id 0 means "no object"
// and is only valid for nullable slots.
func ObjectValue(id uint32) Value {
	return Value{Type: ArgObject, Object: id}
}

// NewIDValue creates a new-id argument naming the resource the request
// constructs.
func NewIDValue(id uint32) Value {
	return Value{Type: ArgNewID, NewID: id}
}

// ArrayValue creates a byte array argument.
func ArrayValue(b []byte) Value {
	return Value{Type: ArgArray, Array: b}
}

// FDValue creates a file descriptor argument; the descriptor itself is
// carried out of band by the transport.
func FDValue(fd int) Value {
	return Value{Type: ArgFD, FD: fd}
}
