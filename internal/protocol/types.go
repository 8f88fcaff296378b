package protocol

import "fmt"

// ArgType is the single-letter wire code of one argument kind.
type ArgType byte

// Argument type codes from the wire contract.
const (
	ArgInt    ArgType = 'i'
	ArgUint   ArgType = 'u'
	ArgFixed  ArgType = 'f'
	ArgString ArgType = 's'
	ArgObject ArgType = 'o'
	ArgNewID  ArgType = 'n'
	ArgArray  ArgType = 'a'
	ArgFD     ArgType = 'h'
)

func (t ArgType) valid() bool {
	switch t {
	case ArgInt, ArgUint, ArgFixed, ArgString, ArgObject, ArgNewID, ArgArray, ArgFD:
		return true
	}
	return false
}

// String returns the spelled-out name of the type code.
func (t ArgType) String() string {
	switch t {
	case ArgInt:
		return "int"
	case ArgUint:
		return "uint"
	case ArgFixed:
		return "fixed"
	case ArgString:
		return "string"
	case ArgObject:
		return "object"
	case ArgNewID:
		return "new_id"
	case ArgArray:
		return "array"
	case ArgFD:
		return "fd"
	}
	return fmt.Sprintf("ArgType(%q)", byte(t))
}

// ArgSpec describes one argument slot of a message signature.
type ArgSpec struct {
	Type     ArgType
	Nullable bool
}

// ParseSignature expands a compact signature string into argument specs.
// A '?' marks the argument that follows it nullable, e.g. "u?sn".
// Only string and object arguments may be nullable.
func ParseSignature(sig string) ([]ArgSpec, error) {
	specs := make([]ArgSpec, 0, len(sig))
	nullable := false
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		if c == '?' {
			if nullable {
				return nil, fmt.Errorf("%w: %q: repeated '?'", ErrInvalidSignature, sig)
			}
			nullable = true
			continue
		}
		t := ArgType(c)
		if !t.valid() {
			return nil, fmt.Errorf("%w: %q: unknown type code %q", ErrInvalidSignature, sig, c)
		}
		if nullable && t != ArgString && t != ArgObject {
			return nil, fmt.Errorf("%w: %q: %s cannot be nullable", ErrInvalidSignature, sig, t)
		}
		specs = append(specs, ArgSpec{Type: t, Nullable: nullable})
		nullable = false
	}
	if nullable {
		return nil, fmt.Errorf("%w: %q: trailing '?'", ErrInvalidSignature, sig)
	}
	return specs, nil
}

// MustParseSignature is ParseSignature for static signature declarations.
func MustParseSignature(sig string) []ArgSpec {
	specs, err := ParseSignature(sig)
	if err != nil {
		panic(err)
	}
	return specs
}
