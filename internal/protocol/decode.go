package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ObjectTable answers liveness queries during decode. Object arguments must
// resolve to a live id and new-id arguments must not collide with one.
type ObjectTable interface {
	Contains(id uint32) bool
}

// DecodeArgs unmarshals the payload of a frame (header already stripped)
// according to sig. fds supplies descriptors received out of band; the
// second return value reports how many of them the signature consumed.
func DecodeArgs(sig []ArgSpec, payload []byte, fds []int, table ObjectTable) ([]Value, int, error) {
	values := make([]Value, 0, len(sig))
	offset := 0
	nfds := 0
	for i, spec := range sig {
		switch spec.Type {
		case ArgInt:
			raw, err := readWord(payload, &offset)
			if err != nil {
				return nil, 0, err
			}
			values = append(values, IntValue(int32(raw)))
		case ArgUint:
			raw, err := readWord(payload, &offset)
			if err != nil {
				return nil, 0, err
			}
			values = append(values, UintValue(raw))
		case ArgFixed:
			raw, err := readWord(payload, &offset)
			if err != nil {
				return nil, 0, err
			}
			values = append(values, FixedValue(Fixed(raw)))
		case ArgString:
			v, err := readString(payload, &offset, spec.Nullable)
			if err != nil {
				return nil, 0, fmt.Errorf("argument %d: %w", i, err)
			}
			values = append(values, v)
		case ArgObject:
			raw, err := readWord(payload, &offset)
			if err != nil {
				return nil, 0, err
			}
			if raw == 0 {
				if !spec.Nullable {
					return nil, 0, fmt.Errorf("%w: argument %d is null", ErrInvalidObject, i)
				}
			} else if table != nil && !table.Contains(raw) {
				return nil, 0, fmt.Errorf("%w: argument %d references unknown id %d", ErrInvalidObject, i, raw)
			}
			values = append(values, ObjectValue(raw))
		case ArgNewID:
			raw, err := readWord(payload, &offset)
			if err != nil {
				return nil, 0, err
			}
			if raw == 0 {
				return nil, 0, fmt.Errorf("%w: argument %d is zero", ErrInvalidNewID, i)
			}
			if table != nil && table.Contains(raw) {
				return nil, 0, fmt.Errorf("%w: argument %d collides with live id %d", ErrInvalidNewID, i, raw)
			}
			values = append(values, NewIDValue(raw))
		case ArgArray:
			n, err := readWord(payload, &offset)
			if err != nil {
				return nil, 0, err
			}
			end := offset + int(n)
			if end > len(payload) {
				return nil, 0, fmt.Errorf("%w: array argument %d", ErrTruncated, i)
			}
			arr := make([]byte, n)
			copy(arr, payload[offset:end])
			offset = end
			if err := skipPadding(payload, &offset, int(n)); err != nil {
				return nil, 0, err
			}
			values = append(values, ArrayValue(arr))
		case ArgFD:
			if nfds >= len(fds) {
				return nil, 0, fmt.Errorf("%w: argument %d", ErrMissingFD, i)
			}
			values = append(values, FDValue(fds[nfds]))
			nfds++
		}
	}
	if offset != len(payload) {
		return nil, 0, fmt.Errorf("%w: %d trailing payload bytes", ErrTypeMismatch, len(payload)-offset)
	}
	return values, nfds, nil
}

func readWord(payload []byte, offset *int) (uint32, error) {
	if *offset+4 > len(payload) {
		return 0, ErrTruncated
	}
	v := binary.LittleEndian.Uint32(payload[*offset:])
	*offset += 4
	return v, nil
}

func readString(payload []byte, offset *int, nullable bool) (Value, error) {
	n, err := readWord(payload, offset)
	if err != nil {
		return Value{}, err
	}
	if n == 0 {
		if !nullable {
			return Value{}, fmt.Errorf("%w: null", ErrInvalidString)
		}
		return NullString(), nil
	}
	end := *offset + int(n)
	if end > len(payload) {
		return Value{}, ErrTruncated
	}
	raw := payload[*offset:end]
	if raw[len(raw)-1] != 0 {
		return Value{}, fmt.Errorf("%w: missing terminator", ErrInvalidString)
	}
	if bytes.IndexByte(raw[:len(raw)-1], 0) >= 0 {
		return Value{}, fmt.Errorf("%w: embedded NUL", ErrInvalidString)
	}
	s := string(raw[:len(raw)-1])
	*offset = end
	if err := skipPadding(payload, offset, int(n)); err != nil {
		return Value{}, err
	}
	return StringValue(s), nil
}

func skipPadding(payload []byte, offset *int, n int) error {
	pad := (4 - n%4) % 4
	if *offset+pad > len(payload) {
		return ErrTruncated
	}
	*offset += pad
	return nil
}
