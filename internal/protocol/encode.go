package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// EncodeMessage marshals one complete frame for (objectID, opcode) with
// values laid out per sig. File descriptors are collected into the second
// return value for out-of-band delivery and occupy no frame bytes.
func EncodeMessage(objectID uint32, opcode uint16, sig []ArgSpec, values []Value) ([]byte, []int, error) {
	if len(values) != len(sig) {
		return nil, nil, fmt.Errorf("%w: want %d arguments, got %d", ErrTypeMismatch, len(sig), len(values))
	}
	buf := make([]byte, HeaderSize, HeaderSize+8*len(sig))
	var fds []int
	for i, spec := range sig {
		v := values[i]
		if v.Type != spec.Type {
			return nil, nil, fmt.Errorf("%w: argument %d is %s, want %s", ErrTypeMismatch, i, v.Type, spec.Type)
		}
		switch spec.Type {
		case ArgInt:
			buf = appendUint32(buf, uint32(v.Int))
		case ArgUint:
			buf = appendUint32(buf, v.Uint)
		case ArgFixed:
			buf = appendUint32(buf, uint32(v.Fixed))
		case ArgString:
			if v.Null {
				if !spec.Nullable {
					return nil, nil, fmt.Errorf("%w: argument %d is null", ErrInvalidString, i)
				}
				buf = appendUint32(buf, 0)
				continue
			}
			if strings.IndexByte(v.String, 0) >= 0 {
				return nil, nil, fmt.Errorf("%w: argument %d contains NUL", ErrInvalidString, i)
			}
			n := len(v.String) + 1
			buf = appendUint32(buf, uint32(n))
			buf = append(buf, v.String...)
			buf = append(buf, 0)
			buf = appendPadding(buf, n)
		case ArgObject:
			if v.Object == 0 && !spec.Nullable {
				return nil, nil, fmt.Errorf("%w: argument %d is null", ErrInvalidObject, i)
			}
			buf = appendUint32(buf, v.Object)
		case ArgNewID:
			if v.NewID == 0 {
				return nil, nil, fmt.Errorf("%w: argument %d is zero", ErrInvalidNewID, i)
			}
			buf = appendUint32(buf, v.NewID)
		case ArgArray:
			buf = appendUint32(buf, uint32(len(v.Array)))
			buf = append(buf, v.Array...)
			buf = appendPadding(buf, len(v.Array))
		case ArgFD:
			fds = append(fds, v.FD)
		}
	}
	if len(buf) > MaxFrameSize {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(buf))
	}
	putHeader(buf[:HeaderSize], Header{ObjectID: objectID, Opcode: opcode, Size: uint16(len(buf))})
	return buf, fds, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

// appendPadding aligns a variable-length block of n bytes to the 32-bit
// argument boundary.
func appendPadding(buf []byte, n int) []byte {
	for pad := (4 - n%4) % 4; pad > 0; pad-- {
		buf = append(buf, 0)
	}
	return buf
}
