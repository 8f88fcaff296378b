package protocol

import "encoding/binary"

const (
	// HeaderSize is the fixed frame header length in bytes.
	HeaderSize = 8

	// MaxFrameSize bounds one complete frame; the size field is 16 bits.
	MaxFrameSize = 1<<16 - 1
)

// Header is the fixed frame header. Size counts the whole frame, header
// included; file descriptor arguments travel out of band and never
// contribute to it. All header fields are little-endian on the wire.
type Header struct {
	ObjectID uint32
	Opcode   uint16
	Size     uint16
}

// EncodeHeader serializes h into a fresh HeaderSize byte slice.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	putHeader(buf, h)
	return buf
}

func putHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.ObjectID)
	binary.LittleEndian.PutUint16(buf[4:6], h.Opcode)
	binary.LittleEndian.PutUint16(buf[6:8], h.Size)
}

// DecodeHeader parses the leading frame header from b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrTruncated
	}
	return Header{
		ObjectID: binary.LittleEndian.Uint32(b[0:4]),
		Opcode:   binary.LittleEndian.Uint16(b[4:6]),
		Size:     binary.LittleEndian.Uint16(b[6:8]),
	}, nil
}
