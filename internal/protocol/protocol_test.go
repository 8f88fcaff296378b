package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

type idSet map[uint32]bool

func (s idSet) Contains(id uint32) bool { return s[id] }

func TestRoundTripAllArgTypes(t *testing.T) {
	sig := MustParseSignature("iufsonah")
	values := []Value{
		IntValue(-5),
		UintValue(42),
		FixedValue(FixedFromFloat(1.5)),
		StringValue("pad me"),
		ObjectValue(7),
		NewIDValue(9),
		ArrayValue([]byte{1, 2, 3, 4, 5}),
		FDValue(33),
	}
	table := idSet{7: true}

	frame, fds, err := EncodeMessage(4, 2, sig, values)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(fds) != 1 || fds[0] != 33 {
		t.Fatalf("expected collected fd 33, got %v", fds)
	}

	head, err := DecodeHeader(frame)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if head.ObjectID != 4 || head.Opcode != 2 || int(head.Size) != len(frame) {
		t.Fatalf("header mismatch: %+v, frame %d bytes", head, len(frame))
	}

	decoded, nfds, err := DecodeArgs(sig, frame[HeaderSize:], fds, table)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if nfds != 1 {
		t.Fatalf("expected 1 fd consumed, got %d", nfds)
	}
	if decoded[3].String != "pad me" {
		t.Fatalf("expected string %q, got %q", "pad me", decoded[3].String)
	}

	frame2, _, err := EncodeMessage(4, 2, sig, decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(frame, frame2) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestParseSignatureNullable(t *testing.T) {
	specs, err := ParseSignature("u?sn")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []ArgSpec{
		{Type: ArgUint},
		{Type: ArgString, Nullable: true},
		{Type: ArgNewID},
	}
	if len(specs) != len(want) {
		t.Fatalf("expected %d specs, got %d", len(want), len(specs))
	}
	for i := range want {
		if specs[i] != want[i] {
			t.Fatalf("spec %d: expected %+v, got %+v", i, want[i], specs[i])
		}
	}
}

func TestParseSignatureRejectsInvalid(t *testing.T) {
	for _, sig := range []string{"x", "?u", "s?", "??s"} {
		if _, err := ParseSignature(sig); !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("signature %q: expected ErrInvalidSignature, got %v", sig, err)
		}
	}
}

func TestEncodeArgumentCount(t *testing.T) {
	sig := MustParseSignature("u")
	_, _, err := EncodeMessage(1, 0, sig, nil)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestEncodeArgumentType(t *testing.T) {
	sig := MustParseSignature("u")
	_, _, err := EncodeMessage(1, 0, sig, []Value{IntValue(3)})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestEncodeStringWithNUL(t *testing.T) {
	sig := MustParseSignature("s")
	_, _, err := EncodeMessage(1, 0, sig, []Value{StringValue("a\x00b")})
	if !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}
}

func TestEncodeNullString(t *testing.T) {
	sig := MustParseSignature("s")
	if _, _, err := EncodeMessage(1, 0, sig, []Value{NullString()}); !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}

	sig = MustParseSignature("?s")
	frame, _, err := EncodeMessage(1, 0, sig, []Value{NullString()})
	if err != nil {
		t.Fatalf("encode nullable: %v", err)
	}
	if n := binary.LittleEndian.Uint32(frame[HeaderSize:]); n != 0 {
		t.Fatalf("expected zero length word for null string, got %d", n)
	}
	decoded, _, err := DecodeArgs(sig, frame[HeaderSize:], nil, nil)
	if err != nil {
		t.Fatalf("decode nullable: %v", err)
	}
	if !decoded[0].Null {
		t.Fatalf("expected null string value")
	}
}

func TestEncodeNullObject(t *testing.T) {
	sig := MustParseSignature("o")
	if _, _, err := EncodeMessage(1, 0, sig, []Value{ObjectValue(0)}); !errors.Is(err, ErrInvalidObject) {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}

	sig = MustParseSignature("?o")
	frame, _, err := EncodeMessage(1, 0, sig, []Value{ObjectValue(0)})
	if err != nil {
		t.Fatalf("encode nullable: %v", err)
	}
	decoded, _, err := DecodeArgs(sig, frame[HeaderSize:], nil, idSet{})
	if err != nil {
		t.Fatalf("decode nullable: %v", err)
	}
	if decoded[0].Object != 0 {
		t.Fatalf("expected null object, got id %d", decoded[0].Object)
	}
}

func TestEncodeZeroNewID(t *testing.T) {
	sig := MustParseSignature("n")
	_, _, err := EncodeMessage(1, 0, sig, []Value{NewIDValue(0)})
	if !errors.Is(err, ErrInvalidNewID) {
		t.Fatalf("expected ErrInvalidNewID, got %v", err)
	}
}

func TestEncodeFrameTooLarge(t *testing.T) {
	sig := MustParseSignature("a")
	_, _, err := EncodeMessage(1, 0, sig, []Value{ArrayValue(make([]byte, MaxFrameSize))})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeTruncatedWord(t *testing.T) {
	sig := MustParseSignature("u")
	_, _, err := DecodeArgs(sig, []byte{1, 2}, nil, nil)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeTruncatedString(t *testing.T) {
	sig := MustParseSignature("s")
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 12)
	_, _, err := DecodeArgs(sig, payload, nil, nil)
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestDecodeStringMissingTerminator(t *testing.T) {
	sig := MustParseSignature("s")
	payload := stringPayload([]byte("abcd"))
	_, _, err := DecodeArgs(sig, payload, nil, nil)
	if !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}
}

func TestDecodeStringEmbeddedNUL(t *testing.T) {
	sig := MustParseSignature("s")
	payload := stringPayload([]byte("ab\x00de\x00"))
	_, _, err := DecodeArgs(sig, payload, nil, nil)
	if !errors.Is(err, ErrInvalidString) {
		t.Fatalf("expected ErrInvalidString, got %v", err)
	}
}

func TestDecodeUnknownObject(t *testing.T) {
	sig := MustParseSignature("o")
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 8)
	_, _, err := DecodeArgs(sig, payload, nil, idSet{7: true})
	if !errors.Is(err, ErrInvalidObject) {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
}

func TestDecodeNewIDCollision(t *testing.T) {
	sig := MustParseSignature("n")
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, 7)
	_, _, err := DecodeArgs(sig, payload, nil, idSet{7: true})
	if !errors.Is(err, ErrInvalidNewID) {
		t.Fatalf("expected ErrInvalidNewID, got %v", err)
	}
}

func TestDecodeMissingFD(t *testing.T) {
	sig := MustParseSignature("h")
	_, _, err := DecodeArgs(sig, nil, nil, nil)
	if !errors.Is(err, ErrMissingFD) {
		t.Fatalf("expected ErrMissingFD, got %v", err)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	sig := MustParseSignature("u")
	_, _, err := DecodeArgs(sig, make([]byte, 8), nil, nil)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, err := DecodeHeader(make([]byte, HeaderSize-1)); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

// stringPayload builds a string argument from raw bytes without encode-side
// validation: length word, bytes, padding.
func stringPayload(raw []byte) []byte {
	buf := make([]byte, 4, 4+len(raw)+3)
	binary.LittleEndian.PutUint32(buf, uint32(len(raw)))
	buf = append(buf, raw...)
	return appendPadding(buf, len(raw))
}
