package transport

import (
	"errors"
	"io"
	"os"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/exogonal/waycore/internal/protocol"
)

func testPair(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b, err := Pair()
	if err != nil {
		t.Fatalf("pair: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestReadWriteRoundTrip(t *testing.T) {
	a, b := testPair(t)

	sig := protocol.MustParseSignature("us")
	frame, fds, err := protocol.EncodeMessage(3, 1, sig, []protocol.Value{
		protocol.UintValue(7),
		protocol.StringValue("wl_compositor"),
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := a.WriteMessage(frame, fds); err != nil {
		t.Fatalf("write: %v", err)
	}

	h, payload, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.ObjectID != 3 || h.Opcode != 1 || int(h.Size) != len(frame) {
		t.Fatalf("header mismatch: %+v", h)
	}
	values, _, err := protocol.DecodeArgs(sig, payload, nil, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if values[0].Uint != 7 || values[1].String != "wl_compositor" {
		t.Fatalf("value mismatch: %+v", values)
	}
}

func TestDescriptorPassing(t *testing.T) {
	a, b := testPair(t)

	pipe := make([]int, 2)
	if err := unix.Pipe(pipe); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer unix.Close(pipe[1])

	sig := protocol.MustParseSignature("h")
	frame, fds, err := protocol.EncodeMessage(1, 0, sig, []protocol.Value{protocol.FDValue(pipe[0])})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(fds) != 1 {
		t.Fatalf("expected 1 collected fd, got %d", len(fds))
	}
	if err := a.WriteMessage(frame, fds); err != nil {
		t.Fatalf("write: %v", err)
	}
	unix.Close(pipe[0])

	if _, _, err := b.ReadMessage(); err != nil {
		t.Fatalf("read: %v", err)
	}
	queued := b.PendingFDs()
	if len(queued) != 1 {
		t.Fatalf("expected 1 queued fd, got %d", len(queued))
	}

	if _, err := unix.Write(pipe[1], []byte("ping")); err != nil {
		t.Fatalf("pipe write: %v", err)
	}
	f := os.NewFile(uintptr(queued[0]), "pipe")
	defer f.Close()
	got := make([]byte, 4)
	if _, err := io.ReadFull(f, got); err != nil {
		t.Fatalf("pipe read: %v", err)
	}
	if string(got) != "ping" {
		t.Fatalf("expected ping, got %q", got)
	}
	b.DropFDs(1)
	if len(b.PendingFDs()) != 0 {
		t.Fatalf("expected drained fd queue")
	}
}

func TestFragmentedFrame(t *testing.T) {
	a, b := testPair(t)

	sig := protocol.MustParseSignature("u")
	frame, _, err := protocol.EncodeMessage(9, 4, sig, []protocol.Value{protocol.UintValue(11)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := a.uc.Write(frame[:5]); err != nil {
		t.Fatalf("write first half: %v", err)
	}
	if _, err := a.uc.Write(frame[5:]); err != nil {
		t.Fatalf("write second half: %v", err)
	}

	h, payload, err := b.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if h.ObjectID != 9 || len(payload) != 4 {
		t.Fatalf("unexpected frame: %+v payload=%d", h, len(payload))
	}
}

func TestCoalescedFrames(t *testing.T) {
	a, b := testPair(t)

	sig := protocol.MustParseSignature("u")
	for i := uint32(1); i <= 2; i++ {
		frame, _, err := protocol.EncodeMessage(i, 0, sig, []protocol.Value{protocol.UintValue(i)})
		if err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
		if err := a.WriteMessage(frame, nil); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := uint32(1); i <= 2; i++ {
		h, _, err := b.ReadMessage()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if h.ObjectID != i {
			t.Fatalf("expected object %d, got %d", i, h.ObjectID)
		}
	}
}

func TestCleanClose(t *testing.T) {
	a, b := testPair(t)
	a.Close()
	if _, _, err := b.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestMidFrameClose(t *testing.T) {
	a, b := testPair(t)
	if _, err := a.uc.Write([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("write: %v", err)
	}
	a.Close()
	if _, _, err := b.ReadMessage(); !errors.Is(err, ErrTruncatedFrame) {
		t.Fatalf("expected ErrTruncatedFrame, got %v", err)
	}
}

func TestDeclaredSizeBelowHeader(t *testing.T) {
	a, b := testPair(t)
	bad := protocol.EncodeHeader(protocol.Header{ObjectID: 1, Opcode: 0, Size: 4})
	if _, err := a.uc.Write(bad); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := b.ReadMessage(); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
}
