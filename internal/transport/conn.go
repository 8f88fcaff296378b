package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/exogonal/waycore/internal/protocol"
)

const readChunk = 4096

// oob sized for more descriptors per chunk than any signature carries.
const oobSpace = 32 * 4

var (
	ErrInvalidSize      = errors.New("transport: frame size below header size")
	ErrTruncatedFrame   = errors.New("transport: connection closed mid frame")
	ErrFDOverflow       = errors.New("transport: descriptor queue overflow")
	ErrControlTruncated = errors.New("transport: control message truncated")
	ErrNotUnixConn      = errors.New("transport: not a unix connection")
)

// Limits constrains per-connection resource use.
type Limits struct {
	MaxFDQueue int
}

func DefaultLimits() Limits {
	return Limits{MaxFDQueue: 32}
}

// Conn is one duplex frame transport over a unix stream socket. Frames
// travel in-band; file descriptors arrive as ancillary data and are held
// in a queue until the decoder claims them.
//
// ReadMessage and the descriptor queue accessors belong to a single
// reader goroutine. WriteMessage is safe for concurrent use.
type Conn struct {
	uc   *net.UnixConn
	rbuf []byte

	wmu sync.Mutex

	fdmu   sync.Mutex
	fds    []int
	closed bool

	limits Limits
}

// NewConn wraps an established unix connection.
func NewConn(uc *net.UnixConn, limits Limits) *Conn {
	if limits.MaxFDQueue <= 0 {
		limits = DefaultLimits()
	}
	return &Conn{uc: uc, limits: limits}
}

// ReadMessage blocks until one complete frame is buffered and returns its
// header and payload. A clean peer close at a frame boundary returns
// io.EOF; a close mid frame returns ErrTruncatedFrame.
func (c *Conn) ReadMessage() (protocol.Header, []byte, error) {
	for {
		if len(c.rbuf) >= protocol.HeaderSize {
			h, err := protocol.DecodeHeader(c.rbuf)
			if err != nil {
				return protocol.Header{}, nil, err
			}
			if int(h.Size) < protocol.HeaderSize {
				return protocol.Header{}, nil, fmt.Errorf("%w: declared %d", ErrInvalidSize, h.Size)
			}
			if len(c.rbuf) >= int(h.Size) {
				payload := make([]byte, int(h.Size)-protocol.HeaderSize)
				copy(payload, c.rbuf[protocol.HeaderSize:h.Size])
				c.rbuf = c.rbuf[:copy(c.rbuf, c.rbuf[h.Size:])]
				return h, payload, nil
			}
		}
		if err := c.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				if len(c.rbuf) == 0 {
					return protocol.Header{}, nil, io.EOF
				}
				return protocol.Header{}, nil, ErrTruncatedFrame
			}
			return protocol.Header{}, nil, err
		}
	}
}

func (c *Conn) fill() error {
	buf := make([]byte, readChunk)
	oob := make([]byte, unix.CmsgSpace(oobSpace))
	n, oobn, flags, _, err := c.uc.ReadMsgUnix(buf, oob)
	if n > 0 {
		c.rbuf = append(c.rbuf, buf[:n]...)
	}
	if oobn > 0 {
		if cerr := c.queueFDs(oob[:oobn]); cerr != nil {
			return cerr
		}
	}
	if flags&unix.MSG_CTRUNC != 0 {
		return ErrControlTruncated
	}
	if err != nil && n == 0 && oobn == 0 {
		return err
	}
	return nil
}

func (c *Conn) queueFDs(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("transport: parse control message: %w", err)
	}
	c.fdmu.Lock()
	defer c.fdmu.Unlock()
	for i := range msgs {
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return fmt.Errorf("transport: parse rights: %w", err)
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
			if len(c.fds) >= c.limits.MaxFDQueue {
				unix.Close(fd)
				return ErrFDOverflow
			}
			c.fds = append(c.fds, fd)
		}
	}
	return nil
}

// PendingFDs returns the queued, unclaimed descriptors in arrival order.
func (c *Conn) PendingFDs() []int {
	c.fdmu.Lock()
	defer c.fdmu.Unlock()
	out := make([]int, len(c.fds))
	copy(out, c.fds)
	return out
}

// DropFDs releases ownership of the first n queued descriptors to the
// caller. The descriptors themselves stay open.
func (c *Conn) DropFDs(n int) {
	c.fdmu.Lock()
	defer c.fdmu.Unlock()
	if n > len(c.fds) {
		n = len(c.fds)
	}
	c.fds = c.fds[:copy(c.fds, c.fds[n:])]
}

// WriteMessage sends one encoded frame with its descriptors in a single
// sendmsg so frames from concurrent writers never interleave.
func (c *Conn) WriteMessage(frame []byte, fds []int) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	n, _, err := c.uc.WriteMsgUnix(frame, oob, nil)
	if err != nil {
		return err
	}
	for n < len(frame) {
		m, err := c.uc.Write(frame[n:])
		if err != nil {
			return err
		}
		n += m
	}
	return nil
}

// Close tears down the socket and closes any descriptors the decoder
// never claimed.
func (c *Conn) Close() error {
	c.fdmu.Lock()
	if c.closed {
		c.fdmu.Unlock()
		return nil
	}
	c.closed = true
	fds := c.fds
	c.fds = nil
	c.fdmu.Unlock()
	for _, fd := range fds {
		unix.Close(fd)
	}
	return c.uc.Close()
}

// Pair returns two connected transports backed by a socketpair. Intended
// for in-process clients and tests.
func Pair() (*Conn, *Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: socketpair: %w", err)
	}
	a, err := connFromFD(fds[0])
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := connFromFD(fds[1])
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func connFromFD(fd int) (*Conn, error) {
	f := os.NewFile(uintptr(fd), "waycore")
	defer f.Close()
	nc, err := net.FileConn(f)
	if err != nil {
		return nil, fmt.Errorf("transport: file conn: %w", err)
	}
	uc, ok := nc.(*net.UnixConn)
	if !ok {
		nc.Close()
		return nil, ErrNotUnixConn
	}
	return NewConn(uc, DefaultLimits()), nil
}
