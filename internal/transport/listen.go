package transport

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
)

// Listener accepts client connections on a unix socket path.
type Listener struct {
	ul     *net.UnixListener
	limits Limits
}

// Listen binds path, removing a stale socket file first.
func Listen(path string, limits Limits) (*Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("transport: remove stale socket: %w", err)
	}
	ul, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", path, err)
	}
	return &Listener{ul: ul, limits: limits}, nil
}

// Accept blocks for the next client connection.
func (l *Listener) Accept() (*Conn, error) {
	uc, err := l.ul.AcceptUnix()
	if err != nil {
		return nil, err
	}
	return NewConn(uc, l.limits), nil
}

// Addr returns the bound socket address.
func (l *Listener) Addr() net.Addr {
	return l.ul.Addr()
}

// Close stops accepting and unlinks the socket file.
func (l *Listener) Close() error {
	return l.ul.Close()
}

// Dial connects to a server socket at path.
func Dial(path string) (*Conn, error) {
	uc, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", path, err)
	}
	return NewConn(uc, DefaultLimits()), nil
}
