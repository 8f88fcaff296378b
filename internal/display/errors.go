package display

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownInterface  = errors.New("display: unknown interface")
	ErrInvalidVersion    = errors.New("display: invalid advertised version")
	ErrInvalidResourceID = errors.New("display: invalid resource id")
	ErrDuplicateResource = errors.New("display: duplicate resource id")
	ErrClientLimit       = errors.New("display: client limit reached")
)

// ProtocolError is a client-attributable violation. Dispatch answers it
// with a wl_display.error event naming the culprit object, then ends the
// session. A zero Object is filled in with the resource that received
// the offending request.
type ProtocolError struct {
	Object  uint32
	Code    uint32
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("display: protocol error on object %d: code %d: %s", e.Object, e.Code, e.Message)
}
