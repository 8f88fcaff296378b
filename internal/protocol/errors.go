package protocol

import "errors"

var (
	ErrTruncated        = errors.New("protocol: truncated data")
	ErrTypeMismatch     = errors.New("protocol: argument type mismatch")
	ErrInvalidObject    = errors.New("protocol: invalid object id")
	ErrInvalidNewID     = errors.New("protocol: invalid new id")
	ErrInvalidString    = errors.New("protocol: invalid string argument")
	ErrInvalidSignature = errors.New("protocol: invalid signature")
	ErrFrameTooLarge    = errors.New("protocol: frame exceeds size limit")
	ErrMissingFD        = errors.New("protocol: missing file descriptor")
)
