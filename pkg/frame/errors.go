package frame

import "errors"

var (
	ErrInvalidFormat = errors.New("frame: invalid format")
	ErrUnknownFormat = errors.New("frame: unknown format")
	ErrUnknownField  = errors.New("frame: unknown field")
	ErrShortFrame    = errors.New("frame: data shorter than one frame")
	ErrWordSize      = errors.New("frame: word size mismatch")
)
