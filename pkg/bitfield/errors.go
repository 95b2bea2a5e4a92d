package bitfield

import "errors"

var (
	ErrIndexOutOfRange = errors.New("bitfield: index out of range")
	ErrValueOutOfRange = errors.New("bitfield: value out of range")
	ErrInvalidWidth    = errors.New("bitfield: invalid width")
	ErrShortWords      = errors.New("bitfield: word slice too short")
)
