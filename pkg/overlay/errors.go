package overlay

import "errors"

var (
	ErrBufferTooShort = errors.New("overlay: buffer too short")
	ErrSizeOverflow   = errors.New("overlay: size overflow")
	ErrNotFixedSize   = errors.New("overlay: type has no fixed encoded size")
)
