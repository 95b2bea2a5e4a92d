package capture

import "errors"

var (
	ErrInvalidMagic     = errors.New("capture: invalid magic")
	ErrUnsupportedMajor = errors.New("capture: unsupported major version")
	ErrCorruptFile      = errors.New("capture: corrupt file")
	ErrMissingSection   = errors.New("capture: missing section")
)
