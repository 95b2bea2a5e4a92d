package api

import (
	"errors"
	"net/http"

	"github.com/samcharles93/detframe/pkg/bitfield"
	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/overlay"
	"github.com/samcharles93/detframe/pkg/trigger"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrBodyTooLarge   = errors.New("request body too large")
)

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string { return e.msg }
func (e invalidRequestError) Unwrap() error { return ErrInvalidRequest }

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// statusFor maps library errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "body_too_large"
	case errors.Is(err, frame.ErrUnknownFormat), errors.Is(err, trigger.ErrUnknownKind):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, frame.ErrShortFrame),
		errors.Is(err, frame.ErrUnknownField),
		errors.Is(err, bitfield.ErrIndexOutOfRange),
		errors.Is(err, bitfield.ErrValueOutOfRange),
		errors.Is(err, overlay.ErrBufferTooShort),
		errors.Is(err, overlay.ErrSizeOverflow):
		return http.StatusBadRequest, "invalid_request_error"
	}
	return http.StatusInternalServerError, "server_error"
}
