package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
}

type errorBody struct {
	Error ResponseError `json:"error"`
}

func (s *Server) writeError(c *echo.Context, status int, errType, msg, param string) error {
	s.metrics.HTTPRequest(c.Path(), status)
	return c.JSON(status, errorBody{Error: ResponseError{Message: msg, Type: errType, Param: param}})
}

func (s *Server) writeBadRequest(c *echo.Context, msg, param string) error {
	return s.writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param)
}

// fail classifies err and writes the matching error response.
func (s *Server) fail(c *echo.Context, err error) error {
	status, typ := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.Path(), "err", err)
	}
	return s.writeError(c, status, typ, err.Error(), "")
}

func (s *Server) writeJSON(c *echo.Context, v any) error {
	s.metrics.HTTPRequest(c.Path(), http.StatusOK)
	return c.JSON(http.StatusOK, v)
}

func (s *Server) writeBlob(c *echo.Context, b []byte) error {
	s.metrics.HTTPRequest(c.Path(), http.StatusOK)
	return c.Blob(http.StatusOK, echo.MIMEOctetStream, b)
}

// readBody reads at most limit bytes of the request body.
func readBody(c *echo.Context, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
	}
	return body, nil
}

func decodeJSON[T any](data []byte, into T) (T, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&into); err != nil {
		return into, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return into, nil
}

// queryUint parses an optional unsigned query parameter.
func queryUint(c *echo.Context, name string, def uint64) (uint64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, newInvalidRequest(fmt.Sprintf("%s: %v", name, err))
	}
	return v, nil
}
