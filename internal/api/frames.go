package api

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/detframe/pkg/frame"
)

// FormatSummary is the listing entry for one frame format.
type FormatSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Subdetector string `json:"subdetector,omitempty"`
	WordBits    int    `json:"word_bits"`
	FrameBytes  int    `json:"frame_bytes"`
	Samples     int    `json:"samples"`
	Channels    int    `json:"channels"`
	Ticks       int    `json:"ticks"`
	Timestamp   string `json:"timestamp"`
}

func summarizeFormat(f *frame.Format) FormatSummary {
	return FormatSummary{
		Name:        f.Name,
		Description: f.Description,
		Subdetector: f.Subdetector,
		WordBits:    f.WordBits,
		FrameBytes:  f.FrameBytes(),
		Samples:     f.Samples.Total(),
		Channels:    f.Samples.Channels,
		Ticks:       f.Samples.Ticks(),
		Timestamp:   f.Variant().String(),
	}
}

func (s *Server) handleFormats(c *echo.Context) error {
	fs := s.formats.Formats()
	out := make([]FormatSummary, 0, len(fs))
	for _, f := range fs {
		out = append(out, summarizeFormat(f))
	}
	return s.writeJSON(c, map[string]any{"formats": out})
}

// handleFormat returns the full descriptor.
func (s *Server) handleFormat(c *echo.Context) error {
	f, err := s.formats.Lookup(c.Param("format"))
	if err != nil {
		return s.fail(c, err)
	}
	return s.writeJSON(c, f)
}

type DecodeFrameResponse struct {
	Frames []frame.Summary `json:"frames"`
	// Trailing is the number of bytes after the last whole frame.
	Trailing int `json:"trailing,omitempty"`
}

// handleDecodeFrame decodes every whole frame in the body. ?block=N adds the
// samples of block N to each frame.
func (s *Server) handleDecodeFrame(c *echo.Context) error {
	f, err := s.formats.Lookup(c.Param("format"))
	if err != nil {
		return s.fail(c, err)
	}
	block := -1
	if raw := c.QueryParam("block"); raw != "" {
		if block, err = strconv.Atoi(raw); err != nil || block < 0 {
			return s.writeBadRequest(c, fmt.Sprintf("block %q is not a block index", raw), "block")
		}
	}
	body, err := readBody(c, s.maxBody)
	if err != nil {
		return s.fail(c, err)
	}
	if len(body) < f.FrameBytes() {
		s.metrics.DecodeError("frame", "short")
		return s.fail(c, fmt.Errorf("%w: %s needs %d bytes, body has %d", frame.ErrShortFrame, f.Name, f.FrameBytes(), len(body)))
	}

	frames, rest := frame.Split(f, body)
	resp := DecodeFrameResponse{Frames: make([]frame.Summary, 0, len(frames)), Trailing: len(rest)}
	for _, data := range frames {
		v, err := frame.Decode(f, data)
		if err != nil {
			s.metrics.DecodeError("frame", "decode")
			return s.fail(c, err)
		}
		sum, err := frame.Summarize(v, block)
		if err != nil {
			return s.fail(c, err)
		}
		s.metrics.FrameDecoded(f.Name)
		resp.Frames = append(resp.Frames, sum)
	}
	return s.writeJSON(c, resp)
}
