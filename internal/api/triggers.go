package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/detframe/internal/tstore"
	"github.com/samcharles93/detframe/pkg/trigger"
)

var errLimit = errors.New("limit reached")

type TriggerResponse struct {
	Kind   string         `json:"kind"`
	Inputs int            `json:"inputs"`
	Record trigger.Record `json:"record"`
}

type StoredTrigger struct {
	ID     string         `json:"id"`
	Record trigger.Record `json:"record"`
}

type RangeResponse struct {
	Kind      string          `json:"kind"`
	Records   []StoredTrigger `json:"records"`
	Truncated bool            `json:"truncated,omitempty"`
}

// handleDecodeTrigger decodes back-to-back overlays of one kind.
func (s *Server) handleDecodeTrigger(c *echo.Context) error {
	k, err := s.kind(c)
	if err != nil {
		return s.fail(c, err)
	}
	body, err := readBody(c, s.maxBody)
	if err != nil {
		return s.fail(c, err)
	}
	if len(body) == 0 {
		return s.writeBadRequest(c, "empty body", "")
	}
	var out []TriggerResponse
	err = trigger.DecodeStream(k, body, func(r trigger.Record) error {
		out = append(out, TriggerResponse{Kind: k.String(), Inputs: r.Len(), Record: r})
		return nil
	})
	if err != nil {
		s.metrics.DecodeError(k.String(), "malformed")
		return s.fail(c, err)
	}
	s.metrics.OverlayDecoded(len(body))
	return s.writeJSON(c, map[string]any{"records": out})
}

// handleEncodeTrigger turns a JSON record into overlay bytes.
func (s *Server) handleEncodeTrigger(c *echo.Context) error {
	k, err := s.kind(c)
	if err != nil {
		return s.fail(c, err)
	}
	body, err := readBody(c, s.maxBody)
	if err != nil {
		return s.fail(c, err)
	}
	var rec trigger.Record
	switch k {
	case trigger.KindActivity:
		a, err := decodeJSON(body, trigger.Activity{Data: trigger.NewActivityData()})
		if err != nil {
			return s.fail(c, err)
		}
		rec = &a
	case trigger.KindCandidate:
		cd, err := decodeJSON(body, trigger.Candidate{Data: trigger.NewCandidateData()})
		if err != nil {
			return s.fail(c, err)
		}
		for i := range cd.Inputs {
			cd.Inputs[i].Reserved1 = trigger.ActivityReserved1
			cd.Inputs[i].Reserved2 = trigger.ActivityReserved2
		}
		rec = &cd
	}
	out, err := rec.Marshal()
	if err != nil {
		return s.fail(c, err)
	}
	return s.writeBlob(c, out)
}

// handleRangeTriggers lists stored records with from <= time_start < to.
func (s *Server) handleRangeTriggers(c *echo.Context) error {
	if s.store == nil {
		return s.writeError(c, http.StatusServiceUnavailable, "unavailable", "no trigger store configured", "")
	}
	k, err := s.kind(c)
	if err != nil {
		return s.fail(c, err)
	}
	from, to, limit, err := s.rangeBounds(c)
	if err != nil {
		return s.fail(c, err)
	}
	resp := RangeResponse{Kind: k.String(), Records: []StoredTrigger{}}
	err = s.store.Range(c.Request().Context(), k, from, to, func(e tstore.Entry) error {
		if len(resp.Records) == limit {
			resp.Truncated = true
			return errLimit
		}
		resp.Records = append(resp.Records, StoredTrigger{ID: e.ID.String(), Record: e.Record})
		return nil
	})
	if err != nil && !errors.Is(err, errLimit) {
		return s.fail(c, err)
	}
	return s.writeJSON(c, resp)
}
