// Package api serves frame and trigger decoding over HTTP.
package api

import (
	"context"
	"math"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/internal/metrics"
	"github.com/samcharles93/detframe/internal/tstore"
	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/trigger"
)

const (
	DefaultMaxBodyBytes = 16 << 20
	defaultRangeLimit   = 1000
)

// TriggerRanger is the read side of the trigger store.
type TriggerRanger interface {
	Range(ctx context.Context, k trigger.Kind, from, to uint64, fn func(tstore.Entry) error) error
}

type Config struct {
	Formats *frame.Registry
	// Store enables GET /v1/triggers/:kind. Optional.
	Store        TriggerRanger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
	Logger       logger.Logger
}

type Server struct {
	formats  *frame.Registry
	store    TriggerRanger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	maxBody  int64
	log      logger.Logger
}

func NewServer(cfg Config) *Server {
	s := &Server{
		formats:  cfg.Formats,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		maxBody:  cfg.MaxBodyBytes,
		log:      cfg.Logger,
	}
	if s.formats == nil {
		s.formats = frame.NewRegistry()
	}
	if s.maxBody <= 0 {
		s.maxBody = DefaultMaxBodyBytes
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/formats", s.handleFormats)
	e.GET("/v1/formats/:format", s.handleFormat)
	e.POST("/v1/frames/:format/decode", s.handleDecodeFrame)

	e.POST("/v1/triggers/:kind/decode", s.handleDecodeTrigger)
	e.POST("/v1/triggers/:kind/encode", s.handleEncodeTrigger)
	e.GET("/v1/triggers/:kind", s.handleRangeTriggers)

	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(s.gatherer)))
	}
	e.GET("/healthz", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func (s *Server) kind(c *echo.Context) (trigger.Kind, error) {
	return trigger.ParseKind(c.Param("kind"))
}

func (s *Server) rangeBounds(c *echo.Context) (from, to uint64, limit int, err error) {
	if from, err = queryUint(c, "from", 0); err != nil {
		return
	}
	if to, err = queryUint(c, "to", math.MaxUint64); err != nil {
		return
	}
	l, err := queryUint(c, "limit", defaultRangeLimit)
	if err != nil {
		return
	}
	if l == 0 || l > math.MaxInt32 {
		err = newInvalidRequest("limit must be between 1 and 2^31-1")
		return
	}
	return from, to, int(l), nil
}
