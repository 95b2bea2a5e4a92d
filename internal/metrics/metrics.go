// Package metrics holds the Prometheus collectors for detframe services.
// Collectors are registered on a caller-supplied registry, never the global
// default, so tests and multiple servers in one process do not collide.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "detframe"

// UDP packet results.
const (
	ResultOK        = "ok"
	ResultShort     = "short"
	ResultMalformed = "malformed"
	ResultDropped   = "dropped"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	framesDecoded *prometheus.CounterVec
	decodeErrors  *prometheus.CounterVec
	overlayBytes  prometheus.Histogram
	udpPackets    *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	storedRecords *prometheus.CounterVec
	busRecords    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		framesDecoded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_decoded_total",
			Help:      "Frames decoded by format.",
		}, []string{"format"}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Frame and overlay decode failures by record kind and reason.",
		}, []string{"kind", "reason"}),
		overlayBytes: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "overlay_bytes",
			Help:      "Size of decoded trigger overlays in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		}),
		udpPackets: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "udp_packets_total",
			Help:      "UDP packets received by result.",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		storedRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_records_total",
			Help:      "Trigger records written to the local store by kind.",
		}, []string{"kind"}),
		busRecords: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_records_total",
			Help:      "Trigger records moved over the bus by kind and direction.",
		}, []string{"kind", "direction"}),
	}
}

func (m *Metrics) FrameDecoded(format string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(format).Inc()
}

func (m *Metrics) DecodeError(kind, reason string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) OverlayDecoded(n int) {
	if m == nil {
		return
	}
	m.overlayBytes.Observe(float64(n))
}

func (m *Metrics) UDPPacket(result string) {
	if m == nil {
		return
	}
	m.udpPackets.WithLabelValues(result).Inc()
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (m *Metrics) RecordStored(kind string) {
	if m == nil {
		return
	}
	m.storedRecords.WithLabelValues(kind).Inc()
}

// BusRecord counts a record published ("out") or consumed ("in").
func (m *Metrics) BusRecord(kind, direction string) {
	if m == nil {
		return
	}
	m.busRecords.WithLabelValues(kind, direction).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
