package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/internal/metrics"
	"github.com/samcharles93/detframe/pkg/bitfield"
	"github.com/samcharles93/detframe/pkg/capture"
	"github.com/samcharles93/detframe/pkg/frame"
)

const (
	defaultUDPAddress = "127.0.0.1:1234"
	maxDatagram       = 65535
)

func udpAddressFlag(dst *string, usage string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "address",
		Aliases:     []string{"a"},
		Usage:       usage,
		Value:       defaultUDPAddress,
		Destination: dst,
	}
}

// sender emits each synthetic frame once per stream id, the way a WIB
// interleaves its links.
type sender struct {
	synth   *synthesizer
	streams int
	limiter *rate.Limiter
	log     logger.Logger
}

// run sends rounds of frames until ctx is done or rounds is reached (0 means
// no limit). It returns the number of datagrams sent.
func (s *sender) run(ctx context.Context, conn net.Conn, rounds int) (int, error) {
	f := s.synth.format
	sent := 0
	buf := make([]byte, 0, f.FrameBytes())
	for round := 0; rounds == 0 || round < rounds; round++ {
		v, err := s.synth.next()
		if err != nil {
			return sent, err
		}
		if err := setFieldMasked(v, "block_length", uint64(f.FrameWords-2)); err != nil {
			return sent, err
		}
		for stream := range s.streams {
			if err := s.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return sent, nil
				}
				return sent, err
			}
			if err := setFieldMasked(v, "stream_id", uint64(stream)); err != nil {
				return sent, err
			}
			if _, err := conn.Write(v.AppendBytes(buf[:0])); err != nil {
				// UDP writes fail transiently when nobody listens yet.
				s.log.Debug("send failed", "err", err)
				continue
			}
			sent++
		}
		if ctx.Err() != nil {
			return sent, nil
		}
	}
	return sent, nil
}

func sendCmd() *cli.Command {
	var (
		address string
		format  string
		streams int64
		rounds  int64
		pps     float64
		start   uint64
	)
	return &cli.Command{
		Name:  "send",
		Usage: "Send synthetic frames over UDP",
		Flags: []cli.Flag{
			udpAddressFlag(&address, "destination host:port"),
			formatFlag(&format, "wibeth"),
			&cli.Int64Flag{
				Name:        "streams",
				Usage:       "stream ids per round",
				Value:       4,
				Destination: &streams,
			},
			&cli.Int64Flag{
				Name:        "rounds",
				Aliases:     []string{"n"},
				Usage:       "rounds to send, 0 until interrupted",
				Destination: &rounds,
			},
			&cli.Float64Flag{
				Name:        "rate",
				Usage:       "datagrams per second, 0 for unlimited",
				Destination: &pps,
			},
			&cli.Uint64Flag{
				Name:        "timestamp",
				Usage:       "timestamp of the first round",
				Destination: &start,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			setIfUnset(cmd, "address", &address, LoadConfig().UDPAddress)
			if streams <= 0 || rounds < 0 || pps < 0 {
				return cli.Exit("error: --streams must be positive, --rounds and --rate non-negative", 1)
			}
			f, err := lookupFormat(format)
			if err != nil {
				return err
			}
			if f.FrameBytes() > maxDatagram {
				return fmt.Errorf("%s frames are %d bytes, too large for one datagram", f.Name, f.FrameBytes())
			}
			conn, err := net.Dial("udp", address)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()

			limit := rate.Inf
			if pps > 0 {
				limit = rate.Limit(pps)
			}
			s := &sender{
				synth:   newSynthesizer(f, start, 0),
				streams: int(streams),
				limiter: rate.NewLimiter(limit, int(streams)),
				log:     log,
			}
			log.Info("sending frames", "format", f.Name, "address", address, "streams", streams)
			began := time.Now()
			sent, err := s.run(ctx, conn, int(rounds))
			elapsed := time.Since(began)
			gbps := 0.0
			if secs := elapsed.Seconds(); secs > 0 {
				gbps = float64(sent*f.FrameBytes()*8) / secs / 1e9
			}
			log.Info("sent frames", "count", sent, "elapsed", elapsed.Round(time.Millisecond), "gbps", fmt.Sprintf("%.3f", gbps))
			return err
		},
	}
}

// receiver decodes datagrams of back-to-back frames.
type receiver struct {
	format  *frame.Format
	metrics *metrics.Metrics
	record  *capture.Recorder
	log     logger.Logger

	packets int
	frames  int
	gaps    int
	lastSeq map[uint64]uint64
}

func newReceiver(f *frame.Format, m *metrics.Metrics, rec *capture.Recorder, log logger.Logger) *receiver {
	return &receiver{format: f, metrics: m, record: rec, log: log, lastSeq: make(map[uint64]uint64)}
}

func (r *receiver) handle(pkt []byte, from net.Addr) error {
	r.packets++
	frames, rest := frame.Split(r.format, pkt)
	if len(frames) == 0 {
		r.metrics.UDPPacket(metrics.ResultShort)
		r.log.Warn("short datagram", "from", from, "bytes", len(pkt), "want", r.format.FrameBytes())
		return nil
	}
	if len(rest) > 0 {
		r.log.Debug("datagram has trailing bytes", "from", from, "bytes", len(rest))
	}
	for _, data := range frames {
		v, err := frame.Decode(r.format, data)
		if err != nil {
			r.metrics.UDPPacket(metrics.ResultMalformed)
			r.metrics.DecodeError("frame", "decode")
			r.log.Warn("undecodable frame", "from", from, "err", err)
			continue
		}
		r.frames++
		r.metrics.FrameDecoded(r.format.Name)
		r.trackSequence(v, from)
		if r.record != nil {
			if err := r.record.AddFrame(data); err != nil {
				return err
			}
		}
	}
	r.metrics.UDPPacket(metrics.ResultOK)
	return nil
}

// trackSequence logs seq_id and counts gaps per stream_id.
func (r *receiver) trackSequence(v frame.View, from net.Addr) {
	fd, ok := v.Format().Field("seq_id")
	if !ok {
		r.log.Debug("received frame", "from", from, "timestamp", v.Timestamp())
		return
	}
	seq, _ := v.Field("seq_id")
	stream, _ := v.Field("stream_id")
	r.log.Debug("received frame", "from", from, "seq_id", seq, "stream_id", stream, "timestamp", v.Timestamp())
	if last, seen := r.lastSeq[stream]; seen {
		if want := (last + 1) & bitfield.Mask(fd.Width); seq != want {
			r.gaps++
			r.log.Warn("sequence gap", "stream_id", stream, "seq_id", seq, "want", want)
		}
	}
	r.lastSeq[stream] = seq
}

// serve reads datagrams until ctx is done or limit frames (0 means no limit)
// have been received.
func (r *receiver) serve(ctx context.Context, conn net.PacketConn, limit int) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	buf := make([]byte, maxDatagram)
	for limit == 0 || r.frames < limit {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if err := r.handle(buf[:n], from); err != nil {
			return err
		}
	}
	return nil
}

func receiveCmd() *cli.Command {
	var (
		address     string
		format      string
		count       int64
		out         string
		metricsAddr string
	)
	return &cli.Command{
		Name:  "receive",
		Usage: "Receive and decode frames over UDP",
		Flags: []cli.Flag{
			udpAddressFlag(&address, "listen host:port"),
			formatFlag(&format, "wibeth"),
			&cli.Int64Flag{
				Name:        "count",
				Aliases:     []string{"n"},
				Usage:       "stop after this many frames, 0 until interrupted",
				Destination: &count,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "record received frames to this .dcf capture",
				Destination: &out,
			},
			&cli.StringFlag{
				Name:        "metrics-addr",
				Usage:       "serve Prometheus metrics on this address",
				Destination: &metricsAddr,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			setIfUnset(cmd, "address", &address, LoadConfig().UDPAddress)
			if count < 0 {
				return cli.Exit("error: --count must not be negative", 1)
			}
			f, err := lookupFormat(format)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			if metricsAddr != "" {
				e := echo.New()
				e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))
				go func() {
					sc := echo.StartConfig{Address: metricsAddr, HideBanner: true}
					if err := sc.Start(ctx, e); err != nil {
						log.Error("metrics server stopped", "err", err)
					}
				}()
			}

			var rec *capture.Recorder
			if out != "" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = file.Close() }()
				if rec, err = capture.NewRecorder(file, f, "detframe receive"); err != nil {
					return err
				}
			}

			conn, err := net.ListenPacket("udp", address)
			if err != nil {
				return err
			}
			defer func() { _ = conn.Close() }()
			log.Info("receiving frames", "format", f.Name, "address", conn.LocalAddr().String())

			r := newReceiver(f, m, rec, log)
			serveErr := r.serve(ctx, conn, int(count))
			if rec != nil {
				if err := rec.Close(); err != nil {
					return errors.Join(serveErr, err)
				}
				log.Info("recorded capture", "out", out, "frames", rec.Info().FrameCount)
			}
			log.Info("receive finished", "packets", r.packets, "frames", r.frames, "gaps", r.gaps)
			return serveErr
		},
	}
}
