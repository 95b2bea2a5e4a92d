package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/pkg/bitfield"
	"github.com/samcharles93/detframe/pkg/detid"
	"github.com/samcharles93/detframe/pkg/frame"
)

// synthesizer produces frames with ramp samples, an advancing timestamp and
// an incrementing sequence number.
type synthesizer struct {
	format *frame.Format
	ts     uint64
	step   uint64
	seq    uint64
}

// One tick of the 62.5 MHz timing system per 16 ns; ADC samples are 32 ticks
// apart.
const ticksPerSample = 32

func newSynthesizer(f *frame.Format, start, step uint64) *synthesizer {
	if step == 0 {
		step = ticksPerSample * uint64(max(f.Samples.Ticks(), 1))
	}
	return &synthesizer{format: f, ts: start, step: step}
}

// setFieldMasked writes v truncated to the field width. Missing fields are
// ignored.
func setFieldMasked(v frame.View, name string, val uint64) error {
	fd, ok := v.Format().Field(name)
	if !ok {
		return nil
	}
	return v.SetField(name, val&bitfield.Mask(fd.Width))
}

func (s *synthesizer) next() (frame.View, error) {
	f := s.format
	v, err := frame.NewView(f)
	if err != nil {
		return nil, err
	}
	v.SetTimestamp(s.ts)
	sd := uint64(detid.ParseSubdetector(f.Subdetector))
	for _, name := range []string{"det_id", "detector_id"} {
		if err := setFieldMasked(v, name, sd); err != nil {
			return nil, err
		}
	}
	if err := setFieldMasked(v, "seq_id", s.seq); err != nil {
		return nil, err
	}
	if err := setFieldMasked(v, "packet_counter", s.seq); err != nil {
		return nil, err
	}
	mask := bitfield.Mask(f.Samples.Bits)
	for b := range f.Samples.Blocks {
		for i := range f.Samples.Count {
			if err := v.SetSample(b, i, (s.seq+uint64(b+i))&mask); err != nil {
				return nil, err
			}
		}
	}
	s.ts += s.step
	s.seq++
	return v, nil
}

func writeSynthetic(w io.Writer, s *synthesizer, n int) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, s.format.FrameBytes())
	for range n {
		v, err := s.next()
		if err != nil {
			return err
		}
		if _, err := bw.Write(v.AppendBytes(buf[:0])); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func synthCmd() *cli.Command {
	var (
		format string
		out    string
		count  int64
		start  uint64
		step   uint64
	)
	return &cli.Command{
		Name:  "synth",
		Usage: "Write synthetic frames of a format to a raw file",
		Flags: []cli.Flag{
			formatFlag(&format, "wibeth"),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output file, - for stdout",
				Value:       "-",
				Destination: &out,
			},
			&cli.Int64Flag{
				Name:        "count",
				Aliases:     []string{"n"},
				Usage:       "number of frames",
				Value:       16,
				Destination: &count,
			},
			&cli.Uint64Flag{
				Name:        "timestamp",
				Usage:       "timestamp of the first frame",
				Destination: &start,
			},
			&cli.Uint64Flag{
				Name:        "step",
				Usage:       "timestamp increment per frame, 0 for 32 ticks per time sample",
				Destination: &step,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if count < 0 {
				return cli.Exit("error: --count must not be negative", 1)
			}
			f, err := lookupFormat(format)
			if err != nil {
				return err
			}
			w := io.Writer(os.Stdout)
			if out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return err
				}
				defer func() { _ = file.Close() }()
				w = file
			}
			if err := writeSynthetic(w, newSynthesizer(f, start, step), int(count)); err != nil {
				return fmt.Errorf("synth: %w", err)
			}
			log.Info("wrote synthetic frames", "format", f.Name, "count", count, "bytes", int(count)*f.FrameBytes(), "out", out)
			return nil
		},
	}
}
