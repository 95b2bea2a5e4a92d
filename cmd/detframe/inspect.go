package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/pkg/capture"
	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/trigger"
)

var errStop = errors.New("stop")

type inspectOptions struct {
	format   string
	limit    int
	block    int
	asJSON   bool
	triggers bool
}

func inspectCmd() *cli.Command {
	var (
		opts    inspectOptions
		limit   int64
		samples int64
	)
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Decode a raw frame file or a .dcf capture",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			formatFlag(&opts.format, ""),
			&cli.Int64Flag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "frames to print, 0 for all",
				Value:       10,
				Destination: &limit,
			},
			&cli.Int64Flag{
				Name:        "samples",
				Usage:       "also print the samples of this block",
				Value:       -1,
				Destination: &samples,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print one JSON object per frame",
				Destination: &opts.asJSON,
			},
			&cli.BoolFlag{
				Name:        "triggers",
				Usage:       "print trigger records stored in a capture",
				Destination: &opts.triggers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: inspect takes exactly one file", 1)
			}
			opts.limit = int(limit)
			opts.block = int(samples)
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			return runInspect(os.Stdout, reg, cmd.Args().First(), opts)
		},
	}
}

func runInspect(w io.Writer, reg *frame.Registry, path string, opts inspectOptions) error {
	ok, err := isCapture(path)
	if err != nil {
		return err
	}
	if ok {
		cf, err := capture.Open(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		defer func() { _ = cf.Close() }()
		return inspectCapture(w, reg, cf, opts)
	}

	if opts.format == "" {
		return fmt.Errorf("%s is not a capture; --format is required for raw frame files", path)
	}
	f, err := reg.Lookup(opts.format)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	frames, rest := frame.Split(f, data)
	if len(frames) == 0 {
		return fmt.Errorf("%w: %s holds %d bytes, one %s frame is %d", frame.ErrShortFrame, path, len(data), f.Name, f.FrameBytes())
	}
	if !opts.asJSON {
		_, _ = fmt.Fprintf(w, "%s: %d %s frames", path, len(frames), f.Name)
		if len(rest) > 0 {
			_, _ = fmt.Fprintf(w, ", %d trailing bytes", len(rest))
		}
		_, _ = fmt.Fprintln(w)
	}
	for i, data := range frames {
		if opts.limit > 0 && i >= opts.limit {
			break
		}
		if err := printFrame(w, f, i, data, opts); err != nil {
			return err
		}
	}
	return nil
}

func inspectCapture(w io.Writer, reg *frame.Registry, cf *capture.File, opts inspectOptions) error {
	info, err := cf.Info()
	if err != nil {
		return err
	}
	name := info.Format
	if opts.format != "" {
		name = opts.format
	}
	f, err := reg.Lookup(name)
	if err != nil {
		return err
	}
	if f.FrameBytes() != info.FrameBytes {
		return fmt.Errorf("format %s is %d bytes per frame, capture records %d", f.Name, f.FrameBytes(), info.FrameBytes)
	}

	if opts.asJSON {
		if err := writeJSONLine(w, info); err != nil {
			return err
		}
	} else {
		_, _ = fmt.Fprintf(w, "capture %s\n", info.ID)
		_, _ = fmt.Fprintf(w, "  format:     %s (%d bytes/frame)\n", info.Format, info.FrameBytes)
		_, _ = fmt.Fprintf(w, "  frames:     %d\n", info.FrameCount)
		_, _ = fmt.Fprintf(w, "  activities: %d\n", info.Activities)
		_, _ = fmt.Fprintf(w, "  candidates: %d\n", info.Candidates)
		_, _ = fmt.Fprintf(w, "  created:    %s\n", info.Created.Format("2006-01-02 15:04:05Z07:00"))
		if info.Tool != "" {
			_, _ = fmt.Fprintf(w, "  tool:       %s\n", info.Tool)
		}
	}

	err = cf.Frames(func(i int, data []byte) error {
		if opts.limit > 0 && i >= opts.limit {
			return errStop
		}
		return printFrame(w, f, i, data, opts)
	})
	if err != nil && !errors.Is(err, errStop) {
		return err
	}
	if !opts.triggers {
		return nil
	}
	if err := cf.Activities(func(a *trigger.Activity) error { return printRecord(w, a, opts.asJSON) }); err != nil {
		return err
	}
	return cf.Candidates(func(c *trigger.Candidate) error { return printRecord(w, c, opts.asJSON) })
}

func printFrame(w io.Writer, f *frame.Format, i int, data []byte, opts inspectOptions) error {
	v, err := frame.Decode(f, data)
	if err != nil {
		return fmt.Errorf("frame %d: %w", i, err)
	}
	s, err := frame.Summarize(v, opts.block)
	if err != nil {
		return fmt.Errorf("frame %d: %w", i, err)
	}
	if opts.asJSON {
		return writeJSONLine(w, struct {
			Index int `json:"index"`
			frame.Summary
		}{i, s})
	}

	_, _ = fmt.Fprintf(w, "frame %d  timestamp=%d (0x%x)", i, s.Timestamp, s.Timestamp)
	if s.Counter != nil {
		_, _ = fmt.Fprintf(w, "  counter=%d", *s.Counter)
	}
	_, _ = fmt.Fprintln(w)
	for _, fv := range s.Fields {
		if fv.Text != "" {
			_, _ = fmt.Fprintf(w, "  %-24s %d (%s)\n", fv.Name, fv.Value, fv.Text)
			continue
		}
		_, _ = fmt.Fprintf(w, "  %-24s %d\n", fv.Name, fv.Value)
	}
	if s.Block != nil {
		_, _ = fmt.Fprintf(w, "  block %d samples:", *s.Block)
		for j, v := range s.Samples {
			if j%16 == 0 {
				_, _ = fmt.Fprintf(w, "\n    ")
			}
			_, _ = fmt.Fprintf(w, "%5d ", v)
		}
		_, _ = fmt.Fprintln(w)
	}
	return nil
}

func printRecord(w io.Writer, r trigger.Record, asJSON bool) error {
	if asJSON {
		return writeJSONLine(w, struct {
			Kind   string         `json:"kind"`
			Record trigger.Record `json:"record"`
		}{r.Kind().String(), r})
	}
	switch rec := r.(type) {
	case *trigger.Activity:
		d := rec.Data
		_, _ = fmt.Fprintf(w, "activity  time_start=%d time_end=%d channels=[%d,%d] type=%s algorithm=%s inputs=%d\n",
			d.TimeStart, d.TimeEnd, d.ChannelStart, d.ChannelEnd, d.Type, d.Algorithm, len(rec.Inputs))
	case *trigger.Candidate:
		d := rec.Data
		_, _ = fmt.Fprintf(w, "candidate time_start=%d time_end=%d type=%s algorithm=%s inputs=%d\n",
			d.TimeStart, d.TimeEnd, d.Type, d.Algorithm, len(rec.Inputs))
	}
	return nil
}

// isCapture reports whether path starts with the capture magic.
func isCapture(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()
	var magic [len(capture.Magic)]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	return string(magic[:]) == capture.Magic, nil
}

func writeJSONLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
