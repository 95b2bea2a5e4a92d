package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/pkg/capture"
	"github.com/samcharles93/detframe/pkg/frame"
	"github.com/samcharles93/detframe/pkg/trigger"
)

type packInput struct {
	frames     string
	activities string
	candidates string
}

func packCmd() *cli.Command {
	var (
		format string
		out    string
		in     packInput
	)
	return &cli.Command{
		Name:      "pack",
		Usage:     "Wrap a raw frame file and optional trigger overlays into a .dcf capture",
		ArgsUsage: "<frames file>",
		Flags: []cli.Flag{
			formatFlag(&format, "wibeth"),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output .dcf path",
				Required:    true,
				Destination: &out,
			},
			&cli.StringFlag{
				Name:        "activities",
				Usage:       "file of back-to-back trigger activity overlays",
				Destination: &in.activities,
			},
			&cli.StringFlag{
				Name:        "candidates",
				Usage:       "file of back-to-back trigger candidate overlays",
				Destination: &in.candidates,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.Args().Len() != 1 {
				return cli.Exit("error: pack takes exactly one frames file", 1)
			}
			in.frames = cmd.Args().First()
			f, err := lookupFormat(format)
			if err != nil {
				return err
			}
			info, err := packCapture(out, f, in)
			if err != nil {
				return err
			}
			log.Info("packed capture", "out", out, "format", info.Format, "frames", info.FrameCount,
				"activities", info.Activities, "candidates", info.Candidates)
			return nil
		},
	}
}

func packCapture(out string, f *frame.Format, in packInput) (capture.Info, error) {
	data, err := os.ReadFile(in.frames)
	if err != nil {
		return capture.Info{}, err
	}
	frames, rest := frame.Split(f, data)
	if len(rest) != 0 {
		return capture.Info{}, fmt.Errorf("%s: %d trailing bytes after %d %s frames", in.frames, len(rest), len(frames), f.Name)
	}

	file, err := os.Create(out)
	if err != nil {
		return capture.Info{}, err
	}
	defer func() { _ = file.Close() }()

	rec, err := capture.NewRecorder(file, f, "detframe pack")
	if err != nil {
		return capture.Info{}, err
	}
	for _, fr := range frames {
		if err := rec.AddFrame(fr); err != nil {
			return capture.Info{}, err
		}
	}
	if err := addOverlays(in.activities, trigger.KindActivity, rec); err != nil {
		return capture.Info{}, err
	}
	if err := addOverlays(in.candidates, trigger.KindCandidate, rec); err != nil {
		return capture.Info{}, err
	}
	if err := rec.Close(); err != nil {
		return capture.Info{}, err
	}
	return rec.Info(), file.Close()
}

func addOverlays(path string, k trigger.Kind, rec *capture.Recorder) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	err = trigger.DecodeStream(k, data, func(r trigger.Record) error {
		switch v := r.(type) {
		case *trigger.Activity:
			return rec.AddActivity(v)
		case *trigger.Candidate:
			return rec.AddCandidate(v)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
