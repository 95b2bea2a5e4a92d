package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/pkg/frame"
)

func formatsCmd() *cli.Command {
	return &cli.Command{
		Name:  "formats",
		Usage: "List the known frame formats",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			printFormats(os.Stdout, reg.Formats())
			return nil
		},
	}
}

func printFormats(w io.Writer, fs []*frame.Format) {
	_, _ = fmt.Fprintf(w, "%-14s %3s %6s %8s  %-12s %s\n", "NAME", "W", "BYTES", "SAMPLES", "TIMESTAMP", "DESCRIPTION")
	for _, f := range fs {
		_, _ = fmt.Fprintf(w, "%-14s %3d %6d %8d  %-12s %s\n",
			f.Name, f.WordBits, f.FrameBytes(), f.Samples.Total(), f.Variant(), f.Description)
	}
}
