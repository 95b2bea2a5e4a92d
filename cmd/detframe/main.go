package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().Run(ctx, os.Args)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "detframe",
		Usage: "Decode, synthesize and move detector frames and trigger records",
		Flags: globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			applyGlobalConfig(cmd, LoadConfig())
			if debug {
				logLevel = "debug"
			}
			log, err := logger.Setup(os.Stderr, logFormat, logLevel)
			if err != nil {
				return ctx, err
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			formatsCmd(),
			inspectCmd(),
			synthCmd(),
			packCmd(),
			sendCmd(),
			receiveCmd(),
			serveCmd(),
			triggersCmd(),
			versionCmd(),
		},
	}
}
