package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/pkg/frame"
)

var (
	logLevel    string
	logFormat   string
	debug       bool
	formatsFile string
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "shorthand for --log-level debug",
			Destination: &debug,
		},
		&cli.StringFlag{
			Name:        "formats-file",
			Usage:       "YAML file of extra frame formats, merged over the built-ins",
			Destination: &formatsFile,
		},
	}
}

func formatFlag(dst *string, value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "format",
		Aliases:     []string{"f"},
		Usage:       "frame format name (see `detframe formats`)",
		Value:       value,
		Destination: dst,
	}
}

func storeFlag(dst *string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "store",
		Usage:       "trigger store directory",
		Destination: dst,
	}
}

func kindFlag(dst *string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "kind",
		Aliases:     []string{"k"},
		Usage:       "trigger record kind (activity, candidate)",
		Value:       "activity",
		Destination: dst,
	}
}

// loadRegistry returns the built-in formats plus --formats-file.
func loadRegistry() (*frame.Registry, error) {
	reg, err := frame.Builtin()
	if err != nil {
		return nil, err
	}
	if formatsFile != "" {
		if err := reg.LoadFile(formatsFile); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func lookupFormat(name string) (*frame.Format, error) {
	reg, err := loadRegistry()
	if err != nil {
		return nil, err
	}
	return reg.Lookup(name)
}
