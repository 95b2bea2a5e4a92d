package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/internal/api"
	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/internal/metrics"
	"github.com/samcharles93/detframe/internal/tstore"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storeDir    string
		maxBody     int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the frame and trigger decoding API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			storeFlag(&storeDir),
			&cli.Int64Flag{
				Name:        "max-body",
				Usage:       "request body limit in bytes",
				Value:       api.DefaultMaxBodyBytes,
				Destination: &maxBody,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			setIfUnset(cmd, "addr", &addr, cfg.ServerAddress)
			applyStoreConfig(cmd, cfg, &storeDir)

			formats, err := loadRegistry()
			if err != nil {
				return err
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)

			apiCfg := api.Config{
				Formats:      formats,
				Metrics:      m,
				Gatherer:     reg,
				MaxBodyBytes: maxBody,
				Logger:       log.With("component", "api"),
			}
			if storeDir != "" {
				store, err := tstore.Open(storeDir, tstore.Options{Logger: log, Metrics: m})
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				apiCfg.Store = store
			}

			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(apiCfg).Register(e)
			log.Info("starting server", "address", addr, "formats", len(formats.Names()), "store", storeDir)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
