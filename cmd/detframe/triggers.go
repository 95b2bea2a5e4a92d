package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/detframe/internal/bus"
	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/internal/metrics"
	"github.com/samcharles93/detframe/internal/tstore"
	"github.com/samcharles93/detframe/pkg/trigger"
)

func triggersCmd() *cli.Command {
	return &cli.Command{
		Name:  "triggers",
		Usage: "Create, store and move trigger activity and candidate records",
		Commands: []*cli.Command{
			triggersSynthCmd(),
			triggersPutCmd(),
			triggersQueryCmd(),
			triggersPublishCmd(),
			triggersConsumeCmd(),
		},
	}
}

// synthActivity builds activity i of a run: n primitives on consecutive
// channels, one per tick step.
func synthActivity(start uint64, i, n int) *trigger.Activity {
	const width = 1000
	t0 := start + uint64(i)*width
	a := &trigger.Activity{Data: trigger.NewActivityData()}
	a.Data.DetID = 3
	a.Data.Type = trigger.ActivityTPC
	a.Data.Algorithm = trigger.ActivityAlgorithmADCSimpleWindow
	a.Data.TimeStart = t0
	a.Data.TimeEnd = t0 + width - 1
	a.Data.TimeActivity = t0
	for j := range n {
		p := trigger.NewPrimitive()
		p.Type = trigger.PrimitiveTPC
		p.Algorithm = trigger.PrimitiveAlgorithmTPCDefault
		p.DetID = 3
		p.Channel = int32(100 + j)
		p.TimeStart = t0 + uint64(j)*ticksPerSample
		p.TimeOverThreshold = ticksPerSample * 4
		p.TimePeak = p.TimeStart + ticksPerSample
		p.ADCPeak = uint16(50 + j)
		p.ADCIntegral = uint32(200 + 10*j)
		a.Inputs = append(a.Inputs, p)

		a.Data.ADCIntegral += uint64(p.ADCIntegral)
		if p.ADCPeak > a.Data.ADCPeak {
			a.Data.ADCPeak = p.ADCPeak
			a.Data.ChannelPeak = p.Channel
			a.Data.TimePeak = p.TimePeak
		}
	}
	if n > 0 {
		a.Data.ChannelStart = a.Inputs[0].Channel
		a.Data.ChannelEnd = a.Inputs[n-1].Channel
	}
	return a
}

func synthCandidate(start uint64, i, n int) *trigger.Candidate {
	c := &trigger.Candidate{Data: trigger.NewCandidateData()}
	for j := range n {
		c.Inputs = append(c.Inputs, synthActivity(start, i*n+j, 0).Data)
	}
	c.Data.DetID = 3
	c.Data.Type = trigger.CandidateADCSimpleWindow
	c.Data.Algorithm = trigger.CandidateAlgorithmADCSimpleWindow
	c.Data.TimeStart = start
	c.Data.TimeEnd = start
	if n > 0 {
		c.Data.TimeStart = c.Inputs[0].TimeStart
		c.Data.TimeEnd = c.Inputs[n-1].TimeEnd
	}
	c.Data.TimeCandidate = c.Data.TimeStart
	return c
}

func synthRecord(k trigger.Kind, start uint64, i, n int) trigger.Record {
	if k == trigger.KindCandidate {
		return synthCandidate(start, i, n)
	}
	return synthActivity(start, i, n)
}

func writeRecords(w io.Writer, k trigger.Kind, start uint64, count, inputs int) error {
	bw := bufio.NewWriter(w)
	for i := range count {
		b, err := synthRecord(k, start, i, inputs).Marshal()
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func triggersSynthCmd() *cli.Command {
	var (
		kind   string
		out    string
		count  int64
		inputs int64
		start  uint64
	)
	return &cli.Command{
		Name:  "synth",
		Usage: "Write synthetic overlays to a file",
		Flags: []cli.Flag{
			kindFlag(&kind),
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
				Value:       8,
				Usage:       "number of records",
				Destination: &count,
			},
			&cli.Int64Flag{
				Name:        "inputs",
				Value:       4,
				Usage:       "children per record",
				Destination: &inputs,
			},
			&cli.Uint64Flag{
				Name:        "timestamp",
				Usage:       "time_start of the first record",
				Destination: &start,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			k, err := trigger.ParseKind(kind)
			if err != nil {
				return err
			}
			if count < 0 || inputs < 0 {
				return cli.Exit("error: --count and --inputs must not be negative", 1)
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
			if err := writeRecords(w, k, start, int(count), int(inputs)); err != nil {
				return err
			}
			logger.FromContext(ctx).Info("wrote overlays", "kind", k.String(), "count", count, "out", out)
			return nil
		},
	}
}

func openStore(ctx context.Context, dir string, m *metrics.Metrics) (*tstore.Store, error) {
	if dir == "" {
		return nil, cli.Exit("error: --store is required (or store_dir in the config file)", 1)
	}
	return tstore.Open(dir, tstore.Options{Logger: logger.FromContext(ctx), Metrics: m})
}

func triggersPutCmd() *cli.Command {
	var (
		kind     string
		storeDir string
	)
	return &cli.Command{
		Name:      "put",
		Usage:     "Store every overlay in the given files",
		ArgsUsage: "<file>...",
		Flags:     []cli.Flag{kindFlag(&kind), storeFlag(&storeDir)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyStoreConfig(cmd, LoadConfig(), &storeDir)
			k, err := trigger.ParseKind(kind)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, storeDir, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			total := 0
			for _, path := range cmd.Args().Slice() {
				n, err := putFile(store, k, path)
				total += n
				if err != nil {
					return err
				}
				log.Debug("stored file", "path", path, "count", n)
			}
			log.Info("stored overlays", "kind", k.String(), "count", total)
			return nil
		},
	}
}

func putFile(store *tstore.Store, k trigger.Kind, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	n := 0
	err = trigger.DecodeStream(k, data, func(r trigger.Record) error {
		b, err := r.Marshal()
		if err != nil {
			return err
		}
		if _, err := store.Put(k, b); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func triggersQueryCmd() *cli.Command {
	var (
		kind     string
		storeDir string
		from     uint64
		to       uint64
		asJSON   bool
	)
	return &cli.Command{
		Name:  "query",
		Usage: "Print stored records with from <= time_start < to",
		Flags: []cli.Flag{
			kindFlag(&kind),
			storeFlag(&storeDir),
			&cli.Uint64Flag{Name: "from", Destination: &from},
			&cli.Uint64Flag{Name: "to", Value: math.MaxUint64, Destination: &to},
			&cli.BoolFlag{Name: "json", Usage: "print one JSON object per record", Destination: &asJSON},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyStoreConfig(cmd, LoadConfig(), &storeDir)
			k, err := trigger.ParseKind(kind)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, storeDir, nil)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			return store.Range(ctx, k, from, to, func(e tstore.Entry) error {
				return printRecord(os.Stdout, e.Record, asJSON)
			})
		},
	}
}

func busFlags(brokers *[]string, topic *string) []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "brokers",
			Usage:       "Kafka seed brokers",
			Value:       []string{"127.0.0.1:9092"},
			Destination: brokers,
		},
		&cli.StringFlag{
			Name:        "topic",
			Usage:       "Kafka topic",
			Value:       "detframe.triggers",
			Destination: topic,
		},
	}
}

func triggersPublishCmd() *cli.Command {
	var (
		kind    string
		brokers []string
		topic   string
	)
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish every overlay in the given files to Kafka",
		ArgsUsage: "<file>...",
		Flags:     append(busFlags(&brokers, &topic), kindFlag(&kind)),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyBusConfig(cmd, LoadConfig(), &brokers, &topic)
			k, err := trigger.ParseKind(kind)
			if err != nil {
				return err
			}
			pub, err := bus.NewPublisher(bus.Config{Brokers: brokers, Topic: topic, Logger: log})
			if err != nil {
				return err
			}
			defer pub.Close()

			n := 0
			for _, path := range cmd.Args().Slice() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				err = trigger.DecodeStream(k, data, func(r trigger.Record) error {
					n++
					return pub.PublishRecord(ctx, r)
				})
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			log.Info("published overlays", "kind", k.String(), "count", n, "topic", topic)
			return nil
		},
	}
}

func triggersConsumeCmd() *cli.Command {
	var (
		brokers  []string
		topic    string
		group    string
		storeDir string
		asJSON   bool
	)
	return &cli.Command{
		Name:  "consume",
		Usage: "Consume overlays from Kafka, printing or storing them",
		Flags: append(busFlags(&brokers, &topic),
			&cli.StringFlag{Name: "group", Usage: "consumer group, empty to read from the start without committing", Destination: &group},
			storeFlag(&storeDir),
			&cli.BoolFlag{Name: "json", Usage: "print one JSON object per record", Destination: &asJSON},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := LoadConfig()
			applyBusConfig(cmd, cfg, &brokers, &topic)
			applyStoreConfig(cmd, cfg, &storeDir)
			m := metrics.New(prometheus.NewRegistry())

			c, err := bus.NewConsumer(bus.Config{Brokers: brokers, Topic: topic, Group: group, Logger: log, Metrics: m})
			if err != nil {
				return err
			}
			defer c.Close()

			handle := func(r trigger.Record) error { return printRecord(os.Stdout, r, asJSON) }
			if storeDir != "" {
				store, err := openStore(ctx, storeDir, m)
				if err != nil {
					return err
				}
				defer func() { _ = store.Close() }()
				handle = func(r trigger.Record) error {
					b, err := r.Marshal()
					if err != nil {
						return err
					}
					_, err = store.Put(r.Kind(), b)
					return err
				}
			}
			log.Info("consuming", "topic", topic, "group", group)
			return c.Run(ctx, handle)
		},
	}
}
