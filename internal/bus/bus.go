// Package bus moves trigger overlays over Kafka. Each record carries one
// overlay as its value, the overlay kind in a "kind" header and the
// big-endian time_start as its key.
package bus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/internal/metrics"
	"github.com/samcharles93/detframe/pkg/trigger"
)

const kindHeader = "kind"

var ErrNoBrokers = errors.New("bus: no seed brokers")

type Config struct {
	Brokers []string
	Topic   string
	// Group enables consumer group offset tracking. Empty consumes the
	// topic from the start without committing.
	Group   string
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Topic == "" {
		return errors.New("bus: empty topic")
	}
	return nil
}

func (c Config) log(component string) logger.Logger {
	l := c.Logger
	if l == nil {
		l = logger.Discard()
	}
	return l.With("component", component, "topic", c.Topic)
}

// producer and poller are the parts of *kgo.Client the bus needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

type poller interface {
	PollFetches(ctx context.Context) kgo.Fetches
	Close()
}

// Publisher produces trigger overlays to one topic.
type Publisher struct {
	client  producer
	topic   string
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewPublisher connects to the seed brokers. Extra kgo options are applied
// after the defaults.
func NewPublisher(cfg Config, opts ...kgo.Opt) (*Publisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.AllowAutoTopicCreation(),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("bus: new client: %w", err)
	}
	return newPublisher(client, cfg), nil
}

func newPublisher(p producer, cfg Config) *Publisher {
	return &Publisher{client: p, topic: cfg.Topic, log: cfg.log("publisher"), metrics: cfg.Metrics}
}

// Publish validates payload as an overlay of kind k and produces it,
// waiting for the broker to acknowledge.
func (p *Publisher) Publish(ctx context.Context, k trigger.Kind, payload []byte) error {
	rec, err := trigger.Decode(k, payload)
	if err != nil {
		return fmt.Errorf("bus: refusing to publish %s: %w", k, err)
	}
	r := &kgo.Record{
		Topic:   p.topic,
		Key:     binary.BigEndian.AppendUint64(nil, rec.StartTime()),
		Value:   payload,
		Headers: []kgo.RecordHeader{{Key: kindHeader, Value: []byte(k.String())}},
	}
	if err := p.client.ProduceSync(ctx, r).FirstErr(); err != nil {
		return fmt.Errorf("bus: produce: %w", err)
	}
	p.metrics.BusRecord(k.String(), "out")
	p.log.Debug("published", "kind", k.String(), "time_start", rec.StartTime(), "bytes", len(payload))
	return nil
}

// PublishRecord encodes and publishes rec.
func (p *Publisher) PublishRecord(ctx context.Context, rec trigger.Record) error {
	payload, err := rec.Marshal()
	if err != nil {
		return err
	}
	return p.Publish(ctx, rec.Kind(), payload)
}

func (p *Publisher) Close() { p.client.Close() }

// Consumer decodes trigger overlays from one topic.
type Consumer struct {
	client  poller
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewConsumer(cfg Config, opts ...kgo.Opt) (*Consumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	if cfg.Group != "" {
		base = append(base, kgo.ConsumerGroup(cfg.Group))
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("bus: new client: %w", err)
	}
	return newConsumer(client, cfg), nil
}

func newConsumer(p poller, cfg Config) *Consumer {
	return &Consumer{client: p, log: cfg.log("consumer"), metrics: cfg.Metrics}
}

// Run polls until ctx is cancelled, calling fn for every record that decodes.
// Records with a missing or unknown kind header, or a malformed payload, are
// counted and skipped. Run returns nil on cancellation and the first error
// returned by fn otherwise.
func (c *Consumer) Run(ctx context.Context, fn func(trigger.Record) error) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if fetches.IsClientClosed() {
			return errors.New("bus: client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.Warn("fetch error", "partition", partition, "err", err)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			r := iter.Next()
			rec, err := decodeRecord(r)
			if err != nil {
				c.metrics.DecodeError("bus", "malformed")
				c.log.Warn("skipping record", "partition", r.Partition, "offset", r.Offset, "err", err)
				continue
			}
			c.metrics.BusRecord(rec.Kind().String(), "in")
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) Close() { c.client.Close() }

func decodeRecord(r *kgo.Record) (trigger.Record, error) {
	for _, h := range r.Headers {
		if h.Key != kindHeader {
			continue
		}
		k, err := trigger.ParseKind(string(h.Value))
		if err != nil {
			return nil, err
		}
		return trigger.Decode(k, r.Value)
	}
	return nil, fmt.Errorf("%w: no %q header", trigger.ErrUnknownKind, kindHeader)
}
