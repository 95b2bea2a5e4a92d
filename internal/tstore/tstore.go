// Package tstore persists trigger overlays in a local pebble database.
//
// Records are keyed kind | time_start (big-endian) | ksuid so a prefix scan
// returns one kind in time order. A second key space maps the ksuid back to
// the record key for lookups by id. Values are the overlay bytes exactly as
// they travel on the wire.
package tstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/segmentio/ksuid"

	"github.com/samcharles93/detframe/internal/logger"
	"github.com/samcharles93/detframe/internal/metrics"
	"github.com/samcharles93/detframe/pkg/trigger"
)

var ErrNotFound = errors.New("tstore: record not found")

const (
	idPrefix = 'i'
	keySize  = 1 + 8 + len(ksuid.Nil)
)

type Options struct {
	// Sync makes every write durable before returning.
	Sync    bool
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Store is safe for concurrent use.
type Store struct {
	db      *pebble.DB
	write   *pebble.WriteOptions
	log     logger.Logger
	metrics *metrics.Metrics
}

func Open(dir string, opts Options) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("tstore: open %s: %w", dir, err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	return &Store{db: db, write: wo, log: log.With("component", "tstore"), metrics: opts.Metrics}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func recordKey(k trigger.Kind, start uint64, id ksuid.KSUID) []byte {
	key := make([]byte, 0, keySize)
	key = append(key, byte(k))
	key = binary.BigEndian.AppendUint64(key, start)
	return append(key, id.Bytes()...)
}

func timeBound(k trigger.Kind, t uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{byte(k)}, t)
}

func idKey(id ksuid.KSUID) []byte {
	return append([]byte{idPrefix}, id.Bytes()...)
}

// Put stores an encoded overlay of kind k after checking that it decodes.
func (s *Store) Put(k trigger.Kind, data []byte) (ksuid.KSUID, error) {
	rec, err := trigger.Decode(k, data)
	if err != nil {
		return ksuid.Nil, fmt.Errorf("tstore: rejecting %s: %w", k, err)
	}
	id := ksuid.New()
	key := recordKey(k, rec.StartTime(), id)

	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Set(key, data, nil); err != nil {
		return ksuid.Nil, err
	}
	if err := b.Set(idKey(id), key, nil); err != nil {
		return ksuid.Nil, err
	}
	if err := b.Commit(s.write); err != nil {
		return ksuid.Nil, fmt.Errorf("tstore: commit: %w", err)
	}
	s.metrics.RecordStored(k.String())
	s.log.Debug("stored record", "kind", k.String(), "id", id.String(), "time_start", rec.StartTime(), "inputs", rec.Len())
	return id, nil
}

func (s *Store) PutActivity(a *trigger.Activity) (ksuid.KSUID, error) {
	data, err := a.Marshal()
	if err != nil {
		return ksuid.Nil, err
	}
	return s.Put(trigger.KindActivity, data)
}

func (s *Store) PutCandidate(c *trigger.Candidate) (ksuid.KSUID, error) {
	data, err := c.Marshal()
	if err != nil {
		return ksuid.Nil, err
	}
	return s.Put(trigger.KindCandidate, data)
}

func (s *Store) get(key []byte) ([]byte, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer.Close() }()
	return bytes.Clone(data), nil
}

// GetRaw returns the kind and overlay bytes of the record with the given id.
func (s *Store) GetRaw(id ksuid.KSUID) (trigger.Kind, []byte, error) {
	key, err := s.get(idKey(id))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", err, id)
	}
	if len(key) != keySize {
		return 0, nil, fmt.Errorf("tstore: index entry for %s is %d bytes", id, len(key))
	}
	data, err := s.get(key)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %s", err, id)
	}
	return trigger.Kind(key[0]), data, nil
}

// Get returns the decoded record with the given id.
func (s *Store) Get(id ksuid.KSUID) (trigger.Record, error) {
	k, data, err := s.GetRaw(id)
	if err != nil {
		return nil, err
	}
	return trigger.Decode(k, data)
}

func (s *Store) Delete(id ksuid.KSUID) error {
	key, err := s.get(idKey(id))
	if err != nil {
		return fmt.Errorf("%w: %s", err, id)
	}
	b := s.db.NewBatch()
	defer func() { _ = b.Close() }()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	if err := b.Delete(idKey(id), nil); err != nil {
		return err
	}
	return b.Commit(s.write)
}

// Entry is one stored record.
type Entry struct {
	ID     ksuid.KSUID
	Kind   trigger.Kind
	Record trigger.Record
	Raw    []byte
}

// Range calls fn for every record of kind k with from <= time_start < to,
// in time order. Raw aliases iterator memory and is only valid during fn.
func (s *Store) Range(ctx context.Context, k trigger.Kind, from, to uint64, fn func(Entry) error) error {
	if to <= from {
		return nil
	}
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: timeBound(k, from),
		UpperBound: timeBound(k, to),
	})
	if err != nil {
		return err
	}
	defer func() { _ = it.Close() }()

	for valid := it.First(); valid; valid = it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		key := it.Key()
		if len(key) != keySize {
			continue
		}
		id, err := ksuid.FromBytes(key[9:])
		if err != nil {
			return err
		}
		raw := it.Value()
		rec, err := trigger.Decode(k, raw)
		if err != nil {
			return fmt.Errorf("tstore: stored %s %s: %w", k, id, err)
		}
		if err := fn(Entry{ID: id, Kind: k, Record: rec, Raw: raw}); err != nil {
			return err
		}
	}
	return it.Error()
}

// Count returns the number of stored records of kind k.
func (s *Store) Count(k trigger.Kind) (int, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{byte(k)},
		UpperBound: []byte{byte(k) + 1},
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	n := 0
	for valid := it.First(); valid; valid = it.Next() {
		n++
	}
	return n, it.Error()
}
