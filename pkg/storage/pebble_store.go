package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/coboltblu/exchange/pkg/events"
)

// Reader is the read side of the store that ledgers restore themselves from.
type Reader interface {
	Get(key []byte) ([]byte, bool, error)
	Iterate(prefix []byte, fn func(key, value []byte) error) error
}

// PebbleStore persists venue state. It implements events.Sink: each commit
// of the event log lands as one synced batch.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(128 << 20), // 128MB cache
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 3 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		LBaseMaxBytes:            64 << 20,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// NewMemStore opens a store on an in-memory filesystem.
func NewMemStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory pebble db: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// Commit applies writes and events in one batch.
func (s *PebbleStore) Commit(writes []events.Write, evs []events.Event) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, w := range writes {
		var err error
		if w.Value == nil {
			err = batch.Delete(w.Key, nil)
		} else {
			err = batch.Set(w.Key, w.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("batch write %q: %w", w.Key, err)
		}
	}
	for _, e := range evs {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal event %d: %w", e.Seq, err)
		}
		if err := batch.Set(EventKey(e.Seq), data, nil); err != nil {
			return fmt.Errorf("batch event %d: %w", e.Seq, err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Get returns a copy of the value at key.
func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %q: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

// Iterate calls fn for every key under prefix in key order. key and value
// are only valid during the call.
func (s *PebbleStore) Iterate(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadEvents reads the whole event log back in seq order.
func (s *PebbleStore) LoadEvents() ([]events.Event, error) {
	var out []events.Event
	err := s.Iterate(EventPrefix(), func(_, value []byte) error {
		var e events.Event
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("failed to unmarshal event: %w", err)
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// Meta reads a metadata value.
func (s *PebbleStore) Meta(name string) ([]byte, bool, error) {
	return s.Get(MetaKey(name))
}

var (
	_ events.Sink = (*PebbleStore)(nil)
	_ Reader      = (*PebbleStore)(nil)
)
