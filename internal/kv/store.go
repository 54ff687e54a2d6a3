// FlyXC Fetcher - Live Tracking Aggregation
// Copyright 2026 The FlyXC Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vicb/flyXC-sub000

// Package kv is the fetcher's key-value store, backed by BadgerDB.
//
// It serves three purposes:
//   - capped lists and counters of operational telemetry (push-and-trim, so
//     histories never grow unbounded),
//   - the command channel: the presence of a command key asks the next tick
//     to capture state, export or resync,
//   - inbound queues for push-style vendors, filled by webhooks and drained
//     by the vendor fetcher once per tick.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/vicb/flyXC-sub000/internal/logging"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("kv store closed")
)

// Config configures the Badger store.
type Config struct {
	Path         string        `koanf:"path"`
	InMemory     bool          `koanf:"in_memory"`
	SyncWrites   bool          `koanf:"sync_writes"`
	CloseTimeout time.Duration `koanf:"close_timeout"`
}

// Store is a BadgerDB backed key-value store.
type Store struct {
	db     *badger.DB
	config Config

	mu     sync.RWMutex
	closed bool
	seq    atomic.Uint64
}

// Open opens (or creates) the store.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Msg("KV store opened")
	return &Store{db: db, config: cfg}, nil
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get returns the value stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

// Set stores value at key. A positive ttl expires the key.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Take returns the value at key and deletes it in the same transaction.
func (s *Store) Take(ctx context.Context, key string) ([]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		if value, err = item.ValueCopy(nil); err != nil {
			return err
		}
		return txn.Delete([]byte(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take %s: %w", key, err)
	}
	return value, nil
}

// Incr adds delta to the integer stored at key (missing keys count as 0)
// and returns the new value.
func (s *Store) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	if err := s.checkOpen(ctx); err != nil {
		return 0, err
	}
	var next int64
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readInt(txn, key)
		if err != nil {
			return err
		}
		next = current + delta
		return txn.Set([]byte(key), []byte(strconv.FormatInt(next, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}
	return next, nil
}

// DecrPositive decrements the counter at key when it is positive and
// reports whether it did. The key is deleted when it reaches zero.
func (s *Store) DecrPositive(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}
	decremented := false
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readInt(txn, key)
		if err != nil {
			return err
		}
		switch {
		case current <= 0:
			return txn.Delete([]byte(key))
		case current == 1:
			decremented = true
			return txn.Delete([]byte(key))
		default:
			decremented = true
			return txn.Set([]byte(key), []byte(strconv.FormatInt(current-1, 10)))
		}
	})
	if err != nil {
		return false, fmt.Errorf("decr %s: %w", key, err)
	}
	return decremented, nil
}

func readInt(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = item.Value(func(val []byte) error {
		n, err = strconv.ParseInt(string(val), 10, 64)
		return err
	})
	return n, err
}

// PushCapped prepends value to the list at key and trims the list to max entries.
func (s *Store) PushCapped(ctx context.Context, key, value string, max int) error {
	return s.PushCappedAll(ctx, key, []string{value}, max)
}

// PushCappedAll prepends values (in order, the last one ends up first) and trims to max.
func (s *Store) PushCappedAll(ctx context.Context, key string, values []string, max int) error {
	if len(values) == 0 {
		return nil
	}
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		list, err := readList(txn, key)
		if err != nil {
			return err
		}
		next := make([]string, 0, len(list)+len(values))
		for i := len(values) - 1; i >= 0; i-- {
			next = append(next, values[i])
		}
		next = append(next, list...)
		if max > 0 && len(next) > max {
			next = next[:max]
		}
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// Range returns the list stored at key, newest first.
func (s *Store) Range(ctx context.Context, key string) ([]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	var list []string
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		list, err = readList(txn, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	return list, nil
}

func readList(txn *badger.Txn, key string) ([]string, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []string
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &list)
	})
	return list, err
}

func queuePrefix(queue string) []byte {
	return []byte("queue:" + queue + ":")
}

// Enqueue appends msg to the named queue.
func (s *Store) Enqueue(ctx context.Context, queue string, msg []byte) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	// Keys sort by arrival time; the sequence disambiguates same-nanosecond writes.
	key := fmt.Sprintf("%s%020d-%010d", queuePrefix(queue), time.Now().UnixNano(), s.seq.Add(1))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), msg)
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", queue, err)
	}
	return nil
}

// DrainQueue returns every message of the named queue in arrival order and empties it.
func (s *Store) DrainQueue(ctx context.Context, queue string) ([][]byte, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	var msgs [][]byte
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)

		prefix := queuePrefix(queue)
		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				it.Close()
				return err
			}
			msgs = append(msgs, value)
			keys = append(keys, item.KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain %s: %w", queue, err)
	}
	return msgs, nil
}

// RunGC reclaims value log space until nothing is left to rewrite.
func (s *Store) RunGC() error {
	if err := s.checkOpen(context.Background()); err != nil {
		return err
	}
	if s.config.InMemory {
		return nil
	}
	for {
		err := s.db.RunValueLogGC(0.5)
		if errors.Is(err, badger.ErrNoRewrite) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database, giving up after the configured timeout.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	timeout := s.config.CloseTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("close BadgerDB: %w", err)
		}
		logging.Info().Msg("KV store closed")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("badgerdb close timeout after %v", timeout)
	}
}
