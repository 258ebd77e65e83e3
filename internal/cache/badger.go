package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/roach88/strata/internal/ir"
)

// keyPrefix namespaces result entries in the database.
const keyPrefix = "rows/"

// Badger is a persistent cache backed by BadgerDB. Values are the zstd
// compressed rows; expiry uses badger's entry TTL.
type Badger struct {
	db   *badger.DB
	opts Options
}

// OpenBadger opens (or creates) a cache database in dir. An empty dir
// keeps the database in memory.
func OpenBadger(dir string, opts Options) (*Badger, error) {
	bopts := badger.DefaultOptions(dir)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil
	bopts.ValueThreshold = 1 << 10

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &Badger{db: db, opts: opts}, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Get returns the rows stored under key.
func (b *Badger) Get(_ context.Context, key string) ([]ir.Datum, bool, error) {
	var rows []ir.Datum
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rows, err = decodeRows(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	return rows, true, nil
}

// Put stores rows under key.
func (b *Badger) Put(_ context.Context, key string, rows []ir.Datum) error {
	val, err := encodeRows(rows)
	if err != nil {
		return err
	}
	entry := badger.NewEntry([]byte(keyPrefix+key), val)
	if life := b.opts.lifetime(); life > 0 {
		entry = entry.WithTTL(life)
	}
	if err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry)
	}); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	b.opts.logger().Debug("cached rows", "fingerprint", key, "rows", len(rows), "bytes", len(val))
	return nil
}
