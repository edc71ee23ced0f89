// Package store defines the category store contract and its Badger backend.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/normalize"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger

	categories *Entity[domain.Category]
	books      *Entity[domain.Book]
}

var _ Backend = (*Store)(nil)

// Open creates a new Store at the given database path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Disable Badger's internal logging
	opts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
		categories: NewEntity[domain.Category](categoryPrefix).
			WithUniqueIndex("title", func(c *domain.Category) []string {
				return []string{normalize.Title(c.Title)}
			}),
		books: NewEntity[domain.Book](bookPrefix).
			WithIndex("category", func(b *domain.Book) []string {
				return []string{formatCategoryID(b.CategoryID)}
			}),
	}

	if logger != nil {
		logger.Debug("Badger database opened", "path", path)
	}

	return s, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Debug("Closing database connection")
	}
	return s.db.Close()
}

// Begin starts a read-write session backed by one Badger transaction.
func (s *Store) Begin(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.db.IsClosed() {
		return nil, errors.New("badger db is closed")
	}
	return &session{store: s, txn: s.db.NewTransaction(true)}, nil
}

// nextSeq bumps the sequence stored at key and returns the new value.
// Sequences live in the session's transaction, so two sessions that both
// allocate ids conflict at commit instead of handing out the same id.
func nextSeq(txn *badger.Txn, key string, maxValue uint64) (uint64, error) {
	var current uint64

	item, err := txn.Get([]byte(key))
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, fmt.Errorf("failed to read sequence %s: %w", key, err)
	default:
		err = item.Value(func(val []byte) error {
			v, decodeErr := decodeSeq(val)
			current = v
			return decodeErr
		})
		if err != nil {
			return 0, fmt.Errorf("failed to read sequence %s: %w", key, err)
		}
	}

	if current >= maxValue {
		return 0, ErrIDSpaceExhausted
	}
	next := current + 1
	if err := txn.Set([]byte(key), encodeSeq(next)); err != nil {
		return 0, fmt.Errorf("failed to bump sequence %s: %w", key, err)
	}
	return next, nil
}
