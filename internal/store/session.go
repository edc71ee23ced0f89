package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// session is a unit of work over one read-write Badger transaction.
type session struct {
	store *Store
	txn   *badger.Txn
	done  bool
}

var _ Session = (*session)(nil)

func (s *session) check(ctx context.Context) error {
	if s.done {
		return ErrSessionDone
	}
	return ctx.Err()
}

// Commit persists the transaction. Badger rejects the commit with
// badger.ErrConflict when another session committed a key this one read.
func (s *session) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.done = true

	if err := s.txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Discard drops the transaction unless it was already committed.
func (s *session) Discard() {
	if s.done {
		return
	}
	s.done = true
	s.txn.Discard()
}
