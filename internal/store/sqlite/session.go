package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shelfkeeper/library-server/internal/store"
)

// session is a unit of work over one *sql.Tx.
type session struct {
	tx   *sql.Tx
	done bool
}

var _ store.Session = (*session)(nil)

func (s *session) check(ctx context.Context) error {
	if s.done {
		return store.ErrSessionDone
	}
	return ctx.Err()
}

// Commit commits the transaction.
func (s *session) Commit(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	s.done = true

	if err := s.tx.Commit(); err != nil {
		if isBusy(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Discard rolls the transaction back unless it was already committed.
func (s *session) Discard() {
	if s.done {
		return
	}
	s.done = true
	_ = s.tx.Rollback()
}
