// Package sqlite implements the category store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/shelfkeeper/library-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// pragmas are applied by the driver to every pooled connection.
// Immediate transactions take the write lock at BEGIN, so two sessions
// never interleave a read-check-write sequence.
var pragmas = []string{
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(NORMAL)",
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_txlock=immediate",
}

// Store provides SQLite-backed persistence for categories and books.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Backend = (*Store)(nil)

// Open creates a new SQLite store at the given path.
// It configures WAL mode, sets pragmas, and runs schema migrations.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?"+strings.Join(pragmas, "&"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Debug("SQLite database opened", "path", path)
	}

	return &Store{db: db, logger: logger}, nil
}

// migrate applies pending goose migrations from the embedded SQL files.
func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Debug("Closing database connection")
	}
	return s.db.Close()
}

// Begin starts a session over one immediate transaction.
func (s *Store) Begin(ctx context.Context) (store.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		if isBusy(err) {
			return nil, store.ErrConflict
		}
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &session{tx: tx}, nil
}

// formatTime formats a time.Time to RFC3339Nano for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// nullParent returns a sql.NullInt64 from an optional parent reference.
func nullParent(id *uint16) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func isUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKey(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
