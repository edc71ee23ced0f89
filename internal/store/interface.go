package store

import (
	"context"

	"github.com/shelfkeeper/library-server/internal/domain"
)

// Backend opens units of work against a persistent category store.
// Implemented by the Badger store in this package and by sqlite.Store.
type Backend interface {
	// Begin starts a session. The caller must Commit or Discard it.
	Begin(ctx context.Context) (Session, error)
	Close() error
}

// CategoryStore is the category half of a session.
type CategoryStore interface {
	// GetCategory returns ErrNotFound when no category has the id.
	GetCategory(ctx context.Context, id uint16) (*domain.Category, error)

	// ListCategories returns the categories accepted by match, ordered by id.
	// A nil match returns every category.
	ListCategories(ctx context.Context, match func(*domain.Category) bool) ([]*domain.Category, error)

	// AddCategory stages a new category and assigns c.ID.
	AddCategory(ctx context.Context, c *domain.Category) error
	UpdateCategory(ctx context.Context, c *domain.Category) error
	RemoveCategory(ctx context.Context, c *domain.Category) error

	// CategoryExists reports whether any category is accepted by match.
	CategoryExists(ctx context.Context, match func(*domain.Category) bool) (bool, error)

	// Commit persists every staged change at once. After Commit the session is done.
	Commit(ctx context.Context) error
}

// BookStore is the book half of a session. Categories only need to know
// whether books point at them.
type BookStore interface {
	// AddBook stages a new book and assigns b.ID. The category must exist.
	AddBook(ctx context.Context, b *domain.Book) error
	RemoveBook(ctx context.Context, id int64) error
	ListBooksByCategory(ctx context.Context, categoryID uint16) ([]*domain.Book, error)
	BookExistsWithCategory(ctx context.Context, categoryID uint16) (bool, error)
}

// Session is a single unit of work. Reads see the session's own staged
// writes; nothing is visible to other sessions until Commit.
type Session interface {
	CategoryStore
	BookStore

	// Discard drops uncommitted changes. It is a no-op after Commit,
	// so callers can always defer it.
	Discard()
}
