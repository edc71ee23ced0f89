package sqlite

import (
	"context"
	"fmt"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/store"
)

// AddBook inserts a book and assigns its id.
// Returns store.ErrNotFound if the category does not exist.
func (s *session) AddBook(ctx context.Context, b *domain.Book) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	b.InitTimestamps()
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO books (title, category_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		b.Title,
		b.CategoryID,
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	if err != nil {
		if isForeignKey(err) {
			return fmt.Errorf("book category %d: %w", b.CategoryID, store.ErrNotFound)
		}
		return fmt.Errorf("add book %q: %w", b.Title, err)
	}

	b.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("add book: last insert id: %w", err)
	}
	return nil
}

// RemoveBook deletes a book. Returns store.ErrNotFound if it does not exist.
func (s *session) RemoveBook(ctx context.Context, id int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	res, err := s.tx.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("remove book %d: %w", id, err)
	}
	return requireAffected(res)
}

// ListBooksByCategory returns the books filed directly under a category, ordered by id.
func (s *session) ListBooksByCategory(ctx context.Context, categoryID uint16) ([]*domain.Book, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	rows, err := s.tx.QueryContext(ctx, `
		SELECT id, title, category_id, created_at, updated_at
		FROM books WHERE category_id = ? ORDER BY id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	var books []*domain.Book
	for rows.Next() {
		var (
			b                    domain.Book
			createdAt, updatedAt string
		)
		if err := rows.Scan(&b.ID, &b.Title, &b.CategoryID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		if b.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

// BookExistsWithCategory reports whether any book references the category.
func (s *session) BookExistsWithCategory(ctx context.Context, categoryID uint16) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	var exists bool
	err := s.tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM books WHERE category_id = ?)`, categoryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check books for category %d: %w", categoryID, err)
	}
	return exists, nil
}
