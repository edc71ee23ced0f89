package store

import (
	"context"
	"fmt"
	"math"

	"github.com/shelfkeeper/library-server/internal/domain"
)

// AddBook assigns the next book id and stages the record.
// The referenced category must exist in this session.
func (s *session) AddBook(ctx context.Context, b *domain.Book) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	if _, err := s.store.categories.Get(ctx, s.txn, formatCategoryID(b.CategoryID)); err != nil {
		return fmt.Errorf("book category %d: %w", b.CategoryID, err)
	}

	next, err := nextSeq(s.txn, bookSeqKey, math.MaxInt64)
	if err != nil {
		return err
	}

	b.ID = int64(next)
	b.InitTimestamps()
	if err := s.store.books.Create(ctx, s.txn, formatBookID(b.ID), b); err != nil {
		return fmt.Errorf("add book %q: %w", b.Title, err)
	}
	return nil
}

// RemoveBook stages deletion of a book. Returns ErrNotFound if it does not exist.
func (s *session) RemoveBook(ctx context.Context, id int64) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.store.books.Delete(ctx, s.txn, formatBookID(id))
}

// ListBooksByCategory returns the books filed directly under a category, ordered by id.
func (s *session) ListBooksByCategory(ctx context.Context, categoryID uint16) ([]*domain.Book, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	ids, err := s.store.books.IndexIDs(ctx, s.txn, "category", formatCategoryID(categoryID), 0)
	if err != nil {
		return nil, fmt.Errorf("scan book index: %w", err)
	}

	books := make([]*domain.Book, 0, len(ids))
	for _, id := range ids {
		b, err := s.store.books.Get(ctx, s.txn, id)
		if err != nil {
			return nil, fmt.Errorf("get book %s: %w", id, err)
		}
		books = append(books, b)
	}
	return books, nil
}

// BookExistsWithCategory reports whether any book references the category.
func (s *session) BookExistsWithCategory(ctx context.Context, categoryID uint16) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	ids, err := s.store.books.IndexIDs(ctx, s.txn, "category", formatCategoryID(categoryID), 1)
	if err != nil {
		return false, fmt.Errorf("scan book index: %w", err)
	}
	return len(ids) > 0, nil
}
