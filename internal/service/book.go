package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shelfkeeper/library-server/internal/category"
	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/normalize"
	"github.com/shelfkeeper/library-server/internal/store"
	"github.com/shelfkeeper/library-server/internal/validation"
)

// BookInput carries the fields for filing a book.
type BookInput struct {
	Title      string `json:"title" validate:"required,notblank,max=200"`
	CategoryID uint16 `json:"category_id" validate:"required"`
}

// BookService files books under categories. Books are what keep a
// category from being deleted.
type BookService struct {
	backend   store.Backend
	logger    *slog.Logger
	validator *validation.Validator
}

// NewBookService creates a new book service.
func NewBookService(backend store.Backend, logger *slog.Logger) *BookService {
	return &BookService{
		backend:   backend,
		logger:    logger,
		validator: validation.New(),
	}
}

// Add files a new book under an existing category.
func (s *BookService) Add(ctx context.Context, in BookInput) (*domain.Book, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	sess, err := s.backend.Begin(ctx)
	if err != nil {
		return nil, storeError(err, "begin session")
	}
	defer sess.Discard()

	b := &domain.Book{Title: in.Title, CategoryID: in.CategoryID}
	if err := sess.AddBook(ctx, b); err != nil {
		return nil, storeError(err, "category %d", in.CategoryID)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, storeError(err, "commit book %q", in.Title)
	}

	s.logger.Info("book added", "id", b.ID, "title", b.Title, "category", b.CategoryID)
	return b, nil
}

// Remove deletes a book.
func (s *BookService) Remove(ctx context.Context, id int64) error {
	sess, err := s.backend.Begin(ctx)
	if err != nil {
		return storeError(err, "begin session")
	}
	defer sess.Discard()

	if err := sess.RemoveBook(ctx, id); err != nil {
		return storeError(err, "book %d", id)
	}
	if err := sess.Commit(ctx); err != nil {
		return storeError(err, "commit removal of book %d", id)
	}

	s.logger.Info("book removed", "id", id)
	return nil
}

// ListByCategory returns the books filed directly under a category.
func (s *BookService) ListByCategory(ctx context.Context, categoryID uint16) ([]*domain.Book, error) {
	sess, err := s.backend.Begin(ctx)
	if err != nil {
		return nil, storeError(err, "begin session")
	}
	defer sess.Discard()

	if _, err := sess.GetCategory(ctx, categoryID); err != nil {
		return nil, storeError(err, "category %d", categoryID)
	}

	books, err := sess.ListBooksByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("list books of category %d: %w", categoryID, err)
	}
	return books, nil
}

// SeedSamples files the sample books under their default categories.
// Books whose category is missing, or already holds books, are skipped.
// It returns the number of books added.
func (s *BookService) SeedSamples(ctx context.Context) (int, error) {
	sess, err := s.backend.Begin(ctx)
	if err != nil {
		return 0, storeError(err, "begin session")
	}
	defer sess.Discard()

	cats, err := sess.ListCategories(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("list categories: %w", err)
	}
	byTitle := make(map[string]uint16, len(cats))
	for _, c := range cats {
		byTitle[c.Title] = c.ID
	}

	added := 0
	filled := make(map[uint16]bool)
	for _, sample := range category.SampleBooks {
		catID, ok := byTitle[normalize.Title(sample.Category)]
		if !ok {
			s.logger.Debug("sample book skipped, category missing", "title", sample.Title, "category", sample.Category)
			continue
		}

		if !filled[catID] {
			has, err := sess.BookExistsWithCategory(ctx, catID)
			if err != nil {
				return 0, fmt.Errorf("check books of category %d: %w", catID, err)
			}
			if has {
				continue
			}
		}

		if err := sess.AddBook(ctx, &domain.Book{Title: sample.Title, CategoryID: catID}); err != nil {
			return 0, storeError(err, "add sample book %q", sample.Title)
		}
		filled[catID] = true
		added++
	}

	if err := sess.Commit(ctx); err != nil {
		return 0, storeError(err, "commit sample books")
	}

	s.logger.Info("sample books seeded", "count", added)
	return added, nil
}
