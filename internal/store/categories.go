package store

import (
	"context"
	"fmt"

	"github.com/shelfkeeper/library-server/internal/domain"
)

// GetCategory retrieves a category by ID.
func (s *session) GetCategory(ctx context.Context, id uint16) (*domain.Category, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	return s.store.categories.Get(ctx, s.txn, formatCategoryID(id))
}

// ListCategories returns matching categories ordered by id.
func (s *session) ListCategories(ctx context.Context, match func(*domain.Category) bool) ([]*domain.Category, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var out []*domain.Category
	for c, err := range s.store.categories.List(ctx, s.txn) {
		if err != nil {
			return nil, fmt.Errorf("list categories: %w", err)
		}
		if match == nil || match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

// CategoryExists reports whether any category satisfies match.
func (s *session) CategoryExists(ctx context.Context, match func(*domain.Category) bool) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}

	for c, err := range s.store.categories.List(ctx, s.txn) {
		if err != nil {
			return false, fmt.Errorf("scan categories: %w", err)
		}
		if match == nil || match(c) {
			return true, nil
		}
	}
	return false, nil
}

// AddCategory assigns the next category id and stages the record.
func (s *session) AddCategory(ctx context.Context, c *domain.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	next, err := nextSeq(s.txn, categorySeqKey, MaxCategoryID)
	if err != nil {
		return err
	}

	c.ID = uint16(next)
	c.InitTimestamps()
	if err := s.store.categories.Create(ctx, s.txn, formatCategoryID(c.ID), c); err != nil {
		return fmt.Errorf("add category %q: %w", c.Title, err)
	}
	return nil
}

// UpdateCategory stages new field values for an existing category.
func (s *session) UpdateCategory(ctx context.Context, c *domain.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	c.Touch()
	if err := s.store.categories.Update(ctx, s.txn, formatCategoryID(c.ID), c); err != nil {
		return fmt.Errorf("update category %d: %w", c.ID, err)
	}
	return nil
}

// RemoveCategory stages deletion of a category.
// Callers check for children and books first; this layer does not.
func (s *session) RemoveCategory(ctx context.Context, c *domain.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	if err := s.store.categories.Delete(ctx, s.txn, formatCategoryID(c.ID)); err != nil {
		return fmt.Errorf("remove category %d: %w", c.ID, err)
	}
	return nil
}
