package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/store"
)

// categoryColumns is the ordered list of columns selected in category queries.
// Must match the scan order in scanCategory.
const categoryColumns = `id, title, image_ref, parent_id, created_at, updated_at`

// scanCategory scans a sql.Row (or sql.Rows via its Scan method) into a domain.Category.
func scanCategory(scanner interface{ Scan(dest ...any) error }) (*domain.Category, error) {
	var (
		c         domain.Category
		parentID  sql.NullInt64
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(&c.ID, &c.Title, &c.ImageRef, &parentID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		c.ParentID = domain.CategoryRef(uint16(parentID.Int64))
	}

	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCategory retrieves a category by ID.
// Returns store.ErrNotFound if the category does not exist.
func (s *session) GetCategory(ctx context.Context, id uint16) (*domain.Category, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	row := s.tx.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)

	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

// ListCategories returns matching categories ordered by id.
func (s *session) ListCategories(ctx context.Context, match func(*domain.Category) bool) ([]*domain.Category, error) {
	var out []*domain.Category
	err := s.eachCategory(ctx, func(c *domain.Category) bool {
		if match == nil || match(c) {
			out = append(out, c)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CategoryExists reports whether any category satisfies match.
func (s *session) CategoryExists(ctx context.Context, match func(*domain.Category) bool) (bool, error) {
	found := false
	err := s.eachCategory(ctx, func(c *domain.Category) bool {
		if match == nil || match(c) {
			found = true
		}
		return !found
	})
	return found, err
}

// eachCategory streams categories in id order until fn returns false.
func (s *session) eachCategory(ctx context.Context, fn func(*domain.Category) bool) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	rows, err := s.tx.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		if !fn(c) {
			return nil
		}
	}
	return rows.Err()
}

// AddCategory inserts a category and assigns its id.
// Returns store.ErrAlreadyExists if the title is taken and
// store.ErrIDSpaceExhausted once ids no longer fit in 16 bits.
func (s *session) AddCategory(ctx context.Context, c *domain.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	c.InitTimestamps()
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO categories (title, image_ref, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.Title,
		c.ImageRef,
		nullParent(c.ParentID),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		return categoryWriteError("add category", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("add category: last insert id: %w", err)
	}
	if id > store.MaxCategoryID {
		return store.ErrIDSpaceExhausted
	}
	c.ID = uint16(id)
	return nil
}

// UpdateCategory writes the title, image and parent of an existing category.
// Returns store.ErrNotFound if the category does not exist.
func (s *session) UpdateCategory(ctx context.Context, c *domain.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	c.Touch()
	res, err := s.tx.ExecContext(ctx, `
		UPDATE categories
		SET title = ?, image_ref = ?, parent_id = ?, updated_at = ?
		WHERE id = ?`,
		c.Title,
		c.ImageRef,
		nullParent(c.ParentID),
		formatTime(c.UpdatedAt),
		c.ID,
	)
	if err != nil {
		return categoryWriteError(fmt.Sprintf("update category %d", c.ID), err)
	}
	return requireAffected(res)
}

// RemoveCategory deletes a category.
// Returns store.ErrNotFound if the category does not exist.
func (s *session) RemoveCategory(ctx context.Context, c *domain.Category) error {
	if err := s.check(ctx); err != nil {
		return err
	}

	res, err := s.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, c.ID)
	if err != nil {
		return categoryWriteError(fmt.Sprintf("remove category %d", c.ID), err)
	}
	return requireAffected(res)
}

// categoryWriteError maps constraint failures onto store errors.
// A foreign key failure means the parent is missing or the category is still referenced.
func categoryWriteError(op string, err error) error {
	switch {
	case isUnique(err):
		return fmt.Errorf("%s: %w", op, store.ErrAlreadyExists)
	case isForeignKey(err):
		return fmt.Errorf("%s: foreign key: %w", op, store.ErrNotFound)
	case isBusy(err):
		return store.ErrConflict
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
