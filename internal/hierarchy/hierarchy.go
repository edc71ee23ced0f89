// Package hierarchy answers structural questions about the category tree:
// whether a re-parent would close a cycle, which categories sit below a
// category, and whether anything still depends on a category.
//
// The engine only reads. Bind it to a store session so every walk sees one
// consistent snapshot, including writes staged earlier in the same session.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/store"
)

// Reasons reported by CheckRelations.
const (
	ReasonHasChildren = "category has sub-categories"
	ReasonHasBooks    = "category is referenced by books"
)

// Reader is the category lookup the engine walks.
type Reader interface {
	GetCategory(ctx context.Context, id uint16) (*domain.Category, error)
	ListCategories(ctx context.Context, match func(*domain.Category) bool) ([]*domain.Category, error)
	CategoryExists(ctx context.Context, match func(*domain.Category) bool) (bool, error)
}

// BookReferences reports whether books point at a category.
type BookReferences interface {
	BookExistsWithCategory(ctx context.Context, categoryID uint16) (bool, error)
}

// Relations describes what prevents a category from being deleted.
type Relations struct {
	Blocked bool
	Reason  string
}

// Engine evaluates hierarchy rules against one snapshot.
type Engine struct {
	categories Reader
	books      BookReferences
}

// New creates an engine over the given readers. A store.Session satisfies both.
func New(categories Reader, books BookReferences) *Engine {
	return &Engine{categories: categories, books: books}
}

// IsCircular reports whether making proposedParentID the parent of categoryID
// would create a cycle. It walks up from the proposed parent and answers true
// when the walk reaches categoryID, which covers the self-parent case.
//
// A missing category ends the walk without a cycle. A walk that comes back to
// an id it already visited is already looping without categoryID on it; that
// also counts as circular, since the new parent would never reach a root.
func (e *Engine) IsCircular(ctx context.Context, categoryID uint16, proposedParentID *uint16) (bool, error) {
	if proposedParentID == nil {
		return false, nil
	}

	seen := make(map[uint16]struct{})
	current := *proposedParentID
	for {
		if current == categoryID {
			return true, nil
		}
		if _, ok := seen[current]; ok {
			return true, nil
		}
		seen[current] = struct{}{}

		c, err := e.categories.GetCategory(ctx, current)
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("walk ancestors at %d: %w", current, err)
		}
		if c.ParentID == nil {
			return false, nil
		}
		current = *c.ParentID
	}
}

// DescendantIDs returns the ids of every category below categoryID, sorted
// ascending. The category itself is never included. The tree is read once and
// walked breadth first; ids are visited at most once, so corrupted data with
// cycles still terminates.
func (e *Engine) DescendantIDs(ctx context.Context, categoryID uint16) ([]uint16, error) {
	all, err := e.categories.ListCategories(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	children := make(map[uint16][]uint16, len(all))
	for _, c := range all {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c.ID)
		}
	}

	visited := map[uint16]struct{}{categoryID: {}}
	queue := []uint16{categoryID}
	out := make([]uint16, 0)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		next := queue[0]
		queue = queue[1:]
		for _, child := range children[next] {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			out = append(out, child)
			queue = append(queue, child)
		}
	}

	slices.Sort(out)
	return out, nil
}

// CheckRelations reports whether categoryID is still depended upon. Child
// categories are checked before books; the first hit decides the reason.
func (e *Engine) CheckRelations(ctx context.Context, categoryID uint16) (Relations, error) {
	hasChildren, err := e.categories.CategoryExists(ctx, func(c *domain.Category) bool {
		return c.IsChildOf(categoryID)
	})
	if err != nil {
		return Relations{}, fmt.Errorf("check child categories: %w", err)
	}
	if hasChildren {
		return Relations{Blocked: true, Reason: ReasonHasChildren}, nil
	}

	hasBooks, err := e.books.BookExistsWithCategory(ctx, categoryID)
	if err != nil {
		return Relations{}, fmt.Errorf("check book references: %w", err)
	}
	if hasBooks {
		return Relations{Blocked: true, Reason: ReasonHasBooks}, nil
	}

	return Relations{}, nil
}
