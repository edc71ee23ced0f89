// Package storetest is a behavioural suite every store.Backend must pass.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/store"
)

// Opener returns a fresh, empty backend. It should register cleanup on t.
type Opener func(t *testing.T) store.Backend

// Run runs the conformance suite against backends produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("AddAssignsIDs", func(t *testing.T) { testAddAssignsIDs(t, open(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("ListOrderAndFilter", func(t *testing.T) { testListOrderAndFilter(t, open(t)) })
	t.Run("SessionSeesOwnWrites", func(t *testing.T) { testSessionSeesOwnWrites(t, open(t)) })
	t.Run("DiscardDropsWrites", func(t *testing.T) { testDiscardDropsWrites(t, open(t)) })
	t.Run("SessionDoneAfterCommit", func(t *testing.T) { testSessionDone(t, open(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("UniqueTitle", func(t *testing.T) { testUniqueTitle(t, open(t)) })
	t.Run("Remove", func(t *testing.T) { testRemove(t, open(t)) })
	t.Run("Exists", func(t *testing.T) { testExists(t, open(t)) })
	t.Run("Books", func(t *testing.T) { testBooks(t, open(t)) })
	t.Run("BookNeedsCategory", func(t *testing.T) { testBookNeedsCategory(t, open(t)) })
}

func begin(t *testing.T, b store.Backend) store.Session {
	t.Helper()
	sess, err := b.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(sess.Discard)
	return sess
}

// seed commits the given categories in one session and returns them with ids set.
func seed(t *testing.T, b store.Backend, cats ...*domain.Category) []*domain.Category {
	t.Helper()
	ctx := context.Background()
	sess := begin(t, b)
	for _, c := range cats {
		require.NoError(t, sess.AddCategory(ctx, c))
	}
	require.NoError(t, sess.Commit(ctx))
	return cats
}

func cat(title string, parent *uint16) *domain.Category {
	return &domain.Category{Title: title, ImageRef: title + ".jpg", ParentID: parent}
}

func testAddAssignsIDs(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cats := seed(t, b, cat("fiction", nil), cat("history", nil))
	fiction, history := cats[0], cats[1]

	assert.NotZero(t, fiction.ID)
	assert.Greater(t, history.ID, fiction.ID)
	assert.False(t, fiction.CreatedAt.IsZero())

	child := seed(t, b, cat("science fiction", domain.CategoryRef(fiction.ID)))[0]

	sess := begin(t, b)
	got, err := sess.GetCategory(ctx, child.ID)
	require.NoError(t, err)
	assert.Equal(t, "science fiction", got.Title)
	assert.Equal(t, "science fiction.jpg", got.ImageRef)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, fiction.ID, *got.ParentID)

	root, err := sess.GetCategory(ctx, fiction.ID)
	require.NoError(t, err)
	assert.Nil(t, root.ParentID)
}

func testGetMissing(t *testing.T, b store.Backend) {
	sess := begin(t, b)
	_, err := sess.GetCategory(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListOrderAndFilter(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cats := seed(t, b, cat("c", nil), cat("a", nil), cat("b", nil))
	seed(t, b, cat("a child", domain.CategoryRef(cats[1].ID)))

	sess := begin(t, b)
	all, err := sess.ListCategories(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}

	children, err := sess.ListCategories(ctx, func(c *domain.Category) bool {
		return c.IsChildOf(cats[1].ID)
	})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a child", children[0].Title)

	none, err := sess.ListCategories(ctx, func(*domain.Category) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSessionSeesOwnWrites(t *testing.T, b store.Backend) {
	ctx := context.Background()
	sess := begin(t, b)

	c := cat("poetry", nil)
	require.NoError(t, sess.AddCategory(ctx, c))

	got, err := sess.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "poetry", got.Title)

	listed, err := sess.ListCategories(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	c.Title = "verse"
	require.NoError(t, sess.UpdateCategory(ctx, c))
	got, err = sess.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "verse", got.Title)

	require.NoError(t, sess.Commit(ctx))
}

func testDiscardDropsWrites(t *testing.T, b store.Backend) {
	ctx := context.Background()

	sess, err := b.Begin(ctx)
	require.NoError(t, err)
	c := cat("drama", nil)
	require.NoError(t, sess.AddCategory(ctx, c))
	sess.Discard()

	check := begin(t, b)
	_, err = check.GetCategory(ctx, c.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	exists, err := check.CategoryExists(ctx, nil)
	require.NoError(t, err)
	assert.False(t, exists)
}

func testSessionDone(t *testing.T, b store.Backend) {
	ctx := context.Background()

	sess, err := b.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.AddCategory(ctx, cat("art", nil)))
	require.NoError(t, sess.Commit(ctx))

	assert.NotPanics(t, sess.Discard)
	assert.ErrorIs(t, sess.Commit(ctx), store.ErrSessionDone)
	_, err = sess.GetCategory(ctx, 1)
	assert.ErrorIs(t, err, store.ErrSessionDone)

	// Discarding after commit must not roll anything back.
	check := begin(t, b)
	exists, err := check.CategoryExists(ctx, func(c *domain.Category) bool { return c.Title == "art" })
	require.NoError(t, err)
	assert.True(t, exists)
}

func testUpdate(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cats := seed(t, b, cat("fiction", nil), cat("fantasy", nil))
	fiction, fantasy := cats[0], cats[1]

	sess := begin(t, b)
	fantasy.Title = "high fantasy"
	fantasy.ImageRef = "new.png"
	fantasy.ParentID = domain.CategoryRef(fiction.ID)
	require.NoError(t, sess.UpdateCategory(ctx, fantasy))
	require.NoError(t, sess.Commit(ctx))

	check := begin(t, b)
	got, err := check.GetCategory(ctx, fantasy.ID)
	require.NoError(t, err)
	assert.Equal(t, "high fantasy", got.Title)
	assert.Equal(t, "new.png", got.ImageRef)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, fiction.ID, *got.ParentID)

	// Back to root.
	got.ParentID = nil
	require.NoError(t, check.UpdateCategory(ctx, got))
	again, err := check.GetCategory(ctx, fantasy.ID)
	require.NoError(t, err)
	assert.Nil(t, again.ParentID)

	err = check.UpdateCategory(ctx, &domain.Category{ID: 999, Title: "ghost", ImageRef: "g.jpg"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUniqueTitle(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cats := seed(t, b, cat("fiction", nil), cat("history", nil))

	sess := begin(t, b)
	err := sess.AddCategory(ctx, cat("fiction", nil))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	sess.Discard()

	sess = begin(t, b)
	history := cats[1]
	history.Title = "fiction"
	assert.ErrorIs(t, sess.UpdateCategory(ctx, history), store.ErrAlreadyExists)
	sess.Discard()

	// Keeping your own title is not a conflict.
	sess = begin(t, b)
	fiction := cats[0]
	fiction.ImageRef = "other.jpg"
	require.NoError(t, sess.UpdateCategory(ctx, fiction))
	require.NoError(t, sess.Commit(ctx))
}

func testRemove(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cats := seed(t, b, cat("fiction", nil), cat("history", nil))

	sess := begin(t, b)
	require.NoError(t, sess.RemoveCategory(ctx, cats[0]))
	require.NoError(t, sess.Commit(ctx))

	check := begin(t, b)
	_, err := check.GetCategory(ctx, cats[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	all, err := check.ListCategories(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "history", all[0].Title)

	assert.ErrorIs(t, check.RemoveCategory(ctx, cats[0]), store.ErrNotFound)

	// The title is free again.
	again := cat("fiction", nil)
	require.NoError(t, check.AddCategory(ctx, again))
	assert.NotZero(t, again.ID)
}

func testExists(t *testing.T, b store.Backend) {
	ctx := context.Background()

	sess := begin(t, b)
	exists, err := sess.CategoryExists(ctx, nil)
	require.NoError(t, err)
	assert.False(t, exists)
	sess.Discard()

	seed(t, b, cat("fiction", nil))

	sess = begin(t, b)
	exists, err = sess.CategoryExists(ctx, func(c *domain.Category) bool { return c.Title == "fiction" })
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = sess.CategoryExists(ctx, func(c *domain.Category) bool { return c.Title == "poetry" })
	require.NoError(t, err)
	assert.False(t, exists)
}

func testBooks(t *testing.T, b store.Backend) {
	ctx := context.Background()
	cats := seed(t, b, cat("fiction", nil), cat("history", nil))
	fiction, history := cats[0], cats[1]

	sess := begin(t, b)
	dune := &domain.Book{Title: "Dune", CategoryID: fiction.ID}
	emma := &domain.Book{Title: "Emma", CategoryID: fiction.ID}
	require.NoError(t, sess.AddBook(ctx, dune))
	require.NoError(t, sess.AddBook(ctx, emma))
	require.NoError(t, sess.Commit(ctx))
	assert.Greater(t, emma.ID, dune.ID)

	sess = begin(t, b)
	books, err := sess.ListBooksByCategory(ctx, fiction.ID)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Dune", books[0].Title)
	assert.Equal(t, "Emma", books[1].Title)

	has, err := sess.BookExistsWithCategory(ctx, fiction.ID)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = sess.BookExistsWithCategory(ctx, history.ID)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, sess.RemoveBook(ctx, dune.ID))
	require.NoError(t, sess.RemoveBook(ctx, emma.ID))
	assert.ErrorIs(t, sess.RemoveBook(ctx, emma.ID), store.ErrNotFound)
	require.NoError(t, sess.Commit(ctx))

	sess = begin(t, b)
	has, err = sess.BookExistsWithCategory(ctx, fiction.ID)
	require.NoError(t, err)
	assert.False(t, has)
	books, err = sess.ListBooksByCategory(ctx, fiction.ID)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func testBookNeedsCategory(t *testing.T, b store.Backend) {
	sess := begin(t, b)
	err := sess.AddBook(context.Background(), &domain.Book{Title: "Orphan", CategoryID: 77})
	assert.ErrorIs(t, err, store.ErrNotFound)
}
