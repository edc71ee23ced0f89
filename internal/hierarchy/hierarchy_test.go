package hierarchy

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/store"
)

// memTree is an in-memory Reader and BookReferences that accepts any shape,
// including corrupted ones the stores would never produce.
type memTree struct {
	cats    map[uint16]*domain.Category
	books   map[uint16]int
	failOn  uint16
	failErr error
}

func newMemTree() *memTree {
	return &memTree{cats: make(map[uint16]*domain.Category), books: make(map[uint16]int)}
}

func (m *memTree) add(id uint16, parent *uint16) *memTree {
	m.cats[id] = &domain.Category{ID: id, ParentID: parent}
	return m
}

func (m *memTree) GetCategory(_ context.Context, id uint16) (*domain.Category, error) {
	if m.failErr != nil && id == m.failOn {
		return nil, m.failErr
	}
	c, ok := m.cats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (m *memTree) ListCategories(_ context.Context, match func(*domain.Category) bool) ([]*domain.Category, error) {
	ids := make([]uint16, 0, len(m.cats))
	for id := range m.cats {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []*domain.Category
	for _, id := range ids {
		c := m.cats[id].Clone()
		if match == nil || match(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memTree) CategoryExists(ctx context.Context, match func(*domain.Category) bool) (bool, error) {
	found, err := m.ListCategories(ctx, match)
	return len(found) > 0, err
}

func (m *memTree) BookExistsWithCategory(_ context.Context, categoryID uint16) (bool, error) {
	return m.books[categoryID] > 0, nil
}

var ref = domain.CategoryRef

// scenario is Fiction(1) <- Science Fiction(2) <- Space Opera(3).
func scenario() *memTree {
	return newMemTree().add(1, nil).add(2, ref(1)).add(3, ref(2))
}

func TestIsCircular(t *testing.T) {
	ctx := context.Background()
	e := New(scenario(), nil)

	tests := []struct {
		name     string
		category uint16
		parent   *uint16
		want     bool
	}{
		{"no parent", 1, nil, false},
		{"self parent", 2, ref(2), true},
		{"root under its grandchild", 1, ref(3), true},
		{"root under its child", 1, ref(2), true},
		{"middle under its child", 2, ref(3), true},
		{"leaf under root", 3, ref(1), false},
		{"leaf keeps its parent", 3, ref(2), false},
		{"new category under leaf", 9, ref(3), false},
		{"dangling parent", 2, ref(42), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.IsCircular(ctx, tt.category, tt.parent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsCircular_DanglingAncestor(t *testing.T) {
	// 5 -> 6 -> (missing 7): the walk stops at the missing link.
	tree := newMemTree().add(5, ref(6)).add(6, ref(7)).add(8, nil)

	got, err := New(tree, nil).IsCircular(context.Background(), 8, ref(5))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIsCircular_CorruptedLoopTerminates(t *testing.T) {
	// 10 <-> 11 already loop; attaching 12 below either must not spin.
	tree := newMemTree().add(10, ref(11)).add(11, ref(10)).add(12, nil)

	got, err := New(tree, nil).IsCircular(context.Background(), 12, ref(10))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestIsCircular_PropagatesStoreFailure(t *testing.T) {
	boom := errors.New("disk on fire")
	tree := scenario()
	tree.failOn, tree.failErr = 2, boom

	_, err := New(tree, nil).IsCircular(context.Background(), 1, ref(3))
	assert.ErrorIs(t, err, boom)
}

func TestDescendantIDs(t *testing.T) {
	ctx := context.Background()
	tree := scenario().add(4, ref(1)).add(5, nil).add(6, ref(5))
	e := New(tree, nil)

	tests := []struct {
		id   uint16
		want []uint16
	}{
		{1, []uint16{2, 3, 4}},
		{2, []uint16{3}},
		{3, []uint16{}},
		{5, []uint16{6}},
		{99, []uint16{}},
	}

	for _, tt := range tests {
		got, err := e.DescendantIDs(ctx, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "descendants of %d", tt.id)
		assert.NotContains(t, got, tt.id)
	}
}

func TestDescendantIDs_CorruptedCycleTerminates(t *testing.T) {
	// 1 -> 2 -> 3 -> 1 with no root at all.
	tree := newMemTree().add(1, ref(3)).add(2, ref(1)).add(3, ref(2))

	got, err := New(tree, nil).DescendantIDs(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []uint16{2, 3}, got)
}

func TestCheckRelations(t *testing.T) {
	ctx := context.Background()
	tree := scenario().add(7, nil)
	tree.books[3] = 2
	tree.books[2] = 1
	e := New(tree, tree)

	tests := []struct {
		name string
		id   uint16
		want Relations
	}{
		{"has child", 1, Relations{Blocked: true, Reason: ReasonHasChildren}},
		{"children win over books", 2, Relations{Blocked: true, Reason: ReasonHasChildren}},
		{"books only", 3, Relations{Blocked: true, Reason: ReasonHasBooks}},
		{"free", 7, Relations{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CheckRelations(ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	tree := scenario()
	e := New(tree, tree)

	before, err := tree.ListCategories(ctx, nil)
	require.NoError(t, err)

	for range 3 {
		circular, err := e.IsCircular(ctx, 1, ref(3))
		require.NoError(t, err)
		assert.True(t, circular)

		ids, err := e.DescendantIDs(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint16{2, 3}, ids)

		rel, err := e.CheckRelations(ctx, 1)
		require.NoError(t, err)
		assert.True(t, rel.Blocked)
	}

	after, err := tree.ListCategories(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEngine_OverStoreSession(t *testing.T) {
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	sess, err := s.Begin(ctx)
	require.NoError(t, err)
	defer sess.Discard()

	fiction := &domain.Category{Title: "fiction", ImageRef: "f.jpg"}
	require.NoError(t, sess.AddCategory(ctx, fiction))
	scifi := &domain.Category{Title: "science fiction", ImageRef: "s.jpg", ParentID: ref(fiction.ID)}
	require.NoError(t, sess.AddCategory(ctx, scifi))
	opera := &domain.Category{Title: "space opera", ImageRef: "o.jpg", ParentID: ref(scifi.ID)}
	require.NoError(t, sess.AddCategory(ctx, opera))

	// Staged writes are visible to the engine before commit.
	e := New(sess, sess)

	circular, err := e.IsCircular(ctx, fiction.ID, ref(opera.ID))
	require.NoError(t, err)
	assert.True(t, circular)

	ids, err := e.DescendantIDs(ctx, fiction.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint16{scifi.ID, opera.ID}, ids)

	require.NoError(t, sess.AddBook(ctx, &domain.Book{Title: "Hyperion", CategoryID: opera.ID}))
	rel, err := e.CheckRelations(ctx, opera.ID)
	require.NoError(t, err)
	assert.Equal(t, Relations{Blocked: true, Reason: ReasonHasBooks}, rel)
}
