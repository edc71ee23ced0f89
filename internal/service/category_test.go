package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfkeeper/library-server/internal/category"
	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/errors"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/media/images"
	"github.com/shelfkeeper/library-server/internal/store"
	"github.com/shelfkeeper/library-server/internal/store/sqlite"
)

// fakeImages records image calls instead of touching the filesystem.
type fakeImages struct {
	mu         sync.Mutex
	saved      map[string][]byte
	deleted    []string
	failDelete bool
	n          int
}

func newFakeImages() *fakeImages {
	return &fakeImages{saved: make(map[string][]byte)}
}

func (f *fakeImages) Save(_, filename string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	ref := fmt.Sprintf("img-%d%s", f.n, strings.ToLower(filepath.Ext(filename)))
	f.saved[ref] = data
	return ref, nil
}

func (f *fakeImages) Delete(ref, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	if f.failDelete {
		return false
	}
	_, ok := f.saved[ref]
	delete(f.saved, ref)
	return ok
}

type fixture struct {
	categories *CategoryService
	books      *BookService
	images     *fakeImages
	backend    store.Backend
}

type opener func(t *testing.T) store.Backend

func openBadger(t *testing.T) store.Backend {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "badger"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openSQLite(t *testing.T) store.Backend {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var backends = map[string]opener{
	"badger": openBadger,
	"sqlite": openSQLite,
}

// eachBackend runs fn once per store backend.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixture(t, open))
		})
	}
}

func newFixture(t *testing.T, open opener) *fixture {
	t.Helper()
	backend := open(t)
	imgs := newFakeImages()
	log := logger.Discard()
	return &fixture{
		categories: NewCategoryService(backend, imgs, "categories", log),
		books:      NewBookService(backend, log),
		images:     imgs,
		backend:    backend,
	}
}

func (f *fixture) mustCreate(t *testing.T, title string, parent *uint16) *domain.Category {
	t.Helper()
	c, err := f.categories.Create(context.Background(), CategoryInput{
		Title:    title,
		ImageRef: category.DefaultImageRef(title),
		ParentID: parent,
	})
	require.NoError(t, err)
	return c
}

func requireCode(t *testing.T, err error, code errors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, errors.CodeOf(err), "error: %v", err)
}

var ref = domain.CategoryRef

func TestCategoryService_Create(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		fiction, err := f.categories.Create(ctx, CategoryInput{Title: "  Fiction ", ImageRef: "fiction.jpg"})
		require.NoError(t, err)
		assert.NotZero(t, fiction.ID)
		assert.Equal(t, "fiction", fiction.Title)
		assert.Nil(t, fiction.ParentID)

		scifi, err := f.categories.Create(ctx, CategoryInput{Title: "Science Fiction", ImageRef: "scifi.jpg", ParentID: ref(fiction.ID)})
		require.NoError(t, err)
		require.NotNil(t, scifi.ParentID)
		assert.Equal(t, fiction.ID, *scifi.ParentID)

		got, err := f.categories.Get(ctx, scifi.ID)
		require.NoError(t, err)
		assert.Equal(t, "science fiction", got.Title)
		assert.Equal(t, "scifi.jpg", got.ImageRef)
	})
}

func TestCategoryService_CreateValidation(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		tests := []struct {
			name string
			in   CategoryInput
			want string
		}{
			{"empty title", CategoryInput{ImageRef: "a.jpg"}, "title is required"},
			{"blank title", CategoryInput{Title: "   ", ImageRef: "a.jpg"}, "title must not be blank"},
			{"long title", CategoryInput{Title: strings.Repeat("x", 51), ImageRef: "a.jpg"}, "title must not exceed 50 characters"},
			{"missing image", CategoryInput{Title: "Poetry"}, "image_ref is required"},
			{"long image", CategoryInput{Title: "Poetry", ImageRef: strings.Repeat("i", 38)}, "image_ref must not exceed 37 characters"},
			{"everything wrong", CategoryInput{}, "title is required, image_ref is required"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.categories.Create(ctx, tt.in)
				requireCode(t, err, errors.CodeValidation)
				assert.Equal(t, tt.want, err.Error())
			})
		}

		all, err := f.categories.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}

func TestCategoryService_CreateDuplicateTitle(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		f.mustCreate(t, "Fiction", nil)

		_, err := f.categories.Create(ctx, CategoryInput{Title: "  FICTION  ", ImageRef: "b.jpg"})
		requireCode(t, err, errors.CodeAlreadyExists)

		all, err := f.categories.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestCategoryService_CreateMissingParent(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		_, err := f.categories.Create(context.Background(), CategoryInput{Title: "Orphan", ImageRef: "o.jpg", ParentID: ref(42)})
		requireCode(t, err, errors.CodeNotFound)
		assert.Contains(t, err.Error(), "parent category 42")
	})
}

func TestCategoryService_UpdateRejectsCycles(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		// 1 Fiction, 2 Science Fiction -> 1, 3 Space Opera -> 2
		fiction := f.mustCreate(t, "Fiction", nil)
		scifi := f.mustCreate(t, "Science Fiction", ref(fiction.ID))
		opera := f.mustCreate(t, "Space Opera", ref(scifi.ID))

		tests := []struct {
			name   string
			target *domain.Category
			parent uint16
		}{
			{"self parent", scifi, scifi.ID},
			{"root under grandchild", fiction, opera.ID},
			{"middle under child", scifi, opera.ID},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.categories.Update(ctx, CategoryInput{
					ID:       tt.target.ID,
					Title:    tt.target.Title,
					ImageRef: tt.target.ImageRef,
					ParentID: ref(tt.parent),
				})
				requireCode(t, err, errors.CodeCircularHierarchy)
			})
		}

		// Nothing moved.
		got, err := f.categories.Get(ctx, fiction.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ParentID)

		ids, err := f.categories.Descendants(ctx, fiction.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint16{scifi.ID, opera.ID}, ids)
	})
}

func TestCategoryService_UpdateChecksHierarchyBeforeValidation(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		c := f.mustCreate(t, "Fiction", nil)

		_, err := f.categories.Update(context.Background(), CategoryInput{ID: c.ID, Title: "", ParentID: ref(c.ID)})
		requireCode(t, err, errors.CodeCircularHierarchy)
	})
}

func TestCategoryService_Update(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		fiction := f.mustCreate(t, "Fiction", nil)
		history := f.mustCreate(t, "History", nil)
		fantasy := f.mustCreate(t, "Fantasy", nil)

		t.Run("moves under a parent and renames", func(t *testing.T) {
			got, err := f.categories.Update(ctx, CategoryInput{ID: fantasy.ID, Title: " High FANTASY", ImageRef: "hf.jpg", ParentID: ref(fiction.ID)})
			require.NoError(t, err)
			assert.Equal(t, "high fantasy", got.Title)
			assert.Equal(t, "hf.jpg", got.ImageRef)
			require.NotNil(t, got.ParentID)
			assert.Equal(t, fiction.ID, *got.ParentID)
		})

		t.Run("keeps its own title", func(t *testing.T) {
			_, err := f.categories.Update(ctx, CategoryInput{ID: fantasy.ID, Title: "HIGH fantasy", ImageRef: "hf2.jpg", ParentID: ref(fiction.ID)})
			assert.NoError(t, err)
		})

		t.Run("cannot take another title", func(t *testing.T) {
			_, err := f.categories.Update(ctx, CategoryInput{ID: fantasy.ID, Title: "history", ImageRef: "hf.jpg"})
			requireCode(t, err, errors.CodeAlreadyExists)
		})

		t.Run("back to root", func(t *testing.T) {
			got, err := f.categories.Update(ctx, CategoryInput{ID: fantasy.ID, Title: "fantasy", ImageRef: "f.jpg"})
			require.NoError(t, err)
			assert.True(t, got.IsRoot())
		})

		t.Run("validation after hierarchy", func(t *testing.T) {
			_, err := f.categories.Update(ctx, CategoryInput{ID: history.ID, Title: "   ", ImageRef: "h.jpg"})
			requireCode(t, err, errors.CodeValidation)
		})

		t.Run("missing parent", func(t *testing.T) {
			_, err := f.categories.Update(ctx, CategoryInput{ID: history.ID, Title: "history", ImageRef: "h.jpg", ParentID: ref(999)})
			requireCode(t, err, errors.CodeNotFound)
		})

		t.Run("missing category", func(t *testing.T) {
			_, err := f.categories.Update(ctx, CategoryInput{ID: 999, Title: "ghost", ImageRef: "g.jpg"})
			requireCode(t, err, errors.CodeNotFound)
		})
	})
}

func TestCategoryService_DeleteBlockedByChild(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		parent := f.mustCreate(t, "Fiction", nil)
		child := f.mustCreate(t, "Fantasy", ref(parent.ID))

		err := f.categories.Delete(ctx, parent.ID)
		requireCode(t, err, errors.CodeRelationBlocked)
		assert.Equal(t, "category has sub-categories", err.Error())
		assert.Empty(t, f.images.deleted)

		require.NoError(t, f.categories.Delete(ctx, child.ID))
		require.NoError(t, f.categories.Delete(ctx, parent.ID))

		_, err = f.categories.Get(ctx, parent.ID)
		requireCode(t, err, errors.CodeNotFound)
		assert.Equal(t, []string{child.ImageRef, parent.ImageRef}, f.images.deleted)
	})
}

func TestCategoryService_DeleteBlockedByBook(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.mustCreate(t, "Poetry", nil)

		book, err := f.books.Add(ctx, BookInput{Title: "Leaves of Grass", CategoryID: c.ID})
		require.NoError(t, err)

		err = f.categories.Delete(ctx, c.ID)
		requireCode(t, err, errors.CodeRelationBlocked)
		assert.Equal(t, "category is referenced by books", err.Error())

		require.NoError(t, f.books.Remove(ctx, book.ID))
		require.NoError(t, f.categories.Delete(ctx, c.ID))
	})
}

func TestCategoryService_DeleteMissing(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		err := f.categories.Delete(context.Background(), 404)
		requireCode(t, err, errors.CodeNotFound)
	})
}

func TestCategoryService_DeleteSurvivesImageFailure(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		c := f.mustCreate(t, "Poetry", nil)
		f.images.failDelete = true

		require.NoError(t, f.categories.Delete(ctx, c.ID))

		_, err := f.categories.Get(ctx, c.ID)
		requireCode(t, err, errors.CodeNotFound)
		assert.Equal(t, []string{c.ImageRef}, f.images.deleted)
	})
}

func TestCategoryService_CreateWithImage(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		t.Run("stores the upload", func(t *testing.T) {
			c, err := f.categories.CreateWithImage(ctx, CategoryInput{Title: "Fiction"}, images.Upload{Filename: "cover.JPG", Data: []byte("jpg")})
			require.NoError(t, err)
			assert.Equal(t, "img-1.jpg", c.ImageRef)
			assert.Contains(t, f.images.saved, "img-1.jpg")
		})

		t.Run("rejects a bad upload before saving", func(t *testing.T) {
			_, err := f.categories.CreateWithImage(ctx, CategoryInput{Title: "Poetry"}, images.Upload{Filename: "cover.gif", Data: []byte("gif")})
			requireCode(t, err, errors.CodeValidation)
			assert.Len(t, f.images.saved, 1)
		})

		t.Run("removes the upload when the category is rejected", func(t *testing.T) {
			_, err := f.categories.CreateWithImage(ctx, CategoryInput{Title: "FICTION"}, images.Upload{Filename: "c.png", Data: []byte("png")})
			requireCode(t, err, errors.CodeAlreadyExists)
			assert.NotContains(t, f.images.saved, "img-2.png")
			assert.Contains(t, f.images.deleted, "img-2.png")
		})
	})
}

func TestCategoryService_UpdateWithImage(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		c, err := f.categories.CreateWithImage(ctx, CategoryInput{Title: "Fiction"}, images.Upload{Filename: "a.jpg", Data: []byte("a")})
		require.NoError(t, err)
		other := f.mustCreate(t, "History", nil)

		t.Run("replaces the image after commit", func(t *testing.T) {
			got, err := f.categories.UpdateWithImage(ctx, CategoryInput{ID: c.ID, Title: "fiction"}, &images.Upload{Filename: "b.png", Data: []byte("b")})
			require.NoError(t, err)
			assert.Equal(t, "img-2.png", got.ImageRef)
			assert.Equal(t, []string{"img-1.jpg"}, f.images.deleted)
			assert.Contains(t, f.images.saved, "img-2.png")
		})

		t.Run("keeps the old image when the update fails", func(t *testing.T) {
			_, err := f.categories.UpdateWithImage(ctx, CategoryInput{ID: c.ID, Title: other.Title}, &images.Upload{Filename: "c.webp", Data: []byte("c")})
			requireCode(t, err, errors.CodeAlreadyExists)
			assert.Contains(t, f.images.saved, "img-2.png")
			assert.NotContains(t, f.images.saved, "img-3.webp")

			got, err := f.categories.Get(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, "img-2.png", got.ImageRef)
		})

		t.Run("without an upload it is a plain update", func(t *testing.T) {
			got, err := f.categories.UpdateWithImage(ctx, CategoryInput{ID: c.ID, Title: "fiction", ImageRef: "img-2.png"}, nil)
			require.NoError(t, err)
			assert.Equal(t, "img-2.png", got.ImageRef)
			assert.Contains(t, f.images.saved, "img-2.png")
		})
	})
}

func TestCategoryService_ReadSide(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		a := f.mustCreate(t, "A", nil)
		b := f.mustCreate(t, "B", ref(a.ID))
		c := f.mustCreate(t, "C", ref(b.ID))
		d := f.mustCreate(t, "Drama", nil)
		dd := f.mustCreate(t, "Documentary", ref(d.ID))

		t.Run("descendants exclude the category", func(t *testing.T) {
			ids, err := f.categories.Descendants(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, []uint16{b.ID, c.ID}, ids)

			ids, err = f.categories.Descendants(ctx, c.ID)
			require.NoError(t, err)
			assert.Empty(t, ids)
		})

		t.Run("parent candidates skip self and descendants", func(t *testing.T) {
			cands, err := f.categories.ParentCandidates(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, []uint16{d.ID, dd.ID}, categoryIDs(cands))

			cands, err = f.categories.ParentCandidates(ctx, c.ID)
			require.NoError(t, err)
			assert.Equal(t, []uint16{a.ID, b.ID, d.ID, dd.ID}, categoryIDs(cands))
		})

		t.Run("children", func(t *testing.T) {
			kids, err := f.categories.Children(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, []uint16{dd.ID}, categoryIDs(kids))

			_, err = f.categories.Children(ctx, 999)
			requireCode(t, err, errors.CodeNotFound)
		})

		t.Run("search by normalized prefix", func(t *testing.T) {
			found, err := f.categories.Search(ctx, "  D")
			require.NoError(t, err)
			assert.Equal(t, []uint16{d.ID, dd.ID}, categoryIDs(found))

			found, err = f.categories.Search(ctx, "DRA")
			require.NoError(t, err)
			assert.Equal(t, []uint16{d.ID}, categoryIDs(found))

			found, err = f.categories.Search(ctx, "")
			require.NoError(t, err)
			assert.Len(t, found, 5)
		})

		t.Run("reads are idempotent", func(t *testing.T) {
			before, err := f.categories.List(ctx)
			require.NoError(t, err)
			for range 3 {
				_, err := f.categories.Descendants(ctx, a.ID)
				require.NoError(t, err)
				_, err = f.categories.ParentCandidates(ctx, b.ID)
				require.NoError(t, err)
			}
			after, err := f.categories.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})

		t.Run("missing category", func(t *testing.T) {
			_, err := f.categories.Descendants(ctx, 999)
			requireCode(t, err, errors.CodeNotFound)
			_, err = f.categories.ParentCandidates(ctx, 999)
			requireCode(t, err, errors.CodeNotFound)
			_, err = f.categories.Get(ctx, 999)
			requireCode(t, err, errors.CodeNotFound)
		})
	})
}

func TestCategoryService_SeedDefaults(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		n, err := f.categories.SeedDefaults(ctx)
		require.NoError(t, err)
		assert.Equal(t, category.Count(category.DefaultCategories), n)

		all, err := f.categories.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, n)

		scifi, err := f.categories.Search(ctx, "science fiction")
		require.NoError(t, err)
		require.Len(t, scifi, 1)
		require.NotNil(t, scifi[0].ParentID)
		assert.Equal(t, "science-fiction.jpg", scifi[0].ImageRef)

		parent, err := f.categories.Get(ctx, *scifi[0].ParentID)
		require.NoError(t, err)
		assert.Equal(t, "fiction", parent.Title)

		again, err := f.categories.SeedDefaults(ctx)
		require.NoError(t, err)
		assert.Zero(t, again)
	})
}

// TestCategoryService_NoCycleProperty drives random creates and moves through
// the service and checks that every ancestor chain still ends at a root.
func TestCategoryService_NoCycleProperty(t *testing.T) {
	eachBackend(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		rng := rand.New(rand.NewPCG(20261016, 7))

		var ids []uint16
		pick := func() *uint16 {
			if len(ids) == 0 || rng.IntN(4) == 0 {
				return nil
			}
			return ref(ids[rng.IntN(len(ids))])
		}

		for i := range 25 {
			c := f.mustCreate(t, fmt.Sprintf("category %d", i), pick())
			ids = append(ids, c.ID)
		}

		rejected := 0
		for range 200 {
			target := ids[rng.IntN(len(ids))]
			current, err := f.categories.Get(ctx, target)
			require.NoError(t, err)

			_, err = f.categories.Update(ctx, CategoryInput{
				ID:       target,
				Title:    current.Title,
				ImageRef: current.ImageRef,
				ParentID: pick(),
			})
			if err != nil {
				requireCode(t, err, errors.CodeCircularHierarchy)
				rejected++
			}
		}
		assert.Positive(t, rejected, "random moves should hit at least one cycle")

		all, err := f.categories.List(ctx)
		require.NoError(t, err)
		parents := make(map[uint16]*uint16, len(all))
		for _, c := range all {
			parents[c.ID] = c.ParentID
		}
		for _, c := range all {
			steps := 0
			for p := c.ParentID; p != nil; p = parents[*p] {
				steps++
				require.LessOrEqual(t, steps, len(all), "category %d sits on a cycle", c.ID)
			}
		}
	})
}

func TestStoreError(t *testing.T) {
	tests := []struct {
		err  error
		code errors.Code
	}{
		{store.ErrNotFound, errors.CodeNotFound},
		{store.ErrAlreadyExists, errors.CodeAlreadyExists},
		{store.ErrConflict, errors.CodeConflict},
		{store.ErrIDSpaceExhausted, errors.CodeInternal},
		{fmt.Errorf("disk: %w", assert.AnError), ""},
	}

	for _, tt := range tests {
		err := storeError(tt.err, "category %d", 3)
		assert.Equal(t, tt.code, errors.CodeOf(err), "for %v", tt.err)
		assert.Contains(t, err.Error(), "category 3")
	}

	assert.ErrorIs(t, storeError(store.ErrConflict, "x"), store.ErrConflict)
	assert.ErrorIs(t, storeError(assert.AnError, "x"), assert.AnError)
}

func categoryIDs(cats []*domain.Category) []uint16 {
	out := make([]uint16, 0, len(cats))
	for _, c := range cats {
		out = append(out, c.ID)
	}
	return out
}
