package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shelfkeeper/library-server/internal/category"
	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/errors"
	"github.com/shelfkeeper/library-server/internal/hierarchy"
	"github.com/shelfkeeper/library-server/internal/media/images"
	"github.com/shelfkeeper/library-server/internal/normalize"
	"github.com/shelfkeeper/library-server/internal/store"
	"github.com/shelfkeeper/library-server/internal/validation"
)

// ImageStore saves and removes category images.
// Implemented by images.Storage.
type ImageStore interface {
	Save(folder, filename string, data []byte) (string, error)
	Delete(ref, folder string) bool
}

// CategoryInput carries the caller's fields for creating or updating a category.
// ID is ignored on create.
type CategoryInput struct {
	ID       uint16  `json:"id"`
	Title    string  `json:"title" validate:"required,notblank,max=50"`
	ImageRef string  `json:"image_ref" validate:"required,max=37"`
	ParentID *uint16 `json:"parent_id,omitempty"`
}

// DefaultUploadRules are used unless WithUploadRules says otherwise.
var DefaultUploadRules = images.UploadRules{
	MaxSize:           2 << 20,
	AllowedExtensions: []string{".jpg", ".jpeg", ".png", ".webp"},
}

// CategoryOption configures a CategoryService.
type CategoryOption func(*CategoryService)

// WithUploadRules sets the limits applied to uploaded category images.
func WithUploadRules(rules images.UploadRules) CategoryOption {
	return func(s *CategoryService) {
		s.uploads = rules
	}
}

// CategoryService orchestrates category operations.
// Every mutation runs in one store session and commits once; anything that
// fails before the commit leaves the store untouched.
type CategoryService struct {
	backend   store.Backend
	images    ImageStore
	folder    string
	uploads   images.UploadRules
	logger    *slog.Logger
	validator *validation.Validator
}

// NewCategoryService creates a new category service. Category images are
// saved to and deleted from folder through imgs.
func NewCategoryService(backend store.Backend, imgs ImageStore, folder string, logger *slog.Logger, opts ...CategoryOption) *CategoryService {
	s := &CategoryService{
		backend:   backend,
		images:    imgs,
		folder:    folder,
		uploads:   DefaultUploadRules,
		logger:    logger,
		validator: validation.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create adds a new category.
func (s *CategoryService) Create(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	title := normalize.Title(in.Title)

	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	if err := s.requireParent(ctx, sess, in.ParentID); err != nil {
		return nil, err
	}
	if err := s.requireUniqueTitle(ctx, sess, title, nil); err != nil {
		return nil, err
	}

	c := &domain.Category{
		Title:    title,
		ImageRef: in.ImageRef,
		ParentID: copyRef(in.ParentID),
	}
	if err := sess.AddCategory(ctx, c); err != nil {
		return nil, storeError(err, "add category %q", title)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, storeError(err, "commit new category %q", title)
	}

	s.logger.Info("category created", "id", c.ID, "title", c.Title, "parent", parentAttr(c.ParentID))
	return c, nil
}

// Update changes the title, image and parent of an existing category.
// The hierarchy is checked before the input is validated, so a circular
// move is reported even when other fields are also wrong.
func (s *CategoryService) Update(ctx context.Context, in CategoryInput) (*domain.Category, error) {
	c, _, err := s.update(ctx, in)
	return c, err
}

// update returns the committed category and the image ref it replaced.
func (s *CategoryService) update(ctx context.Context, in CategoryInput) (*domain.Category, string, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, "", err
	}
	defer sess.Discard()

	c, err := sess.GetCategory(ctx, in.ID)
	if err != nil {
		return nil, "", storeError(err, "category %d", in.ID)
	}

	circular, err := hierarchy.New(sess, sess).IsCircular(ctx, in.ID, in.ParentID)
	if err != nil {
		return nil, "", fmt.Errorf("check hierarchy of category %d: %w", in.ID, err)
	}
	if circular {
		s.logger.Debug("category move rejected", "id", in.ID, "parent", parentAttr(in.ParentID))
		return nil, "", errors.CircularHierarchy("a category cannot be its own ancestor")
	}

	if err := s.validator.Validate(in); err != nil {
		return nil, "", err
	}
	title := normalize.Title(in.Title)

	if err := s.requireParent(ctx, sess, in.ParentID); err != nil {
		return nil, "", err
	}
	if err := s.requireUniqueTitle(ctx, sess, title, &in.ID); err != nil {
		return nil, "", err
	}

	previousRef := c.ImageRef
	c.Title = title
	c.ImageRef = in.ImageRef
	c.ParentID = copyRef(in.ParentID)

	if err := sess.UpdateCategory(ctx, c); err != nil {
		return nil, "", storeError(err, "update category %d", c.ID)
	}
	if err := sess.Commit(ctx); err != nil {
		return nil, "", storeError(err, "commit category %d", c.ID)
	}

	s.logger.Info("category updated", "id", c.ID, "title", c.Title, "parent", parentAttr(c.ParentID))
	return c, previousRef, nil
}

// Delete removes a category that nothing depends on, then its image.
// A failed image delete is logged; the category stays deleted.
func (s *CategoryService) Delete(ctx context.Context, id uint16) error {
	sess, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer sess.Discard()

	rel, err := hierarchy.New(sess, sess).CheckRelations(ctx, id)
	if err != nil {
		return fmt.Errorf("check relations of category %d: %w", id, err)
	}
	if rel.Blocked {
		s.logger.Debug("category delete rejected", "id", id, "reason", rel.Reason)
		return errors.RelationBlocked(rel.Reason)
	}

	c, err := sess.GetCategory(ctx, id)
	if err != nil {
		return storeError(err, "category %d", id)
	}
	if err := sess.RemoveCategory(ctx, c); err != nil {
		return storeError(err, "remove category %d", id)
	}
	if err := sess.Commit(ctx); err != nil {
		return storeError(err, "commit removal of category %d", id)
	}

	s.logger.Info("category deleted", "id", c.ID, "title", c.Title)
	s.deleteImage(c.ImageRef)
	return nil
}

// CreateWithImage stores the upload as the category image and creates the category.
// The saved image is removed again if the category cannot be created.
func (s *CategoryService) CreateWithImage(ctx context.Context, in CategoryInput, up images.Upload) (*domain.Category, error) {
	ref, err := s.saveUpload(up)
	if err != nil {
		return nil, err
	}

	in.ImageRef = ref
	c, err := s.Create(ctx, in)
	if err != nil {
		s.deleteImage(ref)
		return nil, err
	}
	return c, nil
}

// UpdateWithImage updates the category and, when up is set, replaces its image.
// The previous image is deleted only after the update is committed; on failure
// the new image is deleted instead.
func (s *CategoryService) UpdateWithImage(ctx context.Context, in CategoryInput, up *images.Upload) (*domain.Category, error) {
	if up == nil {
		return s.Update(ctx, in)
	}

	ref, err := s.saveUpload(*up)
	if err != nil {
		return nil, err
	}

	in.ImageRef = ref
	c, previousRef, err := s.update(ctx, in)
	if err != nil {
		s.deleteImage(ref)
		return nil, err
	}
	if previousRef != "" && previousRef != ref {
		s.deleteImage(previousRef)
	}
	return c, nil
}

// Get returns a single category.
func (s *CategoryService) Get(ctx context.Context, id uint16) (*domain.Category, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	c, err := sess.GetCategory(ctx, id)
	if err != nil {
		return nil, storeError(err, "category %d", id)
	}
	return c, nil
}

// List returns every category ordered by id.
func (s *CategoryService) List(ctx context.Context) ([]*domain.Category, error) {
	return s.list(ctx, nil)
}

// Search returns categories whose normalized title starts with the normalized prefix.
func (s *CategoryService) Search(ctx context.Context, prefix string) ([]*domain.Category, error) {
	p := normalize.Title(prefix)
	return s.list(ctx, func(c *domain.Category) bool {
		return strings.HasPrefix(c.Title, p)
	})
}

// Children returns the direct children of a category.
func (s *CategoryService) Children(ctx context.Context, id uint16) ([]*domain.Category, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	if _, err := sess.GetCategory(ctx, id); err != nil {
		return nil, storeError(err, "category %d", id)
	}

	children, err := sess.ListCategories(ctx, func(c *domain.Category) bool {
		return c.IsChildOf(id)
	})
	if err != nil {
		return nil, fmt.Errorf("list children of category %d: %w", id, err)
	}
	return children, nil
}

// Descendants returns the ids of every category below id, sorted ascending.
func (s *CategoryService) Descendants(ctx context.Context, id uint16) ([]uint16, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	if _, err := sess.GetCategory(ctx, id); err != nil {
		return nil, storeError(err, "category %d", id)
	}

	ids, err := hierarchy.New(sess, sess).DescendantIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("descendants of category %d: %w", id, err)
	}
	return ids, nil
}

// ParentCandidates lists the categories id may be moved under: everything
// except the category itself and its descendants.
func (s *CategoryService) ParentCandidates(ctx context.Context, id uint16) ([]*domain.Category, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	if _, err := sess.GetCategory(ctx, id); err != nil {
		return nil, storeError(err, "category %d", id)
	}

	descendants, err := hierarchy.New(sess, sess).DescendantIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("descendants of category %d: %w", id, err)
	}

	excluded := make(map[uint16]struct{}, len(descendants)+1)
	excluded[id] = struct{}{}
	for _, d := range descendants {
		excluded[d] = struct{}{}
	}

	candidates, err := sess.ListCategories(ctx, func(c *domain.Category) bool {
		_, skip := excluded[c.ID]
		return !skip
	})
	if err != nil {
		return nil, fmt.Errorf("list parent candidates: %w", err)
	}
	return candidates, nil
}

// SeedDefaults creates the default taxonomy in one session when the store
// holds no categories. It returns the number of categories created.
func (s *CategoryService) SeedDefaults(ctx context.Context) (int, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}
	defer sess.Discard()

	exists, err := sess.CategoryExists(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("check for existing categories: %w", err)
	}
	if exists {
		s.logger.Info("categories already present, skipping default seed")
		return 0, nil
	}

	ids := make(map[string]uint16)
	created := 0
	err = category.Walk(category.DefaultCategories, func(seed category.Seed, parent *category.Seed) error {
		in := CategoryInput{Title: seed.Title, ImageRef: category.DefaultImageRef(seed.Title)}
		if err := s.validator.Validate(in); err != nil {
			return fmt.Errorf("default category %q: %w", seed.Title, err)
		}

		c := &domain.Category{Title: normalize.Title(in.Title), ImageRef: in.ImageRef}
		if parent != nil {
			c.ParentID = domain.CategoryRef(ids[parent.Title])
		}
		if err := sess.AddCategory(ctx, c); err != nil {
			return storeError(err, "add default category %q", seed.Title)
		}
		ids[seed.Title] = c.ID
		created++
		return nil
	})
	if err != nil {
		return 0, err
	}

	if err := sess.Commit(ctx); err != nil {
		return 0, storeError(err, "commit default categories")
	}

	s.logger.Info("default categories seeded", "count", created)
	return created, nil
}

func (s *CategoryService) begin(ctx context.Context) (store.Session, error) {
	sess, err := s.backend.Begin(ctx)
	if err != nil {
		return nil, storeError(err, "begin session")
	}
	return sess, nil
}

func (s *CategoryService) list(ctx context.Context, match func(*domain.Category) bool) ([]*domain.Category, error) {
	sess, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Discard()

	cats, err := sess.ListCategories(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

// requireParent fails with NOT_FOUND when a parent is named but missing.
func (s *CategoryService) requireParent(ctx context.Context, sess store.Session, parentID *uint16) error {
	if parentID == nil {
		return nil
	}
	if _, err := sess.GetCategory(ctx, *parentID); err != nil {
		return storeError(err, "parent category %d", *parentID)
	}
	return nil
}

// requireUniqueTitle fails with ALREADY_EXISTS when another category has title.
// exclude, when set, is the category being updated.
func (s *CategoryService) requireUniqueTitle(ctx context.Context, sess store.Session, title string, exclude *uint16) error {
	taken, err := sess.CategoryExists(ctx, func(c *domain.Category) bool {
		if exclude != nil && c.ID == *exclude {
			return false
		}
		return normalize.Equal(c.Title, title)
	})
	if err != nil {
		return fmt.Errorf("check title %q: %w", title, err)
	}
	if taken {
		s.logger.Debug("duplicate category title rejected", "title", title)
		return errors.AlreadyExistsf("category %q already exists", title)
	}
	return nil
}

func (s *CategoryService) saveUpload(up images.Upload) (string, error) {
	if err := s.uploads.Check(up); err != nil {
		return "", err
	}

	ref, err := s.images.Save(s.folder, up.Filename, up.Data)
	if err != nil {
		return "", fmt.Errorf("save category image: %w", err)
	}
	return ref, nil
}

func (s *CategoryService) deleteImage(ref string) {
	if !s.images.Delete(ref, s.folder) {
		s.logger.Warn("category image not deleted", "image_ref", ref, "folder", s.folder)
	}
}

// storeError converts store sentinels into coded domain errors.
// Anything else is an infrastructure fault and is only wrapped.
func storeError(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)

	switch {
	case errors.Is(err, store.ErrNotFound):
		return errors.NotFound(what + " not found")
	case errors.Is(err, store.ErrAlreadyExists):
		return errors.Wrap(err, errors.CodeAlreadyExists, what+": already exists")
	case errors.Is(err, store.ErrConflict):
		return errors.Wrap(err, errors.CodeConflict, what+": changed by a concurrent update, retry")
	case errors.Is(err, store.ErrIDSpaceExhausted):
		return errors.Wrap(err, errors.CodeInternal, what+": no category ids left")
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func copyRef(id *uint16) *uint16 {
	if id == nil {
		return nil
	}
	return domain.CategoryRef(*id)
}

// parentAttr renders an optional parent for log attributes.
func parentAttr(id *uint16) any {
	if id == nil {
		return "root"
	}
	return *id
}
