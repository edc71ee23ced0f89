package main

import (
	"cmp"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/shelfkeeper/library-server/internal/domain"
	"github.com/shelfkeeper/library-server/internal/errors"
	"github.com/shelfkeeper/library-server/internal/media/images"
	"github.com/shelfkeeper/library-server/internal/service"
)

type app struct {
	categories *service.CategoryService
	books      *service.BookService
	images     *images.Storage
	folder     string
	log        *slog.Logger
	out        io.Writer
}

type command struct {
	usage string
	run   func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"list":        {"list every category", (*app).list},
	"show":        {"<id>  show one category", (*app).show},
	"search":      {"<prefix>  categories whose title starts with prefix", (*app).search},
	"children":    {"<id>  direct children of a category", (*app).children},
	"descendants": {"<id>  ids of every category below a category", (*app).descendants},
	"parents":     {"<id>  categories that may become the parent of a category", (*app).parents},
	"create":      {"-title T -image REF|-image-file PATH [-parent ID]", (*app).create},
	"update":      {"-id ID [-title T] [-image REF|-image-file PATH] [-parent ID|-root]", (*app).update},
	"image":       {"<id>  location and checksum of a category image", (*app).image},
	"delete":      {"<id>  delete a category without children or books", (*app).remove},
	"seed":        {"create the default categories in an empty store", (*app).seed},
	"books":       {"<category id>  books filed under a category", (*app).listBooks},
	"book-add":    {"-title T -category ID", (*app).addBook},
	"book-remove": {"<id>  remove a book", (*app).removeBook},
}

func (a *app) list(ctx context.Context, _ []string) error {
	cats, err := a.categories.List(ctx)
	if err != nil {
		return err
	}
	a.printCategories(cats)
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	c, err := a.categories.Get(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "id:       %d\n", c.ID)
	fmt.Fprintf(a.out, "title:    %s\n", c.Title)
	fmt.Fprintf(a.out, "image:    %s\n", c.ImageRef)
	fmt.Fprintf(a.out, "parent:   %s\n", parentLabel(c.ParentID))
	fmt.Fprintf(a.out, "created:  %s\n", c.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(a.out, "updated:  %s\n", c.UpdatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func (a *app) search(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.Validation("search takes exactly one prefix")
	}
	cats, err := a.categories.Search(ctx, args[0])
	if err != nil {
		return err
	}
	a.printCategories(cats)
	return nil
}

func (a *app) children(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	cats, err := a.categories.Children(ctx, id)
	if err != nil {
		return err
	}
	a.printCategories(cats)
	return nil
}

func (a *app) descendants(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	ids, err := a.categories.Descendants(ctx, id)
	if err != nil {
		return err
	}
	for _, d := range ids {
		fmt.Fprintln(a.out, d)
	}
	return nil
}

func (a *app) parents(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	cats, err := a.categories.ParentCandidates(ctx, id)
	if err != nil {
		return err
	}
	a.printCategories(cats)
	return nil
}

func (a *app) image(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	c, err := a.categories.Get(ctx, id)
	if err != nil {
		return err
	}
	if !a.images.Exists(c.ImageRef, a.folder) {
		return errors.NotFoundf("image %q of category %d not found", c.ImageRef, c.ID)
	}

	sum, err := a.images.Hash(c.ImageRef, a.folder)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "path:    %s\n", a.images.Path(c.ImageRef, a.folder))
	fmt.Fprintf(a.out, "sha256:  %s\n", sum)
	return nil
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	title := fs.String("title", "", "Category title")
	image := fs.String("image", "", "Existing image reference")
	imageFile := fs.String("image-file", "", "Image file to upload")
	parent := fs.String("parent", "", "Parent category id")
	if err := fs.Parse(args); err != nil {
		return errors.Validation(err.Error())
	}
	if *image != "" && *imageFile != "" {
		return errors.Validation("use either -image or -image-file")
	}

	in := service.CategoryInput{Title: *title, ImageRef: *image}
	if *parent != "" {
		id, err := parseCategoryID(*parent)
		if err != nil {
			return err
		}
		in.ParentID = &id
	}

	var (
		c   *domain.Category
		err error
	)
	if *imageFile != "" {
		up, readErr := readUpload(*imageFile)
		if readErr != nil {
			return readErr
		}
		c, err = a.categories.CreateWithImage(ctx, in, up)
	} else {
		c, err = a.categories.Create(ctx, in)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "created category %d %q\n", c.ID, c.Title)
	return nil
}

// update starts from the stored category so that flags left out keep their current values.
func (a *app) update(ctx context.Context, args []string) error {
	fs := newFlagSet("update")
	idFlag := fs.String("id", "", "Category id")
	title := fs.String("title", "", "New title")
	image := fs.String("image", "", "New image reference")
	imageFile := fs.String("image-file", "", "Image file to upload")
	parent := fs.String("parent", "", "New parent category id")
	root := fs.Bool("root", false, "Make the category a root")
	if err := fs.Parse(args); err != nil {
		return errors.Validation(err.Error())
	}
	if *idFlag == "" {
		return errors.Validation("-id is required")
	}
	if *parent != "" && *root {
		return errors.Validation("use either -parent or -root")
	}
	if *image != "" && *imageFile != "" {
		return errors.Validation("use either -image or -image-file")
	}

	id, err := parseCategoryID(*idFlag)
	if err != nil {
		return err
	}
	current, err := a.categories.Get(ctx, id)
	if err != nil {
		return err
	}

	in := service.CategoryInput{
		ID:       id,
		Title:    cmp.Or(*title, current.Title),
		ImageRef: cmp.Or(*image, current.ImageRef),
		ParentID: current.ParentID,
	}
	switch {
	case *root:
		in.ParentID = nil
	case *parent != "":
		pid, err := parseCategoryID(*parent)
		if err != nil {
			return err
		}
		in.ParentID = &pid
	}

	var up *images.Upload
	if *imageFile != "" {
		u, err := readUpload(*imageFile)
		if err != nil {
			return err
		}
		up = &u
	}

	c, err := a.categories.UpdateWithImage(ctx, in, up)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "updated category %d %q\n", c.ID, c.Title)
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	if err := a.categories.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted category %d\n", id)
	return nil
}

func (a *app) seed(ctx context.Context, _ []string) error {
	n, err := a.categories.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(a.out, "store already has categories, nothing seeded")
		return nil
	}
	fmt.Fprintf(a.out, "seeded %d categories\n", n)
	return nil
}

func (a *app) listBooks(ctx context.Context, args []string) error {
	id, err := categoryArg(args)
	if err != nil {
		return err
	}
	books, err := a.books.ListByCategory(ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE")
	for _, b := range books {
		fmt.Fprintf(tw, "%d\t%s\n", b.ID, b.Title)
	}
	return tw.Flush()
}

func (a *app) addBook(ctx context.Context, args []string) error {
	fs := newFlagSet("book-add")
	title := fs.String("title", "", "Book title")
	categoryFlag := fs.String("category", "", "Category id")
	if err := fs.Parse(args); err != nil {
		return errors.Validation(err.Error())
	}

	in := service.BookInput{Title: *title}
	if *categoryFlag != "" {
		id, err := parseCategoryID(*categoryFlag)
		if err != nil {
			return err
		}
		in.CategoryID = id
	}

	b, err := a.books.Add(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "added book %d %q to category %d\n", b.ID, b.Title, b.CategoryID)
	return nil
}

func (a *app) removeBook(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.Validation("expected exactly one book id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return errors.Validationf("invalid book id %q", args[0])
	}
	if err := a.books.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed book %d\n", id)
	return nil
}

func (a *app) printCategories(cats []*domain.Category) {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPARENT\tIMAGE")
	for _, c := range cats {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", c.ID, c.Title, parentLabel(c.ParentID), c.ImageRef)
	}
	if err := tw.Flush(); err != nil {
		a.log.Warn("failed to write output", "error", err)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func readUpload(path string) (images.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return images.Upload{}, fmt.Errorf("read image file: %w", err)
	}
	return images.Upload{Filename: filepath.Base(path), Data: data}, nil
}

func categoryArg(args []string) (uint16, error) {
	if len(args) != 1 {
		return 0, errors.Validation("expected exactly one category id")
	}
	return parseCategoryID(args[0])
}

func parseCategoryID(s string) (uint16, error) {
	id, err := strconv.ParseUint(s, 10, 16)
	if err != nil || id == 0 {
		return 0, errors.Validationf("invalid category id %q", s)
	}
	return uint16(id), nil
}

func parentLabel(id *uint16) string {
	if id == nil {
		return "-"
	}
	return strconv.Itoa(int(*id))
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
