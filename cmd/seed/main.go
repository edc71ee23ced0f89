// Package main seeds a catalog store with the default category tree and,
// optionally, a handful of sample books.
//
// Usage:
//
//	go run ./cmd/seed -data-path ~/ShelfKeeper/data
//	go run ./cmd/seed -store sqlite books   # also file sample books
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/di"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/service"
)

func main() {
	cfg, rest, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	withBooks := false
	for _, arg := range rest {
		if arg != "books" {
			fmt.Fprintf(os.Stderr, "unexpected argument %q (only \"books\" is accepted)\n", arg)
			os.Exit(1)
		}
		withBooks = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = seed(ctx, cfg, withBooks)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

func seed(ctx context.Context, cfg *config.Config, withBooks bool) error {
	injector := di.NewContainer(cfg)
	defer injector.Shutdown()

	if err := di.Bootstrap(injector); err != nil {
		return err
	}

	log := do.MustInvoke[*logger.Logger](injector)
	categories := do.MustInvoke[*service.CategoryService](injector)

	n, err := categories.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	log.Info("Seeded categories", "count", n, "store", cfg.Store.Driver, "path", cfg.DatabasePath())

	if !withBooks {
		return nil
	}

	books := do.MustInvoke[*service.BookService](injector)
	added, err := books.SeedSamples(ctx)
	if err != nil {
		return err
	}
	log.Info("Seeded sample books", "count", added)
	return nil
}
