// Package di provides dependency injection configuration for the catalog tools.
package di

import (
	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/di/providers"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/media/images"
	"github.com/shelfkeeper/library-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
// The configuration is parsed by the caller because commands read their own
// positional arguments from the same command line.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Storage layer
	do.Provide(injector, providers.ProvideImageStorage)

	// Business services
	do.Provide(injector, providers.ProvideCategoryService)
	do.Provide(injector, providers.ProvideBookService)

	return injector
}

// Bootstrap initializes all services.
// Providers are lazy, so this is where a bad data path or a failed migration surfaces.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*images.Storage](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.CategoryService](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*service.BookService](injector); err != nil {
		return err
	}
	return nil
}
