package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/media/images"
	"github.com/shelfkeeper/library-server/internal/service"
)

// ProvideCategoryService provides the category service.
func ProvideCategoryService(i do.Injector) (*service.CategoryService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	storage := do.MustInvoke[*images.Storage](i)
	log := do.MustInvoke[*logger.Logger](i)

	rules := images.UploadRules{
		MaxSize:           cfg.Images.MaxFileSize,
		AllowedExtensions: cfg.Images.AllowedExtensions,
	}

	return service.NewCategoryService(
		storeHandle,
		storage,
		cfg.Images.CategoryFolder,
		log.Component("category"),
		service.WithUploadRules(rules),
	), nil
}

// ProvideBookService provides the book service.
func ProvideBookService(i do.Injector) (*service.BookService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewBookService(storeHandle, log.Component("book")), nil
}
