package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/media/images"
)

// ProvideImageStorage provides the storage that holds category images.
func ProvideImageStorage(i do.Injector) (*images.Storage, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	storage, err := images.NewStorage(cfg.Images.BasePath)
	if err != nil {
		return nil, fmt.Errorf("image storage: %w", err)
	}

	log.Debug("Image storage initialized", "path", cfg.Images.BasePath)

	return storage, nil
}
