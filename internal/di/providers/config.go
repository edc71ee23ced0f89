// Package providers contains dependency injection providers for the catalog tools.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("Starting catalog",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"store", cfg.Store.Driver,
		"data_path", cfg.Store.DataPath,
	)

	return log, nil
}
