package providers

import (
	"fmt"
	"os"

	"github.com/samber/do/v2"

	"github.com/shelfkeeper/library-server/internal/config"
	"github.com/shelfkeeper/library-server/internal/logger"
	"github.com/shelfkeeper/library-server/internal/store"
	"github.com/shelfkeeper/library-server/internal/store/sqlite"
)

// closingBackend is a store backend that owns resources.
type closingBackend interface {
	store.Backend
	Close() error
}

// StoreHandle wraps the configured store backend with shutdown capability.
type StoreHandle struct {
	closingBackend
	Driver string
}

// Shutdown implements do.ShutdownerWithError.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the store selected by the configuration.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if err := os.MkdirAll(cfg.Store.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	dbPath := cfg.DatabasePath()
	storeLog := log.Component("store")

	var (
		backend closingBackend
		err     error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		backend, err = sqlite.Open(dbPath, storeLog)
	default:
		backend, err = store.Open(dbPath, storeLog)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("Database initialized", "driver", cfg.Store.Driver, "path", dbPath)

	return &StoreHandle{closingBackend: backend, Driver: cfg.Store.Driver}, nil
}
