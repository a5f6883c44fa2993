package app

import (
	"context"
	"fmt"

	"portal/config"
	"portal/internal/services/session"
	"portal/internal/storage/postgres"
	"portal/internal/storage/sqlite"
)

type sessionStore interface {
	session.Store
	Migrate(migrationsTable string) error
	Close() error
}

// StorageApp owns the session store connection for the life of the process.
type StorageApp struct {
	driver  string
	storage sessionStore
}

// NewStorageApp opens the configured driver and brings its schema up to date.
func NewStorageApp(ctx context.Context, cfg config.StorageConfig) (*StorageApp, error) {
	const op = "app.NewStorageApp"

	var (
		st  sessionStore
		err error
	)

	switch cfg.Driver {
	case config.DriverSQLite:
		st, err = sqlite.New(cfg.Path)
	case config.DriverPostgres:
		st, err = postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("%s: unknown storage driver %q", op, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := st.Migrate(cfg.MigrationsTable); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &StorageApp{driver: cfg.Driver, storage: st}, nil
}

func (s *StorageApp) Stop() error {
	return s.storage.Close()
}

func (s *StorageApp) Storage() session.Store {
	return s.storage
}

func (s *StorageApp) Driver() string {
	return s.driver
}
