package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/wekezahq/nexus/pkg/config"
)

// RunMigrations applies all pending SQL migrations from the configured path.
// A database with no pending migrations is not an error.
func RunMigrations(cfg *config.DatabaseConfig) error {
	m, err := migrate.New("file://"+cfg.MigrationsPath, cfg.MigrateURL())
	if err != nil {
		return fmt.Errorf("unable to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("unable to apply migrations: %w", err)
	}

	return nil
}
