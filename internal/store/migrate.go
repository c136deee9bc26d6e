package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrate applies all pending schema migrations for the handle's dialect.
// Safe to call on every startup.
func Migrate(db *DB) error {
	var (
		driver database.Driver
		dir    string
		name   string
		err    error
	)

	switch db.dialect {
	case DialectPostgres:
		driver, err = pgxmigrate.WithInstance(db.SQL, &pgxmigrate.Config{})
		dir, name = "migrations/postgres", "pgx5"
	default:
		driver, err = sqlitemigrate.WithInstance(db.SQL, &sqlitemigrate.Config{})
		dir, name = "migrations/sqlite", "sqlite"
	}
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, name, driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
