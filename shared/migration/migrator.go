package migration

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

// Migrator runs the embedded SQL migrations against a database connection
type Migrator struct {
	db         *sql.DB
	migrations embed.FS
	dir        string
}

// NewMigrator creates a new migrator over an open connection
func NewMigrator(db *sql.DB, migrations embed.FS, dir string) *Migrator {
	return &Migrator{db: db, migrations: migrations, dir: dir}
}

// Migrate runs all pending up migrations
func (m *Migrator) Migrate() error {
	migration, err := m.createMigration()
	if err != nil {
		return err
	}

	if err := migration.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the current migration version
func (m *Migrator) Version() (uint, bool, error) {
	migration, err := m.createMigration()
	if err != nil {
		return 0, false, err
	}
	return migration.Version()
}

func (m *Migrator) createMigration() (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(m.migrations, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	dbDriver, err := postgres.WithInstance(m.db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	migration, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	return migration, nil
}
