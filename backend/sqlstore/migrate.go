package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Migrate applies the migrations found in the db/migrations directory of migrations.
func Migrate(migrations fs.FS, databaseName string, driver database.Driver) error {
	src, err := iofs.New(migrations, "db/migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, databaseName, driver)
	if err != nil {
		return fmt.Errorf("creating migration: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Open wraps db in a Store, configures the pool and, if enabled, runs runMigrations. db is closed again when
// migrating fails and the store owns it.
func Open(db *sql.DB, dialect Dialect, options *Options, ownsConnection bool, runMigrations func() error) (*Store, error) {
	options.configure(db)

	s := New(db, dialect, options.Options, ownsConnection)

	if options.ApplyMigrations {
		if err := runMigrations(); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}
