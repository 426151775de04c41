package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/Gidwell/jiro/internal/apperr"
	"github.com/Gidwell/jiro/schemas"
)

// MigrateUp applies every pending migration for dialect.
func MigrateUp(db *sqlx.DB, dialect Dialect) error {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return err
	}
	// Closing m would close db as well; the caller owns it.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up > %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("m.Version > %w", err)
	}
	slog.Default().Info("database migrated",
		"dialect", dialect,
		"version", version,
		"dirty", dirty)
	return nil
}

// MigrateDown reverts every applied migration.
func MigrateDown(db *sqlx.DB, dialect Dialect) error {
	m, err := newMigrate(db, dialect)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Down > %w", err)
	}
	return nil
}

func newMigrate(db *sqlx.DB, dialect Dialect) (*migrate.Migrate, error) {
	source, err := iofs.New(schemas.Migrations, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("iofs.New > %w", err)
	}

	var driver migratedb.Driver
	switch dialect {
	case DialectSQLite:
		driver, err = migratesqlite.WithInstance(db.DB, &migratesqlite.Config{})
	case DialectMySQL:
		driver, err = migratemysql.WithInstance(db.DB, &migratemysql.Config{})
	case DialectPostgres:
		driver, err = migratepgx.WithInstance(db.DB, &migratepgx.Config{})
	default:
		return nil, &apperr.DialectError{Dialect: string(dialect), Reason: "unsupported backend"}
	}
	if err != nil {
		return nil, fmt.Errorf("create %s migration driver: %w", dialect, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("migrate.NewWithInstance > %w", err)
	}
	return m, nil
}
