// Package migrator applies the session store schema with golang-migrate.
package migrator

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned by Run when the schema is already at the target version.
var ErrNoChange = migrate.ErrNoChange

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// RunFS applies the migrations found in dir of fsys.
func RunFS(fsys fs.FS, dir, databaseURL string, direction Direction) error {
	const op = "migrator.RunFS"

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("%s: source: %w", op, err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _, _ = m.Close() }()

	return apply(op, m, direction)
}

// RunPath applies the migrations stored in a directory on disk.
func RunPath(migrationsPath, databaseURL string, direction Direction) error {
	const op = "migrator.RunPath"

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _, _ = m.Close() }()

	return apply(op, m, direction)
}

func apply(op string, m *migrate.Migrate, direction Direction) error {
	var err error
	switch direction {
	case Up:
		err = m.Up()
	case Down:
		err = m.Down()
	default:
		return fmt.Errorf("%s: direction must be up or down, got %q", op, direction)
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return ErrNoChange
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// SQLiteURL builds a golang-migrate URL for the SQLite database at path.
func SQLiteURL(path, migrationsTable string) string {
	return withMigrationsTable("sqlite3://"+path, migrationsTable)
}

// PostgresURL converts a postgres:// DSN into a URL for the pgx v5 migrate driver.
func PostgresURL(dsn, migrationsTable string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, scheme) {
			dsn = "pgx5://" + strings.TrimPrefix(dsn, scheme)
			break
		}
	}
	return withMigrationsTable(dsn, migrationsTable)
}

func withMigrationsTable(u, table string) string {
	if table == "" {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "x-migrations-table=" + url.QueryEscape(table)
}
