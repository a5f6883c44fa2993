// migrator applies session store migrations.
//
//	go run ./cmd/migrator --storage-path=./storage/portal.db
//	go run ./cmd/migrator --database-url=postgres://portal@localhost/portal --down
//
// Without --migrations-path the migrations embedded in the store package are used.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"portal/internal/storage"
	"portal/internal/storage/migrator"
	"portal/internal/storage/postgres"
	"portal/internal/storage/sqlite"
)

func main() {
	var storagePath, migrationsPath, migrationsTable, databaseURL string
	var down bool

	flag.StringVar(&storagePath, "storage-path", "", "path to the sqlite database")
	flag.StringVar(&databaseURL, "database-url", "", "postgres connection url, used instead of --storage-path")
	flag.StringVar(&migrationsPath, "migrations-path", "", "directory with migrations, defaults to the embedded set")
	flag.StringVar(&migrationsTable, "migrations-table", storage.DefaultMigrationsTable, "name of migrations table")
	flag.BoolVar(&down, "down", false, "roll all migrations back")
	flag.Parse()

	var (
		url      string
		embedded fs.FS
	)

	switch {
	case databaseURL != "":
		url = migrator.PostgresURL(databaseURL, migrationsTable)
		embedded = postgres.Migrations
	case storagePath != "":
		url = migrator.SQLiteURL(storagePath, migrationsTable)
		embedded = sqlite.Migrations
	default:
		fmt.Fprintln(os.Stderr, "either --storage-path or --database-url is required")
		os.Exit(2)
	}

	direction := migrator.Up
	if down {
		direction = migrator.Down
	}

	var err error
	if migrationsPath != "" {
		err = migrator.RunPath(migrationsPath, url, direction)
	} else {
		err = migrator.RunFS(embedded, "migrations", url, direction)
	}

	if err != nil {
		if errors.Is(err, migrator.ErrNoChange) {
			fmt.Println("no migrations to apply")
			return
		}
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	fmt.Println("migrations applied successfully")
}
