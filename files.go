package account

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// goose keeps the base FS and dialect in package state
var migrateMu sync.Mutex

// RunMigrations applies the embedded migrations for driver, which is
// either "sqlite" or "postgres".
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	var dialect string
	switch driver {
	case "sqlite", "sqlite3":
		driver, dialect = "sqlite", "sqlite3"
	case "postgres", "pgx":
		driver, dialect = "postgres", "pgx"
	default:
		return fmt.Errorf("unsupported migration driver %q", driver)
	}

	dir, err := fs.Sub(migrationsFS, "data/sql/migrations/"+driver)
	if err != nil {
		return err
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(dir)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
