package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embedded embed.FS

const dir = "sql"

// goose keeps its dialect, filesystem and logger in package globals.
var mu sync.Mutex

// Logger is satisfied by *logrus.Logger.
type Logger interface {
	Fatalf(format string, v ...interface{})
	Printf(format string, v ...interface{})
}

func setup(logger Logger) error {
	goose.SetBaseFS(embedded)
	if logger != nil {
		goose.SetLogger(logger)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	return nil
}

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, logger Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, db *sql.DB, logger Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(logger); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// Status prints the state of every migration through the logger.
func Status(ctx context.Context, db *sql.DB, logger Logger) error {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(logger); err != nil {
		return err
	}
	return goose.StatusContext(ctx, db, dir)
}

// Version returns the current schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	mu.Lock()
	defer mu.Unlock()

	if err := setup(nil); err != nil {
		return 0, err
	}
	return goose.GetDBVersionContext(ctx, db)
}
