package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"

	"wapool/internal/constants"
	"wapool/internal/migrations"
	"wapool/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// Database is the SQLite-backed store for apps, numbers, stats and the audit log.
type Database struct {
	db             *sql.DB
	encryptor      *encryptor
	auditRetention int
	logger         *logrus.Logger
}

// New opens (creating if needed) the database at dbPath and applies migrations.
func New(ctx context.Context, dbPath string, auditRetention int, logger *logrus.Logger) (*Database, error) {
	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}
	if auditRetention <= 0 {
		auditRetention = constants.DefaultAuditRetention
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	closeWith := func(cause error) (*Database, error) {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (close error: %v)", cause, closeErr)
		}
		return nil, cause
	}

	if err := db.PingContext(ctx); err != nil {
		return closeWith(fmt.Errorf("failed to ping database: %w", err))
	}

	var migrationLogger migrations.Logger
	if logger != nil {
		migrationLogger = logger
	}
	if err := migrations.Up(ctx, db, migrationLogger); err != nil {
		return closeWith(err)
	}

	enc, err := newEncryptor()
	if err != nil {
		return closeWith(fmt.Errorf("failed to initialize encryptor: %w", err))
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Database{db: db, encryptor: enc, auditRetention: auditRetention, logger: logger}, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", "5000")
	params.Set("_txlock", "immediate")
	params.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + params.Encode()
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// EncryptionEnabled reports whether tokens are sealed at rest.
func (d *Database) EncryptionEnabled() bool {
	return d.encryptor.enabled()
}

func (d *Database) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return withRetryNoReturn(ctx, func() error {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("%w (rollback error: %v)", err, rbErr)
			}
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}
