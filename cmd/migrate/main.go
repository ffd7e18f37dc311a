package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"wapool/internal/config"
	"wapool/internal/constants"
	"wapool/internal/migrations"
	"wapool/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const usage = `Usage: migrate [-db path] <up|down|status|version>

Applies or inspects the wapool schema. The database path defaults to
DB_PATH from the environment (or .env) and then to %s.
`

func main() {
	dbPath := flag.String("db", "", "Path to the database file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), usage, constants.DefaultDatabasePath)
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Warnf("Ignoring .env: %v", err)
	}
	path := resolvePath(*dbPath)

	if err := run(context.Background(), flag.Arg(0), path, logger); err != nil {
		logger.Fatalf("Migration %s failed: %v", flag.Arg(0), err)
	}
}

func resolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("DB_PATH"); env != "" {
		return env
	}
	return constants.DefaultDatabasePath
}

func run(ctx context.Context, command, path string, logger *logrus.Logger) error {
	if err := security.ValidateFilePath(path); err != nil {
		return fmt.Errorf("invalid database path: %w", err)
	}
	if command != "up" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", path)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	switch command {
	case "up":
		return migrations.Up(ctx, db, logger)
	case "down":
		return migrations.Down(ctx, db, logger)
	case "status":
		return migrations.Status(ctx, db, logger)
	case "version":
		version, err := migrations.Version(ctx, db)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
