package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"

	"github.com/pressly/goose/v3"
)

const (
	DefaultDir = "pkg/migrate/migrations"
	dialect    = "postgres"
)

// Commands accepted by Run. Anything that applies migrations validates the
// directory first so a malformed file fails before the schema is touched.
var commands = map[string]bool{
	"up":     true,
	"down":   true,
	"redo":   true,
	"status": true,
}

func Run(ctx context.Context, db *sql.DB, dir, command string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if !commands[command] {
		return fmt.Errorf("unsupported goose command %q", command)
	}
	if command == "up" || command == "redo" {
		if err := ValidateDir(dir); err != nil {
			return err
		}
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion, which must
// name a migration file in dir.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir, targetVersion string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	if err := ValidateDir(dir); err != nil {
		return err
	}
	if err := requireKnownVersion(dir, target); err != nil {
		return err
	}

	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func requireKnownVersion(dir string, target int64) error {
	migrations, err := goose.CollectMigrations(dir, 0, math.MaxInt64)
	if err != nil {
		return fmt.Errorf("collect migrations: %w", err)
	}
	for _, m := range migrations {
		if m.Version == target {
			return nil
		}
	}
	return fmt.Errorf("no migration with version %d in %q", target, dir)
}
