// Package migrate drives the goose SQL migrations for the Postgres schema.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

// DefaultDir is relative to the repository root.
const DefaultDir = "pkg/migrate/migrations"

// Command is a goose command that needs a live connection.
type Command string

const (
	CommandUp     Command = "up"
	CommandDown   Command = "down"
	CommandStatus Command = "status"
)

// ParseCommand accepts the connection-backed goose commands.
func ParseCommand(raw string) (Command, error) {
	switch cmd := Command(strings.ToLower(strings.TrimSpace(raw))); cmd {
	case CommandUp, CommandDown, CommandStatus:
		return cmd, nil
	default:
		return "", fmt.Errorf("unsupported migration command %q", raw)
	}
}

// ParseVersion reads a YYYYMMDDHHMMSS migration version.
func ParseVersion(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 14 {
		return 0, fmt.Errorf("version %q must be 14 digits (YYYYMMDDHHMMSS)", raw)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("version %q must be 14 digits (YYYYMMDDHHMMSS)", raw)
	}
	return v, nil
}

func prepare(db *sql.DB, dir string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	if dir == "" {
		return fmt.Errorf("migrations dir is required")
	}
	return goose.SetDialect("postgres")
}

// Run executes cmd against db. Goose prints status output itself.
func Run(ctx context.Context, db *sql.DB, dir string, cmd Command) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, string(cmd), db, dir); err != nil {
		return fmt.Errorf("goose %s: %w", cmd, err)
	}
	return nil
}

// ToVersion moves the schema up or down until it sits at target.
func ToVersion(ctx context.Context, db *sql.DB, dir string, target int64) error {
	if err := prepare(db, dir); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	switch {
	case current < target:
		err = goose.UpToContext(ctx, db, dir, target)
	case current > target:
		err = goose.DownToContext(ctx, db, dir, target)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate from %d to %d: %w", current, target, err)
	}
	return nil
}
