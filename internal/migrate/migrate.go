// Package migrate applies the embedded development backend schema.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/lytoranea/website/migrations"
)

// Commands accepted by Run.
var Commands = []string{"up", "up-by-one", "down", "redo", "reset", "status", "version"}

// Up runs all pending migrations.
func Up(ctx context.Context, dsn string) error { return Run(ctx, dsn, "up") }

// Run executes a goose command against dsn using the embedded migrations.
func Run(ctx context.Context, dsn, command string, args ...string) error {
	if !slices.Contains(Commands, command) {
		return fmt.Errorf("migrate: unknown command %q (want one of %s)", command, strings.Join(Commands, ", "))
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.RunContext(ctx, command, db, ".", args...)
}

// Files lists the embedded migration files in apply order.
func Files() ([]string, error) {
	return fs.Glob(migrations.FS, "*.sql")
}
