package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	persistence "github.com/goliatone/go-persistence-bun"
	users "github.com/goliatone/go-users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/schema"
)

// openPersistence connects through the persistence client and applies the
// SQL migrations. The caller owns the returned *sql.DB.
func openPersistence(ctx context.Context, cfg DatabaseConfig, logger users.Logger) (*bun.DB, *sql.DB, error) {
	driver, dialect, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}

	sqldb, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	persistence.RegisterModel((*users.User)(nil), (*users.Preference)(nil))

	client, err := persistence.New(cfg, sqldb, dialect)
	if err != nil {
		_ = sqldb.Close()
		return nil, nil, fmt.Errorf("persistence client: %w", err)
	}

	client.SetLogger(func(format string, a ...any) {
		logger.Debug(fmt.Sprintf(format, a...))
	})

	migrationsFS, err := fs.Sub(users.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		_ = sqldb.Close()
		return nil, nil, err
	}
	client.RegisterSQLMigrations(migrationsFS)

	if err := client.Migrate(ctx); err != nil {
		_ = sqldb.Close()
		return nil, nil, fmt.Errorf("migrations failed: %w", err)
	}

	if report := client.Report(); report != nil && !report.IsZero() {
		logger.Info("migrations applied", "report", report.String())
	}

	db, ok := client.DB().(*bun.DB)
	if !ok {
		_ = sqldb.Close()
		return nil, nil, fmt.Errorf("unexpected persistence handle %T", client.DB())
	}

	return db, sqldb, nil
}

func dialectFor(driver string) (string, schema.Dialect, error) {
	switch driver {
	case "sqlite":
		return sqliteshim.ShimName, sqlitedialect.New(), nil
	case "postgres":
		return "pgx", pgdialect.New(), nil
	default:
		return "", nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
