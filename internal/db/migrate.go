package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"erp-server/migrations"
)

func openMigrator(dsn string) (*sql.DB, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open migration connection: %w", err)
	}
	return sqlDB, nil
}

// MigrateUp applies every pending migration.
func MigrateUp(ctx context.Context, dsn string) error {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, dsn string) error {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if err := goose.DownContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrateStatus prints the applied state of each migration through goose's logger.
func MigrateStatus(ctx context.Context, dsn string) error {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if err := goose.StatusContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	return nil
}

// MigrateReset rolls every migration back. Used by integration tests.
func MigrateReset(ctx context.Context, dsn string) error {
	sqlDB, err := openMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	if err := goose.ResetContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("migrate reset: %w", err)
	}
	return nil
}
