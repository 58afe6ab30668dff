package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
)

// migrationLock serializes migrations when several server processes start
// against the same database.
const migrationLock int64 = 0x636f7272

type migration struct {
	version  string
	sql      string
	checksum string
}

// RunMigrations applies the *.sql files under dir that are not yet recorded
// in schema_migrations, in lexical order, one transaction each.
func (db *DB) RunMigrations(ctx context.Context, dir string) error {
	return db.Migrate(ctx, os.DirFS(dir))
}

func (db *DB) Migrate(ctx context.Context, fsys fs.FS) error {
	logger := slog.With("component", "migrations")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			checksum   TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	migrations, err := loadMigrations(fsys)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied := 0
	for _, m := range migrations {
		ran, err := db.apply(ctx, m, logger)
		if err != nil {
			return fmt.Errorf("failed to run migration %s: %w", m.version, err)
		}
		if ran {
			applied++
		}
	}

	logger.Info("Database schema up to date", "migrations", len(migrations), "applied", applied)
	return nil
}

func loadMigrations(fsys fs.FS) ([]migration, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".sql" {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(b)
		migrations = append(migrations, migration{
			version:  path.Base(name),
			sql:      string(b),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	return migrations, nil
}

func (db *DB) apply(ctx context.Context, m migration, logger *slog.Logger) (bool, error) {
	logger = logger.With("migration", m.version)

	ran := false
	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLock); err != nil {
			return fmt.Errorf("failed to take migration lock: %w", err)
		}

		var checksum string
		err := tx.GetContext(ctx, &checksum, "SELECT checksum FROM schema_migrations WHERE version = $1", m.version)
		switch {
		case err == nil:
			if checksum != m.checksum {
				logger.Warn("Applied migration was edited afterwards", "recorded", checksum, "current", m.checksum)
			}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check migration status: %w", err)
		}

		logger.Info("Running migration", "size_bytes", len(m.sql))
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)", m.version, m.checksum); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		ran = true
		return nil
	})
	return ran, err
}
