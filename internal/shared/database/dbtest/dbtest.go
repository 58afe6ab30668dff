// Package dbtest opens a migrated Postgres database for repository tests.
// Tests are skipped unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"corridor-server/internal/shared/config"
	"corridor-server/internal/shared/database"
	"corridor-server/internal/shared/utils"
)

var tables = []string{
	"news_queue", "guild_settings", "beacons",
	"endgame_evacuations", "endgame_config",
	"quest_completions", "quest_progress", "quest_objectives", "quests",
	"job_tracking", "job_assignees", "jobs",
	"group_votes", "vote_sessions", "travel_sessions",
	"item_sales", "active_stat_modifiers", "character_equipment",
	"location_reputation", "inventory", "ships", "characters", "groups",
	"world_flags", "repeaters", "dynamic_npcs", "static_npcs", "shop_items",
	"location_ownership", "corridors", "locations", "factions",
}

// Open returns a clean database. Every table is truncated before the test.
func Open(t *testing.T) *database.DB {
	t.Helper()

	dsn := utils.GetEnv("TEST_DATABASE_URL", "")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Open(dsn, config.DatabaseConfig{MaxOpenConns: 5, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if err := db.RunMigrations(ctx, migrationsDir()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "TRUNCATE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
	return db
}

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations")
}

// MustExec runs a fixture statement.
func MustExec(t *testing.T, db *database.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
