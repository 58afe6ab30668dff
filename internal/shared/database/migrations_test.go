package database

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsSortedAndFiltered(t *testing.T) {
	fsys := fstest.MapFS{
		"003_jobs.sql":       {Data: []byte("SELECT 3;")},
		"001_world.sql":      {Data: []byte("SELECT 1;")},
		"README.md":          {Data: []byte("docs")},
		"002_characters.sql": {Data: []byte("SELECT 2;")},
	}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}

	want := []string{"001_world.sql", "002_characters.sql", "003_jobs.sql"}
	if len(got) != len(want) {
		t.Fatalf("migrations=%v want=%v", got, want)
	}
	for i := range want {
		if got[i].version != want[i] {
			t.Fatalf("migrations[%d]=%q want=%q", i, got[i].version, want[i])
		}
	}
	if got[0].sql != "SELECT 1;" {
		t.Fatalf("sql=%q", got[0].sql)
	}
}

func TestMigrationChecksumTracksContent(t *testing.T) {
	fsys := fstest.MapFS{"001_world.sql": {Data: []byte("CREATE TABLE locations (id INT);")}}

	got, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations: %v", err)
	}
	sum := sha256.Sum256([]byte("CREATE TABLE locations (id INT);"))
	if got[0].checksum != hex.EncodeToString(sum[:]) {
		t.Fatalf("checksum=%s", got[0].checksum)
	}
}
