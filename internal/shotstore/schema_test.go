package shotstore

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) (string, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "shotstore-test-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	path := filepath.Join(dir, "shots.db")
	return path, func() { os.RemoveAll(dir) }
}

func TestOpenCreatesSchemaAndMigratesToCurrent(t *testing.T) {
	path, cleanup := openTestDB(t)
	defer cleanup()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "shots") {
		t.Error("expected shots table to exist")
	}
	if !tableExists(db, "shot_samples") {
		t.Error("expected shot_samples table to exist")
	}
	if !tableExists(db, "shot_phases") {
		t.Error("expected shot_phases table to exist")
	}
	if !columnExists(db, "shot_phases", "transition_reason") {
		t.Error("expected transition_reason column after migration to v4+")
	}
	if !columnExists(db, "shots", "temperature_override") {
		t.Error("expected temperature_override column after migration to v3+")
	}

	v := getSchemaVersion(db)
	if v != CurrentSchemaVersion {
		t.Errorf("schema version = %d, want %d", v, CurrentSchemaVersion)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path, cleanup := openTestDB(t)
	defer cleanup()

	db1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	if v := getSchemaVersion(db2); v != CurrentSchemaVersion {
		t.Errorf("schema version after reopen = %d, want %d", v, CurrentSchemaVersion)
	}
}

func TestSetSchemaVersionReplacesSingleRow(t *testing.T) {
	path, cleanup := openTestDB(t)
	defer cleanup()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if err := setSchemaVersion(db, 42); err != nil {
		t.Fatalf("setSchemaVersion: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		t.Fatalf("count schema_version rows: %v", err)
	}
	if count != 1 {
		t.Errorf("schema_version row count = %d, want 1", count)
	}
	if v := getSchemaVersion(db); v != 42 {
		t.Errorf("version = %d, want 42", v)
	}
}
