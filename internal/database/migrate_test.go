package database

import (
	"path/filepath"
	"testing"
)

func TestMigrations_UpDownVersion(t *testing.T) {
	db, err := NewDB(Config{SQLitePath: filepath.Join(t.TempDir(), "migrate.db")})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("Failed to read version: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("Expected fresh database at version 0, got %d (dirty=%v)", version, dirty)
	}

	if err := db.MigrateUp(); err != nil {
		t.Fatalf("Failed to migrate up: %v", err)
	}
	if err := db.MigrateUp(); err != nil {
		t.Fatalf("Second migrate up should be a no-op, got: %v", err)
	}

	version, _, err = db.MigrateVersion()
	if err != nil {
		t.Fatalf("Failed to read version: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected version 2, got %d", version)
	}

	if err := db.MigrateDown(); err != nil {
		t.Fatalf("Failed to migrate down: %v", err)
	}
	version, _, _ = db.MigrateVersion()
	if version != 1 {
		t.Errorf("Expected version 1 after rollback, got %d", version)
	}

	var count int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'laps'`).Scan(&count); err != nil {
		t.Fatalf("Failed to inspect schema: %v", err)
	}
	if count != 0 {
		t.Error("Expected laps table to be dropped by rollback")
	}
}

func TestNewDB_RequiresPath(t *testing.T) {
	if _, err := NewDB(Config{}); err == nil {
		t.Error("Expected error for empty sqlite path")
	}
}
