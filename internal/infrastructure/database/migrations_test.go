package database

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

// testMigrations mirrors the layout of the migrations package: files at the root.
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260118_120000_create_events.up.sql": {Data: []byte(
			"CREATE TABLE test_events (id TEXT PRIMARY KEY, kind TEXT NOT NULL);",
		)},
		"20260118_120000_create_events.down.sql": {Data: []byte(
			"DROP TABLE test_events;",
		)},
		"20260119_090000_add_detail.up.sql": {Data: []byte(
			"ALTER TABLE test_events ADD COLUMN detail TEXT;",
		)},
		"README.md": {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var count int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count == 1
}

// TestMigrate verifies migration application.
func TestMigrate(t *testing.T) {
	db := openTestDB(t, Config{WALMode: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fsys := testMigrations()
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if !tableExists(t, db, "test_events") {
		t.Fatal("table test_events not created")
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO test_events (id, kind, detail) VALUES ('1', 'connected', 'x')"); err != nil {
		t.Errorf("second migration not applied: %v", err)
	}

	applied, pending, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(applied))
	}
	if len(pending) != 0 {
		t.Errorf("expected 0 pending migrations, got %d", len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	// Running again is idempotent.
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

// TestMigrateFailureStopsAtBrokenMigration verifies per-migration atomicity.
func TestMigrateFailureStopsAtBrokenMigration(t *testing.T) {
	db := openTestDB(t, Config{WALMode: true})

	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260118_120000_good.up.sql":   {Data: []byte("CREATE TABLE good (id INTEGER);")},
		"20260118_130000_broken.up.sql": {Data: []byte("CREATE TABLE nope (;")},
	}

	err := db.Migrate(ctx, fsys)
	if err == nil || !strings.Contains(err.Error(), "20260118_130000") {
		t.Fatalf("Migrate() error = %v, want failure naming the broken version", err)
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration should stay committed")
	}

	applied, pending, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 1 and 1", len(applied), len(pending))
	}
}

// TestMigrateDown verifies migration rollback.
func TestMigrateDown(t *testing.T) {
	db := openTestDB(t, Config{WALMode: true})

	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260118_120000_create_events.up.sql":   testMigrations()["20260118_120000_create_events.up.sql"],
		"20260118_120000_create_events.down.sql": testMigrations()["20260118_120000_create_events.down.sql"],
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	if tableExists(t, db, "test_events") {
		t.Error("table test_events should have been dropped")
	}

	applied, _, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied migrations after rollback, got %d", len(applied))
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Errorf("MigrateDown() on empty history error = %v", err)
	}
}

// TestMigrateDownWithoutDownSQL verifies the error when no down file exists.
func TestMigrateDownWithoutDownSQL(t *testing.T) {
	db := openTestDB(t, Config{WALMode: true})

	ctx := context.Background()
	fsys := testMigrations()
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	err := db.MigrateDown(ctx, fsys)
	if err == nil || !strings.Contains(err.Error(), "no down SQL") {
		t.Errorf("MigrateDown() error = %v, want no down SQL", err)
	}
}

// TestMigrateNoMigrations verifies behaviour with no migrations.
func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t, Config{WALMode: true})

	ctx := context.Background()
	if err := db.Migrate(ctx, nil); err != nil {
		t.Fatalf("Migrate(nil) error = %v", err)
	}
	if err := db.Migrate(ctx, fstest.MapFS{}); err != nil {
		t.Fatalf("Migrate(empty) error = %v", err)
	}
}

// TestGetMigrationStatus verifies status reporting before anything ran.
func TestGetMigrationStatus(t *testing.T) {
	db := openTestDB(t, Config{WALMode: true})

	applied, pending, err := db.GetMigrationStatus(context.Background(), testMigrations())
	if err != nil {
		t.Fatalf("GetMigrationStatus() error = %v", err)
	}
	if len(applied) != 0 {
		t.Errorf("expected 0 applied, got %d", len(applied))
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	if pending[0].Version != "20260118_120000" || pending[1].Version != "20260119_090000" {
		t.Errorf("pending order = %s, %s", pending[0].Version, pending[1].Version)
	}
}

func TestLoadMigrations_OrphanDownFile(t *testing.T) {
	fsys := fstest.MapFS{
		"20260118_120000_orphan.down.sql": {Data: []byte("DROP TABLE x;")},
	}
	if _, err := LoadMigrations(fsys); err == nil {
		t.Error("LoadMigrations() expected error for down file without up file")
	}
}

// TestParseMigrationFilename verifies filename parsing.
func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		wantVersion string
		wantIsUp    bool
		wantOk      bool
	}{
		{
			name:        "valid up migration",
			filename:    "20260118_120000_link_events.up.sql",
			wantVersion: "20260118_120000",
			wantIsUp:    true,
			wantOk:      true,
		},
		{
			name:        "valid down migration",
			filename:    "20260118_120000_link_events.down.sql",
			wantVersion: "20260118_120000",
			wantIsUp:    false,
			wantOk:      true,
		},
		{
			name:     "not sql file",
			filename: "readme.txt",
			wantOk:   false,
		},
		{
			name:     "missing direction",
			filename: "20260118_120000_link_events.sql",
			wantOk:   false,
		},
		{
			name:     "invalid format",
			filename: "invalid.up.sql",
			wantOk:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOk {
				t.Errorf("ok = %v, want %v", ok, tt.wantOk)
			}
			if ok {
				if version != tt.wantVersion {
					t.Errorf("version = %v, want %v", version, tt.wantVersion)
				}
				if isUp != tt.wantIsUp {
					t.Errorf("isUp = %v, want %v", isUp, tt.wantIsUp)
				}
			}
		})
	}
}

// TestExtractMigrationName verifies name extraction.
func TestExtractMigrationName(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"20260118_120000_link_events.up.sql", "link_events"},
		{"20260118_120000_initial_schema.down.sql", "initial_schema"},
		{"20260118_120000_add_detail_to_events.up.sql", "add_detail_to_events"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got := extractMigrationName(tt.filename)
			if got != tt.want {
				t.Errorf("extractMigrationName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}
