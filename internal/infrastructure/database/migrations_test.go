package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"20260101_000000_first.up.sql":    {Data: []byte("CREATE TABLE first (id TEXT PRIMARY KEY);")},
		"20260101_000000_first.down.sql":  {Data: []byte("DROP TABLE first;")},
		"20260102_000000_second.up.sql":   {Data: []byte("CREATE TABLE second (id TEXT PRIMARY KEY);")},
		"20260102_000000_second.down.sql": {Data: []byte("DROP TABLE second;")},
		"README.md":                       {Data: []byte("ignored")},
	}
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name,
	).Scan(&n)
	if err != nil {
		t.Fatal(err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	for _, table := range []string{"first", "second", "schema_migrations"} {
		if !tableExists(t, db, table) {
			t.Errorf("table %q missing after Migrate()", table)
		}
	}

	// Second run is a no-op
	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied=%d pending=%d, want 2/0", len(applied), len(pending))
	}
}

func TestMigrateFailureStopsAtBadFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()
	fsys["20260103_000000_broken.up.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE (")}

	if err := db.Migrate(ctx, fsys); err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}
	applied, pending, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 2 || len(pending) != 1 {
		t.Errorf("applied=%d pending=%d, want 2/1", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateDown(ctx, fsys); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "second") {
		t.Error("table second should be dropped")
	}
	if !tableExists(t, db, "first") {
		t.Error("table first should remain")
	}
}

func TestMigrateNoMigrations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
	if err := db.MigrateDown(ctx, nil); err != nil {
		t.Errorf("MigrateDown(nil) error = %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name        string
		wantVersion string
		wantUp      bool
		wantOK      bool
	}{
		{"20260101_000000_miio_devices.up.sql", "20260101_000000", true, true},
		{"20260101_000000_miio_devices.down.sql", "20260101_000000", false, true},
		{"20260101_000000.up.sql", "20260101_000000", true, true},
		{"20260101.up.sql", "", false, false},
		{"20260101_000000_x.sql", "", false, false},
		{"notes.txt", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, isUp, ok := parseMigrationFilename(tt.name)
			if version != tt.wantVersion || isUp != tt.wantUp || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
					tt.name, version, isUp, ok, tt.wantVersion, tt.wantUp, tt.wantOK)
			}
		})
	}
}

func TestExtractMigrationName(t *testing.T) {
	if got := extractMigrationName("20260101_000000_miio_devices.up.sql"); got != "miio_devices" {
		t.Errorf("extractMigrationName() = %q, want miio_devices", got)
	}
	if got := extractMigrationName("20260101_000000.down.sql"); got != "20260101_000000" {
		t.Errorf("extractMigrationName() = %q", got)
	}
}

func TestMigrationRecordsName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := testMigrations()
	fsys["20260103_000000_orphan.down.sql"] = &fstest.MapFile{Data: []byte("DROP TABLE orphan;")}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatal(err)
	}
	applied, pending, err := db.GetMigrationStatus(ctx, fsys)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("down-only file reported as pending: %+v", pending)
	}
	if len(applied) != 2 || applied[0].Name != "first" || applied[1].Name != "second" {
		t.Errorf("applied = %+v", applied)
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}
}

func TestMigrateDownWithoutDownFile(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	fsys := fstest.MapFS{
		"20260101_000000_only_up.up.sql": {Data: []byte("CREATE TABLE only_up (id TEXT);")},
	}

	if err := db.Migrate(ctx, fsys); err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateDown(ctx, fsys); err == nil {
		t.Error("MigrateDown() should refuse a migration without a down file")
	}
	if !tableExists(t, db, "only_up") {
		t.Error("table only_up should remain")
	}
}
