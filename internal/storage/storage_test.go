package storage

import (
	"context"
	"path/filepath"
	"testing"

	"corrade/internal/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "nested", "corrade.db")
	return cfg
}

func TestMigrateIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	db, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("migrate pass %d: %v", i, err)
		}
	}
	applied, err := Applied(ctx, db)
	if err != nil {
		t.Fatalf("applied: %v", err)
	}
	if len(applied) != 1 || applied[0] != "001_init.sql" {
		t.Fatalf("unexpected applied set %v", applied)
	}
}

func TestBackupSnapshotsData(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()
	db, err := Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		"INSERT INTO notifications(group_name, kind, url, created_at) VALUES ('g', 'local', 'http://x', 'now')"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dst, err := Backup(ctx, db, t.TempDir())
	if err != nil {
		t.Fatalf("backup: %v", err)
	}
	snapCfg := config.Default()
	snapCfg.Database.Path = dst
	snap, err := Open(ctx, snapCfg)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer snap.Close()
	var n int
	if err := snap.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one row in snapshot, got %d", n)
	}
}
