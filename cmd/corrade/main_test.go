package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/storage"
	"corrade/internal/storage/repos"
)

func writeConfig(t *testing.T, tos bool) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corrade.db")
	body := `
agent:
  first_name: Test
  last_name: Bot
  tos_accepted: ` + map[bool]string{true: "true", false: "false"}[tos] + `
database:
  path: ` + dbPath + `
groups:
  - name: MyGroup
    uuid: 6e0a1c4e-54b3-4a1f-9a4e-0f3f0c0d7f11
    password: secret
    workers: 5
    permissions: [system]
    notifications: [local]
`
	path := filepath.Join(dir, "corrade.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dbPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs(args)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	path, _ := writeConfig(t, true)
	out, err := run(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "MyGroup") || !strings.Contains(out, "config ok") {
		t.Fatalf("unexpected output %q", out)
	}

	bad, _ := writeConfig(t, false)
	if _, err := run(t, "--config", bad, "config", "validate"); err == nil {
		t.Fatal("expected validation error without tos acceptance")
	}
}

func TestServerRefusesWithoutTOS(t *testing.T) {
	path, _ := writeConfig(t, false)
	_, err := run(t, "--config", path, "server")
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != config.Default().ExitCodes.Abnormal {
		t.Fatalf("expected abnormal exit, got %v", err)
	}
}

func TestNotificationsAndOffersList(t *testing.T) {
	path, dbPath := writeConfig(t, true)
	ctx := context.Background()

	cfg := config.Default()
	cfg.Database.Path = dbPath
	db, err := storage.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repos.New(db)
	if err := store.SaveRegistrations(ctx, []model.Registration{{Group: "MyGroup", Kind: model.NotificationLocal, URL: "http://example.test/hook"}}); err != nil {
		t.Fatalf("save registrations: %v", err)
	}
	if err := store.UpsertOffer(ctx, model.InventoryOffer{
		ID:         uuid.New(),
		Sender:     uuid.New(),
		SenderName: "Jane Doe",
		ItemName:   "Box",
		AssetType:  "object",
		State:      model.OfferPending,
		Received:   time.Now().UTC(),
	}); err != nil {
		t.Fatalf("save offer: %v", err)
	}
	_ = db.Close()

	out, err := run(t, "--config", path, "notifications", "list")
	if err != nil {
		t.Fatalf("notifications list: %v", err)
	}
	if !strings.Contains(out, "http://example.test/hook") {
		t.Fatalf("registration missing from %q", out)
	}

	out, err = run(t, "--config", path, "offers", "list")
	if err != nil {
		t.Fatalf("offers list: %v", err)
	}
	if !strings.Contains(out, "Jane Doe") || !strings.Contains(out, "Box") {
		t.Fatalf("offer missing from %q", out)
	}
}

func TestCommandRequiresFields(t *testing.T) {
	if _, err := run(t, "command"); err == nil {
		t.Fatal("expected an error without fields")
	}
	if _, err := run(t, "command", "--url", "http://127.0.0.1:1/", "novalue"); err == nil {
		t.Fatal("expected an error for a malformed field")
	}
}

func TestDBStatsAndBackup(t *testing.T) {
	path, _ := writeConfig(t, true)
	out, err := run(t, "--config", path, "db", "stats")
	if err != nil {
		t.Fatalf("db stats: %v", err)
	}
	if !strings.Contains(out, "inventory_offers") || !strings.Contains(out, "rlv_rules") {
		t.Fatalf("unexpected stats output %q", out)
	}

	dir := t.TempDir()
	out, err = run(t, "--config", path, "db", "backup", "--dir", dir)
	if err != nil {
		t.Fatalf("db backup: %v", err)
	}
	if !strings.Contains(out, dir) {
		t.Fatalf("unexpected backup output %q", out)
	}
}
