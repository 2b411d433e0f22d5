package repos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "corrade-test.db")

	db, err := storage.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	// Migrations are idempotent.
	if err := storage.Migrate(ctx, db); err != nil {
		t.Fatalf("re-migrate db: %v", err)
	}
	return New(db)
}

func TestRegistrationsReplaceSet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	regs := []model.Registration{
		{Group: "Builders", Kind: model.NotificationAlert, URL: "http://a/"},
		{Group: "Builders", Kind: model.NotificationLocal, URL: "http://a/"},
		{Group: "Builders", Kind: model.NotificationAlert, URL: "http://a/"},
	}
	if err := store.SaveRegistrations(ctx, regs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.ListRegistrations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected duplicates collapsed to 2 rows, got %d", len(got))
	}

	if err := store.SaveRegistrations(ctx, regs[:1]); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _ = store.ListRegistrations(ctx)
	if len(got) != 1 || got[0].Kind != model.NotificationAlert {
		t.Fatalf("unexpected registrations after replace: %+v", got)
	}
}

func TestDeclinePendingOffers(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	pending := model.InventoryOffer{ID: uuid.New(), Sender: uuid.New(), ItemName: "Box", State: model.OfferPending, Received: time.Now()}
	accepted := model.InventoryOffer{ID: uuid.New(), Sender: uuid.New(), ItemName: "Hat", State: model.OfferAccepted, Received: time.Now()}
	for _, o := range []model.InventoryOffer{pending, accepted} {
		if err := store.UpsertOffer(ctx, o); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	declined, err := store.DeclinePending(ctx)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if len(declined) != 1 || declined[0].ID != pending.ID {
		t.Fatalf("unexpected declined set: %+v", declined)
	}
	left, _ := store.ListOffers(ctx, model.OfferPending)
	if len(left) != 0 {
		t.Fatalf("expected no pending offers, got %d", len(left))
	}
	all, _ := store.ListOffers(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected both offers kept, got %d", len(all))
	}
}

func TestCachesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	snap := CacheSnapshot{
		Agents:        []CachedAgent{{ID: uuid.New(), FirstName: "Jane", LastName: "Doe"}},
		Groups:        []CachedGroup{{ID: uuid.New(), Name: "Builders"}},
		CurrentGroups: []uuid.UUID{uuid.New()},
	}
	if err := store.SaveCaches(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.LoadCaches(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Agents) != 1 || got.Agents[0].FirstName != "Jane" {
		t.Fatalf("agents: %+v", got.Agents)
	}
	if len(got.Groups) != 1 || got.Groups[0].Name != "Builders" {
		t.Fatalf("groups: %+v", got.Groups)
	}
	if len(got.CurrentGroups) != 1 || got.CurrentGroups[0] != snap.CurrentGroups[0] {
		t.Fatalf("current groups: %+v", got.CurrentGroups)
	}
}

func TestRLVRulesPersist(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	obj := uuid.New()
	rules := []model.RLVRule{
		{Behaviour: "detach", Param: "n", Object: obj},
		{Behaviour: "sendim", Option: "friend", Param: "n", Object: obj},
	}
	if err := store.SaveRLVRules(ctx, rules); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.ListRLVRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(got))
	}
	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats["rlv_rules"] != 2 {
		t.Fatalf("stats: %+v", stats)
	}
}
