package commands

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"corrade/internal/auth"
	"corrade/internal/cache"
	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/notify"
	"corrade/internal/session"
	"corrade/internal/wire"
)

type fakeOffers struct {
	mu      sync.Mutex
	pending map[uuid.UUID]model.InventoryOffer
	decided map[uuid.UUID]bool
}

func (f *fakeOffers) Pending() []model.InventoryOffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.InventoryOffer
	for _, o := range f.pending {
		out = append(out, o)
	}
	return out
}

func (f *fakeOffers) Decide(_ context.Context, id uuid.UUID, accept bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.pending[id]; !ok {
		return errors.New("no such offer")
	}
	delete(f.pending, id)
	f.decided[id] = accept
	return nil
}

type fakeDialogs struct {
	dialogs map[uuid.UUID]session.ScriptDialogEvent
}

func (f *fakeDialogs) Dialog(id uuid.UUID) (session.ScriptDialogEvent, bool) {
	d, ok := f.dialogs[id]
	return d, ok
}

func (f *fakeDialogs) Forget(id uuid.UUID) { delete(f.dialogs, id) }

type fakeStore struct {
	saved []model.Registration
}

func (f *fakeStore) SaveRegistrations(_ context.Context, regs []model.Registration) error {
	f.saved = regs
	return nil
}

type harness struct {
	env      *Env
	registry *Registry
	mem      *session.Memory
	group    model.Group
	offers   *fakeOffers
	dialogs  *fakeDialogs
	store    *fakeStore
}

func newHarness(t *testing.T, perms model.Permission) *harness {
	t.Helper()
	group := model.Group{
		Name:          "MyGroup",
		UUID:          uuid.New(),
		Password:      "secret",
		Permissions:   perms,
		Notifications: model.NotificationAlert | model.NotificationLocal,
		Workers:       5,
	}
	mem := session.NewMemory(session.Self{FirstName: "Test", LastName: "Bot"})
	mem.AddGroup(group.UUID, group.Name, true)
	cfg := config.Default()
	cfg.Session.DataTimeout = "300ms"

	h := &harness{
		registry: Default(),
		mem:      mem,
		group:    group,
		offers:   &fakeOffers{pending: map[uuid.UUID]model.InventoryOffer{}, decided: map[uuid.UUID]bool{}},
		dialogs:  &fakeDialogs{dialogs: map[uuid.UUID]session.ScriptDialogEvent{}},
		store:    &fakeStore{},
	}
	h.env = &Env{
		Session:  mem,
		Resolver: cache.New(mem),
		Config:   config.NewLive(cfg),
		Groups:   auth.NewGroups([]model.Group{group}),
		Registry: notify.NewRegistry(nil),
		Store:    h.store,
		Effects:  notify.NewEffects(),
		Offers:   h.offers,
		Dialogs:  h.dialogs,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h
}

func (h *harness) exec(t *testing.T, fields map[string]string) (map[string]string, string) {
	t.Helper()
	return h.registry.Execute(context.Background(), h.env, Request{Group: h.group, Fields: fields, Sender: "Jane Doe"})
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t, model.PermissionSystem)
	res, outcome := h.exec(t, map[string]string{"command": "fly"})
	if res["success"] != "False" || res["error"] != "command not found" || outcome != OutcomeNotFound {
		t.Fatalf("unexpected result %v (%s)", res, outcome)
	}
}

func TestMissingPermissionIsDenied(t *testing.T) {
	h := newHarness(t, model.PermissionTalk)
	res, outcome := h.exec(t, map[string]string{"command": "getbalance"})
	if res["error"] != "access denied" || outcome != OutcomeDenied {
		t.Fatalf("unexpected result %v (%s)", res, outcome)
	}
}

func TestVersionNeedsNoPermission(t *testing.T) {
	h := newHarness(t, model.PermissionNone)
	res, _ := h.exec(t, map[string]string{"command": "version"})
	if res["success"] != "True" || res["data"] != "corrade-go/1.0" {
		t.Fatalf("unexpected result %v", res)
	}
}

func TestEcho(t *testing.T) {
	h := newHarness(t, model.PermissionSystem)
	res, outcome := h.exec(t, map[string]string{"command": "echo", "message": "hello there"})
	if res["success"] != "True" || res["data"] != "hello there" || res["command"] != "echo" || outcome != OutcomeOK {
		t.Fatalf("unexpected result %v", res)
	}
}

func TestNotifyLifecycle(t *testing.T) {
	h := newHarness(t, model.PermissionNotifications)

	res, _ := h.exec(t, map[string]string{"command": "notify", "action": "add", "type": "economy", "URL": "http://cb/"})
	if res["error"] != "notification not allowed" {
		t.Fatalf("expected notification not allowed, got %v", res)
	}

	res, _ = h.exec(t, map[string]string{"command": "notify", "action": "add", "type": "alert,local", "URL": "http://cb/"})
	if res["success"] != "True" {
		t.Fatalf("add failed: %v", res)
	}
	if len(h.store.saved) != 2 {
		t.Fatalf("expected two persisted registrations, got %d", len(h.store.saved))
	}

	res, _ = h.exec(t, map[string]string{"command": "notify", "action": "list"})
	got := wire.SplitCSV(res["data"])
	want := []string{"alert", "http://cb/", "local", "http://cb/"}
	if len(got) != len(want) {
		t.Fatalf("unexpected list %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected list %v", got)
		}
	}

	h.exec(t, map[string]string{"command": "notify", "action": "remove", "type": "local"})
	if regs := h.env.Registry.List(""); len(regs) != 1 || regs[0].Kind != model.NotificationAlert {
		t.Fatalf("unexpected registrations after remove %+v", regs)
	}

	h.exec(t, map[string]string{"command": "notify", "action": "clear"})
	if len(h.store.saved) != 0 {
		t.Fatalf("expected empty persisted set, got %+v", h.store.saved)
	}
}

func TestTellLocalAndAvatar(t *testing.T) {
	h := newHarness(t, model.PermissionTalk)
	jane := uuid.New()
	h.mem.AddAgent(jane, "Jane Doe")

	res, _ := h.exec(t, map[string]string{"command": "tell", "entity": "local", "message": "hi", "type": "shout", "channel": "7"})
	if res["success"] != "True" {
		t.Fatalf("local tell failed: %v", res)
	}
	said := h.mem.Said()
	if len(said) != 1 || said[0].Channel != 7 || said[0].Type != session.ChatShout {
		t.Fatalf("unexpected chat %+v", said)
	}

	res, _ = h.exec(t, map[string]string{"command": "tell", "entity": "avatar", "message": "psst", "firstname": "Jane", "lastname": "Doe"})
	if res["success"] != "True" {
		t.Fatalf("avatar tell failed: %v", res)
	}
	if ims := h.mem.InstantMessages(); len(ims) != 1 || ims[0].To != jane {
		t.Fatalf("unexpected instant messages %+v", ims)
	}

	res, _ = h.exec(t, map[string]string{"command": "tell", "entity": "group", "message": "all"})
	if res["success"] != "True" || len(h.mem.GroupMessages()) != 1 {
		t.Fatalf("group tell failed: %v", res)
	}
}

func TestGetMembersCollectsAllBatches(t *testing.T) {
	h := newHarness(t, model.PermissionGroup)
	h.mem.BatchSize = 3
	var roster []uuid.UUID
	for i := 0; i < 10; i++ {
		roster = append(roster, uuid.New())
	}
	h.mem.SetMembers(h.group.UUID, roster...)

	res, _ := h.exec(t, map[string]string{"command": "getmembers"})
	if res["success"] != "True" {
		t.Fatalf("getmembers failed: %v", res)
	}
	if got := wire.SplitCSV(res["data"]); len(got) != len(roster) {
		t.Fatalf("expected %d members, got %d", len(roster), len(got))
	}
}

func TestConfigurationFields(t *testing.T) {
	h := newHarness(t, model.PermissionSystem)

	res, _ := h.exec(t, map[string]string{"command": "setconfiguration", "path": "limits.command_threads", "data": "3"})
	if res["success"] != "True" || res["data"] != "limits.command_threads,3" {
		t.Fatalf("set failed: %v", res)
	}
	if h.env.Config.Get().Limits.CommandThreads != 3 {
		t.Fatal("configuration not updated")
	}

	res, _ = h.exec(t, map[string]string{"command": "setconfiguration", "path": "limits.command_threads", "data": "zero"})
	if res["success"] != "False" {
		t.Fatalf("invalid value must fail: %v", res)
	}

	res, _ = h.exec(t, map[string]string{"command": "getconfiguration", "path": "limits.command_threads"})
	if res["data"] != "limits.command_threads,3" {
		t.Fatalf("unexpected get %v", res)
	}
}

func TestReplyToInventoryOffer(t *testing.T) {
	h := newHarness(t, model.PermissionInventory)
	offer := model.InventoryOffer{ID: uuid.New(), SenderName: "Jane Doe", ItemName: "Box", AssetType: "object", State: model.OfferPending}
	h.offers.pending[offer.ID] = offer

	res, _ := h.exec(t, map[string]string{"command": "getinventoryoffers"})
	if got := wire.SplitCSV(res["data"]); len(got) != 4 || got[1] != offer.ID.String() {
		t.Fatalf("unexpected offers %v", got)
	}

	res, _ = h.exec(t, map[string]string{"command": "replytoinventoryoffer", "action": "accept", "session": offer.ID.String()})
	if res["success"] != "True" || !h.offers.decided[offer.ID] {
		t.Fatalf("accept failed: %v", res)
	}
	res, _ = h.exec(t, map[string]string{"command": "replytoinventoryoffer", "action": "accept", "session": offer.ID.String()})
	if res["success"] != "False" {
		t.Fatalf("second decision must fail: %v", res)
	}
}

func TestReplyToDialog(t *testing.T) {
	h := newHarness(t, model.PermissionInteract)
	dialog := session.ScriptDialogEvent{DialogID: uuid.New(), Channel: -42, Buttons: []string{"Yes", "No"}}
	h.dialogs.dialogs[dialog.DialogID] = dialog

	res, _ := h.exec(t, map[string]string{"command": "replytodialog", "dialog": dialog.DialogID.String(), "button": "Maybe"})
	if res["error"] != "dialog button not found" {
		t.Fatalf("unexpected result %v", res)
	}
	res, _ = h.exec(t, map[string]string{"command": "replytodialog", "dialog": dialog.DialogID.String(), "button": "yes"})
	if res["success"] != "True" {
		t.Fatalf("reply failed: %v", res)
	}
	if replies := h.mem.Replies(); len(replies) != 1 || replies[0].Detail != "dialog:-42:yes" {
		t.Fatalf("unexpected replies %+v", replies)
	}
	if _, ok := h.dialogs.dialogs[dialog.DialogID]; ok {
		t.Fatal("answered dialog should be forgotten")
	}
}

func TestPanickingCommandFails(t *testing.T) {
	h := newHarness(t, model.PermissionSystem)
	h.registry = NewRegistry(Command{Name: "boom", Permission: model.PermissionSystem, Run: func(context.Context, *Env, Request) (map[string]string, error) {
		panic("boom")
	}})
	res, outcome := h.exec(t, map[string]string{"command": "boom"})
	if res["success"] != "False" || outcome != OutcomeFailed {
		t.Fatalf("unexpected result %v (%s)", res, outcome)
	}
}
