package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"corrade/internal/commands"
	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/session"
	"corrade/internal/storage"
	"corrade/internal/storage/repos"
	"corrade/internal/wire"
)

var testGroupID = uuid.MustParse("7f3c2a70-1b2d-4c5e-9f00-000000000001")

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Session.DataTimeout = "300ms"
	cfg.Session.ServicesTimeout = "2s"
	cfg.Limits.ShutdownGrace = "2s"
	cfg.Groups = []config.Group{{
		Name:          "MyGroup",
		UUID:          testGroupID.String(),
		Password:      "secret",
		Workers:       5,
		Permissions:   []string{"system", "inventory", "talk"},
		Notifications: []string{"inventory"},
	}}
	cfg.Masters = []config.Master{{FirstName: "Owner", LastName: "Resident"}}
	return cfg
}

func newTestStore(t *testing.T) *repos.Store {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "service-test.db")
	db, err := storage.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return repos.New(db)
}

func setupTestApp(t *testing.T, cfg config.Config, store *repos.Store) (*App, *session.Memory) {
	t.Helper()
	mem := session.NewMemory(session.Self{FirstName: "Test", LastName: "Bot"})
	mem.AddGroup(testGroupID, "MyGroup", true)
	app, err := New(context.Background(), Options{
		Config:  cfg,
		Store:   store,
		Session: mem,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app, mem
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatchEchoReleasesWorker(t *testing.T) {
	app, _ := setupTestApp(t, testConfig(), nil)

	res := app.Dispatch(context.Background(), Request{
		Message: "group=MyGroup&password=secret&command=echo&message=hello+there",
		Sender:  "Jane Doe",
		Origin:  OriginHTTP,
	})
	if res == nil || res["success"] != "True" || res["data"] != "hello there" {
		t.Fatalf("unexpected result %v", res)
	}
	if n := app.WorkerCount("mygroup"); n != 0 {
		t.Fatalf("expected worker slot released, got %d", n)
	}
}

func TestDispatchDropsUnauthenticatedRequests(t *testing.T) {
	app, _ := setupTestApp(t, testConfig(), nil)
	ctx := context.Background()

	cases := map[string]string{
		"no group":      "password=secret&command=echo",
		"unknown group": "group=Other&password=secret&command=echo",
		"no password":   "group=MyGroup&command=echo",
		"bad password":  "group=MyGroup&password=wrong&command=echo",
		"malformed":     "group=MyGroup&password",
	}
	for name, msg := range cases {
		var logs bytes.Buffer
		app.Logger = slog.New(slog.NewTextHandler(&logs, nil))
		if res := app.Dispatch(ctx, Request{Message: msg, Origin: OriginHTTP}); res != nil {
			t.Fatalf("%s: expected silent drop, got %v", name, res)
		}
		denied := strings.Contains(logs.String(), `msg="access denied"`)
		if want := name == "bad password"; denied != want {
			t.Fatalf("%s: access denied logged=%v, want %v; log: %s", name, denied, want, logs.String())
		}
	}
	if n := app.WorkerCount("MyGroup"); n != 0 {
		t.Fatalf("dropped requests must not hold workers, got %d", n)
	}
}

func TestDispatchAcceptsGroupUUID(t *testing.T) {
	app, _ := setupTestApp(t, testConfig(), nil)
	res := app.Dispatch(context.Background(), Request{
		Message: "group=" + testGroupID.String() + "&password=secret&command=version",
		Origin:  OriginHTTP,
	})
	if res["success"] != "True" || res["data"] != "corrade-go/1.0" {
		t.Fatalf("unexpected result %v", res)
	}
}

func TestWorkerCeilingDropsExcessCommands(t *testing.T) {
	cfg := testConfig()
	cfg.Groups[0].Workers = 1
	app, _ := setupTestApp(t, cfg, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	app.Commands = commands.NewRegistry(commands.Command{
		Name: "block",
		Run: func(context.Context, *commands.Env, commands.Request) (map[string]string, error) {
			close(started)
			<-release
			return nil, nil
		},
	})

	msg := "group=MyGroup&password=secret&command=block"
	var wg sync.WaitGroup
	wg.Add(1)
	var first map[string]string
	go func() {
		defer wg.Done()
		first = app.Dispatch(context.Background(), Request{Message: msg, Origin: OriginHTTP})
	}()
	<-started

	if res := app.Dispatch(context.Background(), Request{Message: msg, Origin: OriginHTTP}); res != nil {
		t.Fatalf("second command must be dropped, got %v", res)
	}
	if n := app.WorkerCount("MyGroup"); n != 1 {
		t.Fatalf("expected one running worker, got %d", n)
	}

	close(release)
	wg.Wait()
	if first["success"] != "True" {
		t.Fatalf("first command should succeed, got %v", first)
	}
	if n := app.WorkerCount("MyGroup"); n != 0 {
		t.Fatalf("expected worker released, got %d", n)
	}
}

func TestDispatchQueuesCallback(t *testing.T) {
	app, _ := setupTestApp(t, testConfig(), nil)

	res := app.Dispatch(context.Background(), Request{
		Message: "group=MyGroup&password=secret&command=echo&message=hi&callback=http%3A%2F%2Fcb.example%2Fhook",
		Origin:  OriginHTTP,
	})
	if res == nil {
		t.Fatal("expected a result")
	}
	if app.Callbacks.Len() != 1 {
		t.Fatalf("expected one queued callback, got %d", app.Callbacks.Len())
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, ok := app.Callbacks.Next(ctx)
	if !ok {
		t.Fatal("expected queued callback element")
	}
	if e.URL != "http://cb.example/hook" {
		t.Fatalf("unexpected callback url %q", e.URL)
	}
	body := wire.Decode(e.Payload)
	if body["command"] != "echo" || body["data"] != "hi" || body["success"] != "True" {
		t.Fatalf("unexpected callback payload %v", body)
	}
}

func TestOwnerSayRoutesRulesAndCommands(t *testing.T) {
	app, mem := setupTestApp(t, testConfig(), nil)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	object := uuid.New()
	mem.Emit(session.ChatEvent{Type: session.ChatOwnerSay, SourceID: object, SourceType: session.SourceObject, FromName: "HUD", Message: "@fly=n,tplm=n"})
	waitUntil(t, "rlv rules", func() bool { return app.RLV.Rules().Len() == 2 })

	bodies := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)
	}))
	defer srv.Close()

	mem.Emit(session.ChatEvent{
		Type:       session.ChatOwnerSay,
		SourceID:   object,
		SourceType: session.SourceObject,
		FromName:   "HUD",
		Message:    "group=MyGroup&password=secret&command=echo&message=x&callback=" + url.QueryEscape(srv.URL),
	})
	select {
	case b := <-bodies:
		if got := wire.Decode(b); got["command"] != "echo" || got["data"] != "x" {
			t.Fatalf("unexpected callback body %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback delivery")
	}
}

func TestOfferDeclinedAtShutdown(t *testing.T) {
	store := newTestStore(t)
	app, mem := setupTestApp(t, testConfig(), store)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	offer := uuid.New()
	mem.Emit(session.InventoryOfferEvent{OfferID: offer, SenderID: uuid.New(), SenderName: "Jane Doe", ItemName: "Box", AssetType: "object"})
	if pending := app.Offers.Pending(); len(pending) != 1 || pending[0].ID != offer {
		t.Fatalf("expected one pending offer, got %+v", pending)
	}

	app.Shutdown(ctx)

	replies := mem.Replies()
	if len(replies) != 1 || replies[0].ID != offer || replies[0].Accept {
		t.Fatalf("expected a decline, got %+v", replies)
	}
	declined, err := store.ListOffers(ctx, model.OfferDeclined)
	if err != nil {
		t.Fatalf("list offers: %v", err)
	}
	if len(declined) != 1 || declined[0].ID != offer {
		t.Fatalf("expected declined offer persisted, got %+v", declined)
	}
}

func TestOfferAcceptedByCommandAndFromMaster(t *testing.T) {
	app, mem := setupTestApp(t, testConfig(), nil)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	fromMaster := uuid.New()
	mem.Emit(session.InventoryOfferEvent{OfferID: fromMaster, SenderID: uuid.New(), SenderName: "Owner Resident", ItemName: "Gift"})
	waitUntil(t, "master offer accepted", func() bool { return hasReply(mem, fromMaster, true) })
	if len(app.Offers.Pending()) != 0 {
		t.Fatal("offers from masters must not wait for a decision")
	}

	offer := uuid.New()
	mem.Emit(session.InventoryOfferEvent{OfferID: offer, SenderID: uuid.New(), SenderName: "Jane Doe", ItemName: "Box"})
	res := app.Dispatch(ctx, Request{
		Message: "group=MyGroup&password=secret&command=replytoinventoryoffer&action=accept&session=" + offer.String(),
		Origin:  OriginHTTP,
	})
	if res["success"] != "True" {
		t.Fatalf("reply failed: %v", res)
	}
	waitUntil(t, "offer accepted", func() bool { return hasReply(mem, offer, true) })
}

func hasReply(mem *session.Memory, id uuid.UUID, accept bool) bool {
	for _, r := range mem.Replies() {
		if r.ID == id && r.Accept == accept {
			return true
		}
	}
	return false
}

func TestCallbackCompressionFollowsLiveConfig(t *testing.T) {
	app, _ := setupTestApp(t, testConfig(), nil)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	encodings := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		encodings <- r.Header.Get("Content-Encoding")
	}))
	defer srv.Close()
	callback := "&callback=" + url.QueryEscape(srv.URL)

	send := func(msg string) {
		t.Helper()
		if res := app.Dispatch(ctx, Request{Message: msg, Origin: OriginHTTP}); res["success"] != "True" {
			t.Fatalf("dispatch %q: %v", msg, res)
		}
	}
	next := func() string {
		t.Helper()
		select {
		case enc := <-encodings:
			return enc
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for callback delivery")
			return ""
		}
	}

	send("group=MyGroup&password=secret&command=echo&message=a" + callback)
	if enc := next(); enc != "" {
		t.Fatalf("expected no content encoding, got %q", enc)
	}
	send("group=MyGroup&password=secret&command=setconfiguration&path=server.compression&data=gzip")
	send("group=MyGroup&password=secret&command=echo&message=b" + callback)
	if enc := next(); enc != "gzip" {
		t.Fatalf("expected gzip after setconfiguration, got %q", enc)
	}
}

func TestPruneForgetsUnansweredDialogs(t *testing.T) {
	app, mem := setupTestApp(t, testConfig(), nil)
	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer app.Shutdown(ctx)

	dialog := uuid.New()
	mem.Emit(session.ScriptDialogEvent{DialogID: dialog, ObjectID: uuid.New(), Message: "pick", Buttons: []string{"A"}})
	waitUntil(t, "dialog remembered", func() bool { return app.Dialogs.Len() == 1 })

	app.prune()
	if app.Dialogs.Len() != 1 {
		t.Fatal("fresh dialogs must survive a prune")
	}
	if n := app.Dialogs.Prune(0); n != 1 {
		t.Fatalf("expected one idle dialog pruned, got %d", n)
	}
	if _, ok := app.Dialogs.Dialog(dialog); ok {
		t.Fatal("pruned dialog still answerable")
	}
}
