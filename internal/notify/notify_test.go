package notify

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"corrade/internal/auth"
	"corrade/internal/delivery"
	"corrade/internal/filter"
	"corrade/internal/model"
	"corrade/internal/pool"
	"corrade/internal/session"
	"corrade/internal/wire"
)

type testEnv struct {
	engine   *Engine
	registry *Registry
	queue    *delivery.Queue
	budget   *pool.Budget
	group    model.Group
}

func newTestEnv(t *testing.T, queueLen int) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	group := model.Group{
		Name:          "Builders",
		UUID:          uuid.New(),
		Password:      "secret",
		Notifications: model.NotificationAlert | model.NotificationRadarAvatars | model.NotificationGroup | model.NotificationLocal,
		Workers:       5,
		ChatLog:       model.ChatLog{Enabled: true, File: filepath.Join(t.TempDir(), "builders.log")},
	}
	other := model.Group{Name: "Others", UUID: uuid.New(), Notifications: model.NotificationAlert, Workers: 1}
	p, err := filter.New(filter.Options{Output: []string{filter.RFC1738}})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	env := &testEnv{
		registry: NewRegistry(nil),
		queue:    delivery.NewQueue(delivery.QueueNotification, queueLen, nil),
		budget:   pool.New(logger, nil),
		group:    group,
	}
	env.engine = NewEngine(Options{
		Groups:   auth.NewGroups([]model.Group{group, other}),
		Registry: env.registry,
		Queue:    env.queue,
		Pipeline: p,
		Budget:   env.budget,
		Threads:  func() int { return 4 },
		Logger:   logger,
	})
	return env
}

func (e *testEnv) drain(t *testing.T) []delivery.Element {
	t.Helper()
	e.budget.Wait()
	var out []delivery.Element
	for e.queue.Len() > 0 {
		el, _ := e.queue.Next(context.Background())
		out = append(out, el)
	}
	return out
}

func TestSendSkipsWithoutRegistration(t *testing.T) {
	env := newTestEnv(t, 10)
	if env.engine.Send(Alert{session.AlertEvent{Message: "hi"}}) {
		t.Fatal("nothing registered, nothing should be scheduled")
	}
}

func TestSendRequiresGroupMask(t *testing.T) {
	env := newTestEnv(t, 10)
	env.registry.Add("Others", model.NotificationLocal, "http://others/")
	if env.engine.Interested(model.NotificationLocal) {
		t.Fatal("group mask does not allow local chat")
	}
	if env.engine.Send(Chat{session.ChatEvent{Message: "hi"}}) {
		t.Fatal("registration outside the mask must be ignored")
	}
}

func TestSendEnqueuesOnePerURL(t *testing.T) {
	env := newTestEnv(t, 10)
	env.registry.Add("Builders", model.NotificationAlert, "http://a/")
	env.registry.Add("builders", model.NotificationAlert, "http://b/")
	env.registry.Add("Others", model.NotificationAlert, "http://c/")

	if !env.engine.Send(Alert{session.AlertEvent{Message: "region restarting"}}) {
		t.Fatal("expected delivery to be scheduled")
	}
	els := env.drain(t)
	if len(els) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(els))
	}
	m := wire.Decode(els[0].Payload)
	if m["type"] != "alert" || m["message"] != "region+restarting" {
		t.Fatalf("unexpected payload %q", els[0].Payload)
	}
}

func TestSendDropsWhenQueueFull(t *testing.T) {
	env := newTestEnv(t, 1)
	env.registry.Add("Builders", model.NotificationAlert, "http://a/")
	env.registry.Add("Builders", model.NotificationAlert, "http://b/")
	env.engine.Send(Alert{session.AlertEvent{Message: "x"}})
	if n := len(env.drain(t)); n != 1 {
		t.Fatalf("expected one element to survive, got %d", n)
	}
}

func TestRadarDeduplicatesAppearances(t *testing.T) {
	env := newTestEnv(t, 10)
	env.registry.Add("Builders", model.NotificationRadarAvatars, "http://radar/")
	id := uuid.New()

	if !env.engine.Handle(session.AvatarAppearedEvent{ID: id, Name: "Jane Doe"}) {
		t.Fatal("first appearance should notify")
	}
	if env.engine.Handle(session.AvatarAppearedEvent{ID: id, Name: "Jane Doe"}) {
		t.Fatal("second appearance must not notify")
	}
	if env.engine.Avatars.Len() != 1 {
		t.Fatalf("expected one tracked avatar, got %d", env.engine.Avatars.Len())
	}
	if env.engine.Handle(session.AvatarVanishedEvent{ID: uuid.New()}) {
		t.Fatal("vanish of untracked avatar must not notify")
	}
	if !env.engine.Handle(session.AvatarVanishedEvent{ID: id}) {
		t.Fatal("vanish of tracked avatar should notify")
	}

	els := env.drain(t)
	if len(els) != 2 {
		t.Fatalf("expected appear and vanish, got %d", len(els))
	}
	actions := map[string]bool{}
	for _, el := range els {
		actions[wire.Decode(el.Payload)["action"]] = true
	}
	if !actions["appear"] || !actions["vanish"] {
		t.Fatalf("unexpected actions %v", actions)
	}
}

func TestScopedGroupChatAndChatLog(t *testing.T) {
	env := newTestEnv(t, 10)
	env.registry.Add("Builders", model.NotificationGroup, "http://group/")

	ev := session.GroupChatEvent{GroupID: uuid.New(), FromName: "Jane Doe", Message: "hello"}
	if env.engine.GroupChat(ev, "Elsewhere") {
		t.Fatal("chat from a different group must not reach Builders")
	}

	ev.GroupID = env.group.UUID
	if !env.engine.GroupChat(ev, "Builders") {
		t.Fatal("chat from the configured group should notify")
	}
	env.drain(t)

	b, err := os.ReadFile(env.group.ChatLog.File)
	if err != nil {
		t.Fatalf("read chat log: %v", err)
	}
	if !strings.Contains(string(b), "Jane Doe : hello") {
		t.Fatalf("unexpected chat log: %s", b)
	}
}

func TestRegistryRemoveAndPurge(t *testing.T) {
	r := NewRegistry(nil)
	if n := r.Add("A", model.NotificationAlert|model.NotificationLocal, "http://x/"); n != 2 {
		t.Fatalf("expected 2 added, got %d", n)
	}
	if n := r.Add("A", model.NotificationAlert, "http://x/"); n != 0 {
		t.Fatalf("duplicate add should be a no-op, got %d", n)
	}
	r.Add("B", model.NotificationAlert, "http://y/")

	if n := r.Remove("a", model.NotificationLocal, ""); n != 1 {
		t.Fatalf("expected 1 removed, got %d", n)
	}
	if n := r.Purge(func(g string) bool { return g == "A" }); n != 1 {
		t.Fatalf("expected B purged, got %d", n)
	}
	if got := r.List(""); len(got) != 1 || got[0].Group != "A" {
		t.Fatalf("unexpected registrations %+v", got)
	}
}

func TestEffectsExpire(t *testing.T) {
	fx := NewEffects()
	now := time.Now()
	fx.now = func() time.Time { return now }
	fx.Track(session.ViewerEffectEvent{EffectID: uuid.New(), Effect: "beam", Duration: time.Second})
	fx.Track(session.ViewerEffectEvent{EffectID: uuid.New(), Effect: "look", Duration: time.Minute})

	now = now.Add(2 * time.Second)
	if n := fx.Expire(); n != 1 {
		t.Fatalf("expected one expired effect, got %d", n)
	}
	if a := fx.Active(); len(a) != 1 || a[0].Effect != "look" {
		t.Fatalf("unexpected active effects %+v", a)
	}
}

func TestChatPayloadFields(t *testing.T) {
	n := Chat{session.ChatEvent{
		Message:      "hi",
		FromName:     "Jane Doe",
		SourceID:     uuid.New(),
		SourceType:   session.SourceAgent,
		Type:         session.ChatNormal,
		AudibleLevel: "Fully",
	}}
	p := n.Payload()
	for _, k := range []string{"message", "firstname", "lastname", "position", "sourceID", "sourceType", "audibleLevel", "chatType"} {
		if _, ok := p[k]; !ok {
			t.Fatalf("payload missing %s: %v", k, p)
		}
	}
	if p["firstname"] != "Jane" || p["lastname"] != "Doe" {
		t.Fatalf("unexpected names %v", p)
	}
	owner := Chat{session.ChatEvent{Type: session.ChatOwnerSay}}
	if owner.Kind() != model.NotificationOwnerSay {
		t.Fatal("owner-say chat must map to the ownersay kind")
	}
}
