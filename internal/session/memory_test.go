package session

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemorySubscribeAndUnsubscribe(t *testing.T) {
	m := NewMemory(Self{FirstName: "Corrade", LastName: "Bot"})
	var got []string
	unsubscribe := m.Subscribe(func(ev Event) { got = append(got, ev.EventName()) })
	m.Emit(AlertEvent{Message: "hi"})
	unsubscribe()
	m.Emit(AlertEvent{Message: "again"})
	if len(got) != 1 || got[0] != "alert" {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestMemoryNameResolution(t *testing.T) {
	m := NewMemory(Self{FirstName: "Corrade", LastName: "Bot"})
	id := uuid.New()
	m.AddAgent(id, "Jane Doe")

	got, err := m.AgentID(context.Background(), "jane", "doe")
	if err != nil || got != id {
		t.Fatalf("AgentID: %v %v", got, err)
	}
	if _, err := m.AgentName(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCollectGroupMembersGathersAllBatches(t *testing.T) {
	m := NewMemory(Self{FirstName: "Corrade", LastName: "Bot"})
	m.BatchSize = 3
	group := uuid.New()
	var roster []uuid.UUID
	for i := 0; i < 10; i++ {
		roster = append(roster, uuid.New())
	}
	m.AddGroup(group, "Builders", true, roster...)

	got, err := CollectGroupMembers(context.Background(), m, group, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got) != len(roster) {
		t.Fatalf("expected %d members, got %d", len(roster), len(got))
	}
	sort.Slice(got, func(i, j int) bool { return got[i].String() < got[j].String() })
	sort.Slice(roster, func(i, j int) bool { return roster[i].String() < roster[j].String() })
	for i := range roster {
		if got[i] != roster[i] {
			t.Fatalf("member %d mismatch", i)
		}
	}
}

func TestCollectGroupMembersUnknownGroup(t *testing.T) {
	m := NewMemory(Self{})
	if _, err := CollectGroupMembers(context.Background(), m, uuid.New(), 100*time.Millisecond); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFolderFindAndWalk(t *testing.T) {
	root := &Folder{Name: "#RLV", Folders: []*Folder{
		{Name: "Outfits", Folders: []*Folder{
			{Name: "Red", Items: []Item{{ID: uuid.New(), Name: "Red Shirt", Kind: ItemClothing, Layer: "shirt"}}},
		}},
	}}
	f, ok := root.Find("outfits/red")
	if !ok || f.Name != "Red" {
		t.Fatalf("Find failed: %v %v", f, ok)
	}
	var paths []string
	root.Walk(func(p string, _ *Folder) bool {
		paths = append(paths, p)
		return true
	})
	want := []string{"", "Outfits", "Outfits/Red"}
	if len(paths) != len(want) {
		t.Fatalf("paths %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths %v want %v", paths, want)
		}
	}
}

func TestWearReplacesSameLayer(t *testing.T) {
	m := NewMemory(Self{})
	oldShirt := Item{ID: uuid.New(), Name: "Old", Kind: ItemClothing, Layer: "shirt", Worn: true}
	newShirt := Item{ID: uuid.New(), Name: "New", Kind: ItemClothing, Layer: "shirt"}
	m.SetSharedFolder(&Folder{Name: "#RLV", Items: []Item{oldShirt, newShirt}})

	if err := m.Wear(context.Background(), []uuid.UUID{newShirt.ID}, true); err != nil {
		t.Fatalf("wear: %v", err)
	}
	worn, _ := m.Worn(context.Background())
	if len(worn) != 1 || worn[0].ID != newShirt.ID {
		t.Fatalf("unexpected worn set: %+v", worn)
	}
}
