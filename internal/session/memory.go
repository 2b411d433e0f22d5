package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"corrade/internal/model"
)

// Said is one chat line the agent sent.
type Said struct {
	Channel int
	Message string
	Type    ChatType
}

// Sent is one instant or group message the agent sent.
type Sent struct {
	To      uuid.UUID
	Message string
}

// Reply records an answer given to an offer, dialog or invitation.
type Reply struct {
	ID     uuid.UUID
	Accept bool
	Detail string
}

// Memory is an in-process Session. It keeps a small world model that
// tests and the offline driver populate directly, and records everything
// the agent does.
type Memory struct {
	mu          sync.Mutex
	self        Self
	handlers    map[int]func(Event)
	nextHandler int

	agents  map[uuid.UUID]string
	groups  map[uuid.UUID]string
	members map[uuid.UUID][]uuid.UUID
	current []uuid.UUID
	balance int
	shared  *Folder
	worn    []Item
	objects map[uuid.UUID]bool

	said      []Said
	ims       []Sent
	groupMsgs []Sent
	replies   []Reply
	teleports []string

	// BatchSize bounds how many members one RequestGroupMembers batch
	// carries.
	BatchSize int
}

func NewMemory(self Self) *Memory {
	if self.ID == uuid.Nil {
		self.ID = uuid.New()
	}
	return &Memory{
		self:      self,
		handlers:  map[int]func(Event){},
		agents:    map[uuid.UUID]string{self.ID: strings.TrimSpace(self.FirstName + " " + self.LastName)},
		groups:    map[uuid.UUID]string{},
		members:   map[uuid.UUID][]uuid.UUID{},
		objects:   map[uuid.UUID]bool{},
		shared:    &Folder{ID: uuid.New(), Name: "#RLV"},
		BatchSize: 50,
	}
}

// Emit delivers ev to every subscriber on the calling goroutine.
func (m *Memory) Emit(ev Event) {
	m.mu.Lock()
	hs := make([]func(Event), 0, len(m.handlers))
	for _, h := range m.handlers {
		hs = append(hs, h)
	}
	m.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

func (m *Memory) AddAgent(id uuid.UUID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[id] = name
}

// AddGroup registers a group with its roster. Joined groups show up in
// CurrentGroups.
func (m *Memory) AddGroup(id uuid.UUID, name string, joined bool, members ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[id] = name
	m.members[id] = append([]uuid.UUID(nil), members...)
	if joined && !containsID(m.current, id) {
		m.current = append(m.current, id)
	}
}

// SetMembers replaces the roster of group.
func (m *Memory) SetMembers(group uuid.UUID, members ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[group] = append([]uuid.UUID(nil), members...)
}

func (m *Memory) LeaveGroup(group uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = removeID(m.current, group)
}

func (m *Memory) SetBalance(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = v
}

// SetSharedFolder replaces the #RLV folder tree.
func (m *Memory) SetSharedFolder(f *Folder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shared = f
}

// AddObject makes id a sittable object in range.
func (m *Memory) AddObject(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = true
}

func (m *Memory) Said() []Said {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Said(nil), m.said...)
}

func (m *Memory) InstantMessages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.ims...)
}

func (m *Memory) GroupMessages() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Sent(nil), m.groupMsgs...)
}

func (m *Memory) Replies() []Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reply(nil), m.replies...)
}

func (m *Memory) Teleports() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.teleports...)
}

func (m *Memory) Self() Self {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

func (m *Memory) Subscribe(handler func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextHandler
	m.nextHandler++
	m.handlers[id] = handler
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.handlers, id)
	}
}

func (m *Memory) Say(ctx context.Context, channel int, message string, chatType ChatType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.said = append(m.said, Said{Channel: channel, Message: message, Type: chatType})
	return nil
}

func (m *Memory) InstantMessage(ctx context.Context, agent uuid.UUID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ims = append(m.ims, Sent{To: agent, Message: message})
	return nil
}

func (m *Memory) GroupMessage(ctx context.Context, group uuid.UUID, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !containsID(m.current, group) {
		return fmt.Errorf("group %s: %w", group, ErrNotFound)
	}
	m.groupMsgs = append(m.groupMsgs, Sent{To: group, Message: message})
	return nil
}

func (m *Memory) AgentName(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.agents[id]; ok {
		return n, nil
	}
	return "", fmt.Errorf("agent %s: %w", id, ErrNotFound)
}

func (m *Memory) AgentID(_ context.Context, firstName, lastName string) (uuid.UUID, error) {
	want := strings.TrimSpace(firstName + " " + lastName)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.agents {
		if strings.EqualFold(n, want) {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("agent %q: %w", want, ErrNotFound)
}

func (m *Memory) GroupName(_ context.Context, id uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.groups[id]; ok {
		return n, nil
	}
	return "", fmt.Errorf("group %s: %w", id, ErrNotFound)
}

func (m *Memory) GroupID(_ context.Context, name string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.groups {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("group %q: %w", name, ErrNotFound)
}

func (m *Memory) CurrentGroups(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.current...), nil
}

// RequestGroupMembers streams the roster in BatchSize slices from a
// separate goroutine, like a grid reply arriving in several packets.
func (m *Memory) RequestGroupMembers(ctx context.Context, group uuid.UUID, onBatch MemberBatch) error {
	m.mu.Lock()
	roster, ok := m.members[group]
	roster = append([]uuid.UUID(nil), roster...)
	size := m.BatchSize
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("group %s: %w", group, ErrNotFound)
	}
	if size <= 0 {
		size = len(roster) + 1
	}
	go func() {
		for start := 0; start < len(roster); start += size {
			if ctx.Err() != nil {
				return
			}
			end := start + size
			if end > len(roster) {
				end = len(roster)
			}
			onBatch(roster[start:end])
		}
		if len(roster) == 0 {
			onBatch(nil)
		}
	}()
	return nil
}

func (m *Memory) ActivateGroup(_ context.Context, group uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if group != uuid.Nil && !containsID(m.current, group) {
		return fmt.Errorf("group %s: %w", group, ErrNotFound)
	}
	m.self.ActiveGroup = group
	return nil
}

func (m *Memory) Balance(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, nil
}

func (m *Memory) Teleport(ctx context.Context, region string, position model.Vector3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if region != "" {
		m.self.Region = region
	}
	m.self.Position = position
	m.self.SittingOn = uuid.Nil
	m.teleports = append(m.teleports, fmt.Sprintf("%s/%s", m.self.Region, position))
	return nil
}

func (m *Memory) Sit(_ context.Context, object uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.objects[object] {
		return fmt.Errorf("object %s: %w", object, ErrNotFound)
	}
	m.self.SittingOn = object
	return nil
}

func (m *Memory) Stand(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self.SittingOn = uuid.Nil
	return nil
}

func (m *Memory) SetRotation(_ context.Context, radians float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self.Rotation = radians
	return nil
}

func (m *Memory) SharedFolder(context.Context) (*Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shared == nil {
		return nil, fmt.Errorf("shared folder: %w", ErrNotFound)
	}
	return m.shared.Clone(), nil
}

// Worn returns worn items from the shared folder plus items marked worn
// with SetWorn.
func (m *Memory) Worn(context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Item(nil), m.worn...)
	if m.shared != nil {
		for _, it := range m.shared.AllItems() {
			if it.Worn {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

// SetWorn sets items worn outside the shared folder, such as body parts.
func (m *Memory) SetWorn(items ...Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worn = append([]Item(nil), items...)
}

func (m *Memory) Wear(_ context.Context, items []uuid.UUID, replace bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateItems(func(it *Item) {
		if containsID(items, it.ID) {
			it.Worn = true
			return
		}
		if replace && it.Worn && it.Kind == ItemClothing && wearsLayer(m.shared, items, it.Layer) {
			it.Worn = false
		}
	})
	return nil
}

func (m *Memory) Attach(_ context.Context, item uuid.UUID, point string, replace bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	m.updateItems(func(it *Item) {
		if it.ID == item {
			found = true
			it.Worn = true
			if point != "" {
				it.AttachPoint = point
			}
		}
	})
	if !found {
		return fmt.Errorf("item %s: %w", item, ErrNotFound)
	}
	if replace && point != "" {
		m.updateItems(func(it *Item) {
			if it.ID != item && it.Worn && strings.EqualFold(it.AttachPoint, point) {
				it.Worn = false
			}
		})
	}
	return nil
}

func (m *Memory) Detach(_ context.Context, items []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateItems(func(it *Item) {
		if containsID(items, it.ID) {
			it.Worn = false
		}
	})
	kept := m.worn[:0]
	for _, it := range m.worn {
		if !containsID(items, it.ID) {
			kept = append(kept, it)
		}
	}
	m.worn = kept
	return nil
}

func (m *Memory) ReplyInventoryOffer(_ context.Context, offer model.InventoryOffer, accept bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, Reply{ID: offer.ID, Accept: accept, Detail: "inventory"})
	return nil
}

func (m *Memory) ReplyDialog(_ context.Context, dialog ScriptDialogEvent, channel int, button string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, Reply{ID: dialog.DialogID, Accept: true, Detail: fmt.Sprintf("dialog:%d:%s", channel, button)})
	return nil
}

func (m *Memory) AcceptFriendship(_ context.Context, agent uuid.UUID, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, Reply{ID: agent, Accept: true, Detail: "friendship"})
	return nil
}

func (m *Memory) AcceptTeleportLure(_ context.Context, agent uuid.UUID, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, Reply{ID: agent, Accept: true, Detail: "lure"})
	return nil
}

func (m *Memory) AcceptGroupInvite(_ context.Context, invite GroupInviteEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, Reply{ID: invite.GroupID, Accept: true, Detail: "invite"})
	if !containsID(m.current, invite.GroupID) {
		m.current = append(m.current, invite.GroupID)
	}
	if invite.GroupName != "" {
		m.groups[invite.GroupID] = invite.GroupName
	}
	return nil
}

func (m *Memory) updateItems(fn func(*Item)) {
	if m.shared == nil {
		return
	}
	m.shared.Walk(func(_ string, f *Folder) bool {
		for i := range f.Items {
			fn(&f.Items[i])
		}
		return true
	})
}

func wearsLayer(root *Folder, items []uuid.UUID, layer string) bool {
	if root == nil || layer == "" {
		return false
	}
	for _, it := range root.AllItems() {
		if containsID(items, it.ID) && strings.EqualFold(it.Layer, layer) {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

var _ Session = (*Memory)(nil)
