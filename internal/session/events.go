package session

import (
	"time"

	"github.com/google/uuid"

	"corrade/internal/model"
)

// Event is anything the grid pushes at the agent.
type Event interface {
	EventName() string
}

type ChatEvent struct {
	Message      string        `json:"message"`
	FromName     string        `json:"from_name"`
	SourceID     uuid.UUID     `json:"source_id"`
	OwnerID      uuid.UUID     `json:"owner_id"`
	SourceType   SourceType    `json:"source_type"`
	Type         ChatType      `json:"type"`
	Channel      int           `json:"channel"`
	Position     model.Vector3 `json:"position"`
	AudibleLevel string        `json:"audible_level"`
}

type InstantMessageEvent struct {
	FromID     uuid.UUID `json:"from_id"`
	FromName   string    `json:"from_name"`
	Message    string    `json:"message"`
	FromObject bool      `json:"from_object"`
	Offline    bool      `json:"offline"`
}

type GroupChatEvent struct {
	GroupID  uuid.UUID `json:"group_id"`
	FromID   uuid.UUID `json:"from_id"`
	FromName string    `json:"from_name"`
	Message  string    `json:"message"`
}

type GroupNoticeEvent struct {
	GroupID  uuid.UUID `json:"group_id"`
	FromID   uuid.UUID `json:"from_id"`
	FromName string    `json:"from_name"`
	Subject  string    `json:"subject"`
	Message  string    `json:"message"`
}

type AlertEvent struct {
	Message string `json:"message"`
}

type RegionMessageEvent struct {
	FromName string `json:"from_name"`
	Message  string `json:"message"`
}

type BalanceEvent struct {
	Balance int `json:"balance"`
}

type MoneyTransactionEvent struct {
	TransactionID   uuid.UUID `json:"transaction_id"`
	Success         bool      `json:"success"`
	Balance         int       `json:"balance"`
	Committed       int       `json:"committed"`
	Credit          int       `json:"credit"`
	Amount          int       `json:"amount"`
	Source          uuid.UUID `json:"source"`
	Target          uuid.UUID `json:"target"`
	TransactionType string    `json:"transaction_type"`
	Description     string    `json:"description"`
}

type FriendshipOfferEvent struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

type InventoryOfferEvent struct {
	OfferID    uuid.UUID `json:"offer_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	ItemName   string    `json:"item_name"`
	AssetType  string    `json:"asset_type"`
}

type ScriptPermissionEvent struct {
	ItemID      uuid.UUID `json:"item_id"`
	TaskID      uuid.UUID `json:"task_id"`
	ObjectName  string    `json:"object_name"`
	OwnerName   string    `json:"owner_name"`
	Permissions string    `json:"permissions"`
	Region      string    `json:"region"`
}

type TeleportLureEvent struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

type ViewerEffectEvent struct {
	EffectID uuid.UUID     `json:"effect_id"`
	Effect   string        `json:"effect"`
	SourceID uuid.UUID     `json:"source_id"`
	TargetID uuid.UUID     `json:"target_id"`
	Position model.Vector3 `json:"position"`
	Duration time.Duration `json:"duration"`
}

type ScriptDialogEvent struct {
	DialogID   uuid.UUID `json:"dialog_id"`
	ObjectID   uuid.UUID `json:"object_id"`
	ObjectName string    `json:"object_name"`
	OwnerName  string    `json:"owner_name"`
	Message    string    `json:"message"`
	Channel    int       `json:"channel"`
	Buttons    []string  `json:"buttons"`
}

type GroupInviteEvent struct {
	GroupID   uuid.UUID `json:"group_id"`
	GroupName string    `json:"group_name"`
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	SessionID uuid.UUID `json:"session_id"`
	Fee       int       `json:"fee"`
	Message   string    `json:"message"`
}

type TypingEvent struct {
	AgentID   uuid.UUID `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	Started   bool      `json:"started"`
}

type AvatarAppearedEvent struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Position model.Vector3 `json:"position"`
}

type AvatarVanishedEvent struct {
	ID uuid.UUID `json:"id"`
}

type PrimitiveAppearedEvent struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	OwnerID     uuid.UUID     `json:"owner_id"`
	Position    model.Vector3 `json:"position"`
}

type PrimitiveVanishedEvent struct {
	ID uuid.UUID `json:"id"`
}

type TerseUpdateEvent struct {
	ID       uuid.UUID     `json:"id"`
	Avatar   bool          `json:"avatar"`
	Position model.Vector3 `json:"position"`
	Rotation float64       `json:"rotation"`
}

type RegionCrossedEvent struct {
	OldRegion string `json:"old_region"`
	NewRegion string `json:"new_region"`
}

type SitChangedEvent struct {
	ObjectID uuid.UUID `json:"object_id"`
	Sitting  bool      `json:"sitting"`
}

type MuteChangedEvent struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Muted  bool      `json:"muted"`
	Reason string    `json:"reason"`
}

type GroupJoinedEvent struct {
	GroupID   uuid.UUID `json:"group_id"`
	GroupName string    `json:"group_name"`
}

type GroupLeftEvent struct {
	GroupID uuid.UUID `json:"group_id"`
}

func (ChatEvent) EventName() string              { return "chat" }
func (InstantMessageEvent) EventName() string    { return "instant_message" }
func (GroupChatEvent) EventName() string         { return "group_chat" }
func (GroupNoticeEvent) EventName() string       { return "group_notice" }
func (AlertEvent) EventName() string             { return "alert" }
func (RegionMessageEvent) EventName() string     { return "region_message" }
func (BalanceEvent) EventName() string           { return "balance" }
func (MoneyTransactionEvent) EventName() string  { return "money_transaction" }
func (FriendshipOfferEvent) EventName() string   { return "friendship_offer" }
func (InventoryOfferEvent) EventName() string    { return "inventory_offer" }
func (ScriptPermissionEvent) EventName() string  { return "script_permission" }
func (TeleportLureEvent) EventName() string      { return "teleport_lure" }
func (ViewerEffectEvent) EventName() string      { return "viewer_effect" }
func (ScriptDialogEvent) EventName() string      { return "script_dialog" }
func (GroupInviteEvent) EventName() string       { return "group_invite" }
func (TypingEvent) EventName() string            { return "typing" }
func (AvatarAppearedEvent) EventName() string    { return "avatar_appeared" }
func (AvatarVanishedEvent) EventName() string    { return "avatar_vanished" }
func (PrimitiveAppearedEvent) EventName() string { return "primitive_appeared" }
func (PrimitiveVanishedEvent) EventName() string { return "primitive_vanished" }
func (TerseUpdateEvent) EventName() string       { return "terse_update" }
func (RegionCrossedEvent) EventName() string     { return "region_crossed" }
func (SitChangedEvent) EventName() string        { return "sit_changed" }
func (MuteChangedEvent) EventName() string       { return "mute_changed" }
func (GroupJoinedEvent) EventName() string       { return "group_joined" }
func (GroupLeftEvent) EventName() string         { return "group_left" }

// NewEvent returns a zero value of the named event, used by drivers that
// decode events off a wire. The second result is false for unknown names.
func NewEvent(name string) (Event, bool) {
	f, ok := eventFactories[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

var eventFactories = map[string]func() Event{
	"chat":               func() Event { return &ChatEvent{} },
	"instant_message":    func() Event { return &InstantMessageEvent{} },
	"group_chat":         func() Event { return &GroupChatEvent{} },
	"group_notice":       func() Event { return &GroupNoticeEvent{} },
	"alert":              func() Event { return &AlertEvent{} },
	"region_message":     func() Event { return &RegionMessageEvent{} },
	"balance":            func() Event { return &BalanceEvent{} },
	"money_transaction":  func() Event { return &MoneyTransactionEvent{} },
	"friendship_offer":   func() Event { return &FriendshipOfferEvent{} },
	"inventory_offer":    func() Event { return &InventoryOfferEvent{} },
	"script_permission":  func() Event { return &ScriptPermissionEvent{} },
	"teleport_lure":      func() Event { return &TeleportLureEvent{} },
	"viewer_effect":      func() Event { return &ViewerEffectEvent{} },
	"script_dialog":      func() Event { return &ScriptDialogEvent{} },
	"group_invite":       func() Event { return &GroupInviteEvent{} },
	"typing":             func() Event { return &TypingEvent{} },
	"avatar_appeared":    func() Event { return &AvatarAppearedEvent{} },
	"avatar_vanished":    func() Event { return &AvatarVanishedEvent{} },
	"primitive_appeared": func() Event { return &PrimitiveAppearedEvent{} },
	"primitive_vanished": func() Event { return &PrimitiveVanishedEvent{} },
	"terse_update":       func() Event { return &TerseUpdateEvent{} },
	"region_crossed":     func() Event { return &RegionCrossedEvent{} },
	"sit_changed":        func() Event { return &SitChangedEvent{} },
	"mute_changed":       func() Event { return &MuteChangedEvent{} },
	"group_joined":       func() Event { return &GroupJoinedEvent{} },
	"group_left":         func() Event { return &GroupLeftEvent{} },
}

// Deref turns a pointer produced by NewEvent back into its value form so
// consumers can switch on value types only.
func Deref(ev Event) Event {
	switch e := ev.(type) {
	case *ChatEvent:
		return *e
	case *InstantMessageEvent:
		return *e
	case *GroupChatEvent:
		return *e
	case *GroupNoticeEvent:
		return *e
	case *AlertEvent:
		return *e
	case *RegionMessageEvent:
		return *e
	case *BalanceEvent:
		return *e
	case *MoneyTransactionEvent:
		return *e
	case *FriendshipOfferEvent:
		return *e
	case *InventoryOfferEvent:
		return *e
	case *ScriptPermissionEvent:
		return *e
	case *TeleportLureEvent:
		return *e
	case *ViewerEffectEvent:
		return *e
	case *ScriptDialogEvent:
		return *e
	case *GroupInviteEvent:
		return *e
	case *TypingEvent:
		return *e
	case *AvatarAppearedEvent:
		return *e
	case *AvatarVanishedEvent:
		return *e
	case *PrimitiveAppearedEvent:
		return *e
	case *PrimitiveVanishedEvent:
		return *e
	case *TerseUpdateEvent:
		return *e
	case *RegionCrossedEvent:
		return *e
	case *SitChangedEvent:
		return *e
	case *MuteChangedEvent:
		return *e
	case *GroupJoinedEvent:
		return *e
	case *GroupLeftEvent:
		return *e
	}
	return ev
}
