// Package session is the boundary to the virtual-world grid. The grid
// protocol itself lives behind Session; this package only describes the
// requests the agent makes and the events it consumes.
package session

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrTimeout  = errors.New("session request timed out")
	ErrClosed   = errors.New("session closed")
)

type ChatType int

const (
	ChatWhisper ChatType = iota
	ChatNormal
	ChatShout
	ChatOwnerSay
	ChatRegionSay
	ChatDebug
)

var chatTypeNames = map[ChatType]string{
	ChatWhisper:   "Whisper",
	ChatNormal:    "Normal",
	ChatShout:     "Shout",
	ChatOwnerSay:  "OwnerSay",
	ChatRegionSay: "RegionSay",
	ChatDebug:     "Debug",
}

func (c ChatType) String() string {
	if n, ok := chatTypeNames[c]; ok {
		return n
	}
	return "Unknown"
}

// ParseChatType accepts the names used by the tell command.
func ParseChatType(s string) (ChatType, bool) {
	for t, n := range chatTypeNames {
		if strings.EqualFold(n, s) {
			return t, true
		}
	}
	return 0, false
}

type SourceType int

const (
	SourceAgent SourceType = iota
	SourceObject
	SourceSystem
)

func (s SourceType) String() string {
	switch s {
	case SourceAgent:
		return "Agent"
	case SourceObject:
		return "Object"
	default:
		return "System"
	}
}

// Self is the agent's own state.
type Self struct {
	ID          uuid.UUID
	FirstName   string
	LastName    string
	Region      string
	Position    model.Vector3
	Rotation    float64
	SittingOn   uuid.UUID
	ActiveGroup uuid.UUID
}

// MemberBatch receives one streamed slice of group member IDs.
type MemberBatch func(members []uuid.UUID)

// Session is the live grid connection. Implementations must be safe for
// concurrent use; handlers passed to Subscribe run on the session's own
// goroutines and must return quickly.
type Session interface {
	Self() Self
	Subscribe(handler func(Event)) (unsubscribe func())

	Say(ctx context.Context, channel int, message string, chatType ChatType) error
	InstantMessage(ctx context.Context, agent uuid.UUID, message string) error
	GroupMessage(ctx context.Context, group uuid.UUID, message string) error

	AgentName(ctx context.Context, id uuid.UUID) (string, error)
	AgentID(ctx context.Context, firstName, lastName string) (uuid.UUID, error)
	GroupName(ctx context.Context, id uuid.UUID) (string, error)
	GroupID(ctx context.Context, name string) (uuid.UUID, error)

	CurrentGroups(ctx context.Context) ([]uuid.UUID, error)
	// RequestGroupMembers starts a member listing. Batches arrive on
	// onBatch until the grid has nothing more to send; the end of the
	// stream is not signalled.
	RequestGroupMembers(ctx context.Context, group uuid.UUID, onBatch MemberBatch) error
	ActivateGroup(ctx context.Context, group uuid.UUID) error

	Balance(ctx context.Context) (int, error)
	Teleport(ctx context.Context, region string, position model.Vector3) error
	Sit(ctx context.Context, object uuid.UUID) error
	Stand(ctx context.Context) error
	SetRotation(ctx context.Context, radians float64) error

	SharedFolder(ctx context.Context) (*Folder, error)
	Worn(ctx context.Context) ([]Item, error)
	Wear(ctx context.Context, items []uuid.UUID, replace bool) error
	Attach(ctx context.Context, item uuid.UUID, point string, replace bool) error
	Detach(ctx context.Context, items []uuid.UUID) error

	ReplyInventoryOffer(ctx context.Context, offer model.InventoryOffer, accept bool) error
	ReplyDialog(ctx context.Context, dialog ScriptDialogEvent, channel int, button string) error
	AcceptFriendship(ctx context.Context, agent uuid.UUID, session uuid.UUID) error
	AcceptTeleportLure(ctx context.Context, agent uuid.UUID, session uuid.UUID) error
	AcceptGroupInvite(ctx context.Context, invite GroupInviteEvent) error
}

// SplitName turns "First Last" into its parts; a single word gets the
// grid's default "Resident" last name.
func SplitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], "Resident"
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
