// Package notify turns world events into typed notifications and fans
// them out to the callback URLs groups have registered.
package notify

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/model"
	"corrade/internal/session"
	"corrade/internal/wire"
)

// Notification is one deliverable event. Payload is only called once the
// engine knows somebody wants the notification.
type Notification interface {
	Kind() model.NotificationKind
	Payload() map[string]string
}

// Scoped notifications concern a single grid group and are only sent to
// the configured group with that UUID.
type Scoped interface {
	Scope() uuid.UUID
}

type Alert struct{ session.AlertEvent }

func (Alert) Kind() model.NotificationKind { return model.NotificationAlert }
func (n Alert) Payload() map[string]string {
	return map[string]string{"message": n.Message}
}

type RegionMessage struct{ session.RegionMessageEvent }

func (RegionMessage) Kind() model.NotificationKind { return model.NotificationRegion }
func (n RegionMessage) Payload() map[string]string {
	p := names(n.FromName)
	p["message"] = n.Message
	return p
}

type Balance struct{ session.BalanceEvent }

func (Balance) Kind() model.NotificationKind { return model.NotificationBalance }
func (n Balance) Payload() map[string]string {
	return map[string]string{"balance": strconv.Itoa(n.BalanceEvent.Balance)}
}

type Economy struct{ session.MoneyTransactionEvent }

func (Economy) Kind() model.NotificationKind { return model.NotificationEconomy }
func (n Economy) Payload() map[string]string {
	return map[string]string{
		"balance":         strconv.Itoa(n.Balance),
		"description":     n.Description,
		"committed":       strconv.Itoa(n.Committed),
		"credit":          strconv.Itoa(n.Credit),
		"success":         boolString(n.Success),
		"transactionID":   n.TransactionID.String(),
		"amount":          strconv.Itoa(n.Amount),
		"target":          n.Target.String(),
		"source":          n.Source.String(),
		"transactionType": n.TransactionType,
	}
}

type InstantMessage struct{ session.InstantMessageEvent }

func (InstantMessage) Kind() model.NotificationKind { return model.NotificationMessage }
func (n InstantMessage) Payload() map[string]string {
	p := names(n.FromName)
	p["agent"] = n.FromID.String()
	p["message"] = n.Message
	return p
}

type GroupChat struct {
	session.GroupChatEvent
	GroupName string
}

func (GroupChat) Kind() model.NotificationKind { return model.NotificationGroup }
func (n GroupChat) Scope() uuid.UUID           { return n.GroupID }
func (n GroupChat) Payload() map[string]string {
	p := names(n.FromName)
	p["group"] = n.GroupName
	p["agent"] = n.FromID.String()
	p["message"] = n.Message
	return p
}

type GroupNotice struct {
	session.GroupNoticeEvent
	GroupName string
}

func (GroupNotice) Kind() model.NotificationKind { return model.NotificationNotice }
func (n GroupNotice) Scope() uuid.UUID           { return n.GroupID }
func (n GroupNotice) Payload() map[string]string {
	p := names(n.FromName)
	p["group"] = n.GroupName
	p["agent"] = n.FromID.String()
	p["subject"] = n.Subject
	p["message"] = n.Message
	return p
}

// Chat covers local chat, owner-say and region-say; the chat type picks
// the kind.
type Chat struct{ session.ChatEvent }

func (n Chat) Kind() model.NotificationKind {
	switch n.Type {
	case session.ChatOwnerSay:
		return model.NotificationOwnerSay
	case session.ChatRegionSay:
		return model.NotificationRegionSay
	default:
		return model.NotificationLocal
	}
}

func (n Chat) Payload() map[string]string {
	p := names(n.FromName)
	p["message"] = n.Message
	p["position"] = n.Position.String()
	p["sourceID"] = n.SourceID.String()
	p["sourceType"] = n.SourceType.String()
	p["audibleLevel"] = n.AudibleLevel
	p["chatType"] = n.ChatEvent.Type.String()
	if n.OwnerID != uuid.Nil {
		p["owner"] = n.OwnerID.String()
	}
	if n.Channel != 0 {
		p["channel"] = strconv.Itoa(n.Channel)
	}
	return p
}

type Dialog struct{ session.ScriptDialogEvent }

func (Dialog) Kind() model.NotificationKind { return model.NotificationDialog }
func (n Dialog) Payload() map[string]string {
	p := names(n.OwnerName)
	p["message"] = n.Message
	p["channel"] = strconv.Itoa(n.Channel)
	p["name"] = n.ObjectName
	p["item"] = n.ObjectID.String()
	p["dialog"] = n.DialogID.String()
	p["button"] = wire.CSV(n.Buttons)
	return p
}

type Friendship struct{ session.FriendshipOfferEvent }

func (Friendship) Kind() model.NotificationKind { return model.NotificationFriendship }
func (n Friendship) Payload() map[string]string {
	p := names(n.AgentName)
	p["agent"] = n.AgentID.String()
	p["session"] = n.SessionID.String()
	p["message"] = n.Message
	p["action"] = "request"
	return p
}

// InventoryOffer reports an offer and, later, how it was resolved.
type InventoryOffer struct {
	Offer  model.InventoryOffer
	Action string
}

func (InventoryOffer) Kind() model.NotificationKind { return model.NotificationInventory }
func (n InventoryOffer) Payload() map[string]string {
	p := names(n.Offer.SenderName)
	p["agent"] = n.Offer.Sender.String()
	p["session"] = n.Offer.ID.String()
	p["name"] = n.Offer.ItemName
	p["asset"] = n.Offer.AssetType
	p["action"] = n.Action
	return p
}

type ScriptPermission struct{ session.ScriptPermissionEvent }

func (ScriptPermission) Kind() model.NotificationKind { return model.NotificationPermission }
func (n ScriptPermission) Payload() map[string]string {
	p := names(n.OwnerName)
	p["item"] = n.ItemID.String()
	p["task"] = n.TaskID.String()
	p["name"] = n.ObjectName
	p["permissions"] = n.Permissions
	p["region"] = n.Region
	return p
}

type Lure struct{ session.TeleportLureEvent }

func (Lure) Kind() model.NotificationKind { return model.NotificationLure }
func (n Lure) Payload() map[string]string {
	p := names(n.AgentName)
	p["agent"] = n.AgentID.String()
	p["session"] = n.SessionID.String()
	p["message"] = n.Message
	return p
}

type Effect struct{ session.ViewerEffectEvent }

func (Effect) Kind() model.NotificationKind { return model.NotificationEffect }
func (n Effect) Payload() map[string]string {
	return map[string]string{
		"effect":   n.Effect,
		"id":       n.EffectID.String(),
		"source":   n.SourceID.String(),
		"target":   n.TargetID.String(),
		"position": n.Position.String(),
	}
}

// Membership reports one agent joining or parting a group.
type Membership struct {
	GroupID   uuid.UUID
	GroupName string
	Agent     uuid.UUID
	AgentName string
	Joined    bool
}

func (Membership) Kind() model.NotificationKind { return model.NotificationMembership }
func (n Membership) Scope() uuid.UUID           { return n.GroupID }
func (n Membership) Payload() map[string]string {
	p := names(n.AgentName)
	p["group"] = n.GroupName
	p["agent"] = n.Agent.String()
	p["action"] = "parted"
	if n.Joined {
		p["action"] = "joined"
	}
	return p
}

type RadarAvatar struct {
	ID       uuid.UUID
	Name     string
	Position model.Vector3
	Appeared bool
}

func (RadarAvatar) Kind() model.NotificationKind { return model.NotificationRadarAvatars }
func (n RadarAvatar) Payload() map[string]string {
	p := names(n.Name)
	p["id"] = n.ID.String()
	p["position"] = n.Position.String()
	p["action"] = appearance(n.Appeared)
	return p
}

type RadarPrimitive struct {
	ID          uuid.UUID
	Name        string
	Description string
	Owner       uuid.UUID
	Position    model.Vector3
	Appeared    bool
}

func (RadarPrimitive) Kind() model.NotificationKind { return model.NotificationRadarPrimitives }
func (n RadarPrimitive) Payload() map[string]string {
	return map[string]string{
		"item":        n.ID.String(),
		"name":        n.Name,
		"description": n.Description,
		"owner":       n.Owner.String(),
		"position":    n.Position.String(),
		"action":      appearance(n.Appeared),
	}
}

type Typing struct{ session.TypingEvent }

func (Typing) Kind() model.NotificationKind { return model.NotificationTyping }
func (n Typing) Payload() map[string]string {
	p := names(n.AgentName)
	p["agent"] = n.AgentID.String()
	p["action"] = "stop"
	if n.Started {
		p["action"] = "start"
	}
	return p
}

type GroupInvite struct{ session.GroupInviteEvent }

func (GroupInvite) Kind() model.NotificationKind { return model.NotificationInvite }
func (n GroupInvite) Payload() map[string]string {
	p := names(n.AgentName)
	p["agent"] = n.AgentID.String()
	p["group"] = n.GroupName
	p["session"] = n.SessionID.String()
	p["fee"] = strconv.Itoa(n.Fee)
	p["message"] = n.Message
	return p
}

type Crossing struct{ session.RegionCrossedEvent }

func (Crossing) Kind() model.NotificationKind { return model.NotificationCrossing }
func (n Crossing) Payload() map[string]string {
	return map[string]string{"old": n.OldRegion, "new": n.NewRegion}
}

type Sit struct{ session.SitChangedEvent }

func (Sit) Kind() model.NotificationKind { return model.NotificationSit }
func (n Sit) Payload() map[string]string {
	action := "stand"
	if n.Sitting {
		action = "sit"
	}
	return map[string]string{"item": n.ObjectID.String(), "action": action}
}

type Terse struct{ session.TerseUpdateEvent }

func (Terse) Kind() model.NotificationKind { return model.NotificationTerse }
func (n Terse) Payload() map[string]string {
	entity := "Object"
	if n.Avatar {
		entity = "Avatar"
	}
	return map[string]string{
		"id":       n.ID.String(),
		"entity":   entity,
		"position": n.Position.String(),
		"rotation": strconv.FormatFloat(n.Rotation, 'f', -1, 64),
	}
}

type Mute struct{ session.MuteChangedEvent }

func (Mute) Kind() model.NotificationKind { return model.NotificationMute }
func (n Mute) Payload() map[string]string {
	action := "unmute"
	if n.Muted {
		action = "mute"
	}
	return map[string]string{
		"agent":  n.ID.String(),
		"name":   n.Name,
		"action": action,
		"reason": n.Reason,
	}
}

// FromEvent maps the stateless event variants to their notification.
// Radar, offer and group-scoped events need engine or service state and
// are not handled here.
func FromEvent(ev session.Event) (Notification, bool) {
	switch e := ev.(type) {
	case session.AlertEvent:
		return Alert{e}, true
	case session.RegionMessageEvent:
		return RegionMessage{e}, true
	case session.BalanceEvent:
		return Balance{e}, true
	case session.MoneyTransactionEvent:
		return Economy{e}, true
	case session.InstantMessageEvent:
		return InstantMessage{e}, true
	case session.ChatEvent:
		return Chat{e}, true
	case session.ScriptDialogEvent:
		return Dialog{e}, true
	case session.FriendshipOfferEvent:
		return Friendship{e}, true
	case session.ScriptPermissionEvent:
		return ScriptPermission{e}, true
	case session.TeleportLureEvent:
		return Lure{e}, true
	case session.ViewerEffectEvent:
		return Effect{e}, true
	case session.TypingEvent:
		return Typing{e}, true
	case session.GroupInviteEvent:
		return GroupInvite{e}, true
	case session.RegionCrossedEvent:
		return Crossing{e}, true
	case session.SitChangedEvent:
		return Sit{e}, true
	case session.TerseUpdateEvent:
		return Terse{e}, true
	case session.MuteChangedEvent:
		return Mute{e}, true
	}
	return nil, false
}

func names(full string) map[string]string {
	first, last := session.SplitName(full)
	return map[string]string{"firstname": first, "lastname": last}
}

func boolString(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func appearance(appeared bool) string {
	if appeared {
		return "appear"
	}
	return "vanish"
}

// KindName is the wire name of a single notification kind.
func KindName(k model.NotificationKind) string {
	return strings.ToLower(k.String())
}
