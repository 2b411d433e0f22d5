package service

import (
	"context"
	"strings"
	"time"

	"corrade/internal/config"
	"corrade/internal/model"
	"corrade/internal/notify"
	"corrade/internal/pool"
	"corrade/internal/session"
	"corrade/internal/wire"
)

// handleEvent is the session subscriber. It must not block: anything that
// talks back to the session runs on a pool slot or a tracked goroutine.
func (a *App) handleEvent(ev session.Event) {
	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error("event handler panicked", "event", ev.EventName(), "panic", r)
		}
	}()

	cfg := a.Config.Get()
	switch ev := ev.(type) {
	case session.ChatEvent:
		a.handleChat(cfg, ev)
	case session.InstantMessageEvent:
		if isCommand(ev.Message) {
			req := Request{Message: ev.Message, Sender: ev.FromName, Identifier: ev.FromID.String(), Origin: OriginIM}
			a.spawn(pool.InstantMessage, cfg.Limits.InstantMessageThreads, req)
			return
		}
		a.Notify.Handle(ev)
	case session.GroupChatEvent:
		if g, ok := a.Groups.ByID(ev.GroupID); ok {
			a.Notify.GroupChat(ev, g.Name)
		}
	case session.GroupNoticeEvent:
		if g, ok := a.Groups.ByID(ev.GroupID); ok {
			a.Notify.Send(notify.GroupNotice{GroupNoticeEvent: ev, GroupName: g.Name})
		}
	case session.InventoryOfferEvent:
		a.handleOffer(ev)
	case session.FriendshipOfferEvent:
		if a.isMaster(ev.AgentName) {
			a.background("accept friendship", func() {
				ctx, cancel := a.servicesContext()
				defer cancel()
				if err := a.Session.AcceptFriendship(ctx, ev.AgentID, ev.SessionID); err != nil {
					a.Logger.Warn("accept friendship", "agent", ev.AgentName, "error", err)
				}
			})
		}
		a.Notify.Handle(ev)
	case session.TeleportLureEvent:
		if a.isMaster(ev.AgentName) {
			a.background("accept teleport lure", func() {
				ctx, cancel := a.servicesContext()
				defer cancel()
				if err := a.Session.AcceptTeleportLure(ctx, ev.AgentID, ev.SessionID); err != nil {
					a.Logger.Warn("accept teleport lure", "agent", ev.AgentName, "error", err)
				}
			})
		}
		a.Notify.Handle(ev)
	case session.GroupInviteEvent:
		if a.isMaster(ev.AgentName) {
			a.background("accept group invite", func() {
				ctx, cancel := a.servicesContext()
				defer cancel()
				if err := a.Session.AcceptGroupInvite(ctx, ev); err != nil {
					a.Logger.Warn("accept group invite", "group", ev.GroupName, "error", err)
				}
			})
		}
		a.Notify.Handle(ev)
	case session.ScriptDialogEvent:
		a.Dialogs.Remember(ev)
		a.Notify.Handle(ev)
	case session.GroupJoinedEvent:
		a.Resolver.RememberGroup(ev.GroupID, ev.GroupName)
		a.Resolver.InvalidateCurrentGroups()
	case session.GroupLeftEvent:
		a.Resolver.InvalidateCurrentGroups()
	default:
		a.Notify.Handle(ev)
	}
}

func (a *App) handleChat(cfg config.Config, ev session.ChatEvent) {
	ownerSay := ev.Type == session.ChatOwnerSay
	if ownerSay && cfg.RLV.Enabled && strings.HasPrefix(ev.Message, "@") {
		source, message := ev.SourceID, ev.Message
		if !a.Budget.Spawn(pool.RLV, func() { a.RLV.Process(a.ctx, source, message) }, cfg.Limits.RLVThreads) {
			a.Logger.Debug("rlv pool full, dropping", "object", source)
		}
		return
	}
	onCommandChannel := cfg.CommandChannel != 0 && ev.Channel == cfg.CommandChannel
	if (ownerSay || onCommandChannel) && isCommand(ev.Message) {
		sender := ev.FromName
		if ev.SourceType == session.SourceObject && cfg.Session.SenderIsObjectUUID {
			sender = ev.OwnerID.String()
		}
		req := Request{Message: ev.Message, Sender: sender, Identifier: ev.SourceID.String(), Origin: OriginChat}
		a.spawn(pool.Command, cfg.Limits.CommandThreads, req)
		return
	}
	a.Notify.Handle(ev)
}

func (a *App) spawn(kind pool.Kind, max int, req Request) {
	if !a.Budget.Spawn(kind, func() { a.Dispatch(a.ctx, req) }, max) {
		a.Logger.Debug("command pool full, dropping", "pool", string(kind), "sender", req.Sender)
	}
}

func (a *App) handleOffer(ev session.InventoryOfferEvent) {
	offer := model.InventoryOffer{
		ID:         ev.OfferID,
		Sender:     ev.SenderID,
		SenderName: ev.SenderName,
		ItemName:   ev.ItemName,
		AssetType:  ev.AssetType,
		State:      model.OfferPending,
		Received:   time.Now().UTC(),
	}
	if a.isMaster(ev.SenderName) {
		a.background("accept inventory offer", func() { a.resolveOffer(offer, true) })
		return
	}
	a.saveOffer(offer)
	a.Notify.Send(notify.InventoryOffer{Offer: offer, Action: "offer"})
	a.trackOffer(offer)
}

// trackOffer files offer as pending and waits in the background for its
// decision.
func (a *App) trackOffer(offer model.InventoryOffer) {
	gate := a.Offers.Add(offer)
	if gate == nil {
		return
	}
	a.background("inventory offer", func() {
		a.resolveOffer(offer, <-gate)
	})
}

func (a *App) resolveOffer(offer model.InventoryOffer, accept bool) {
	ctx, cancel := a.servicesContext()
	defer cancel()
	if err := a.Session.ReplyInventoryOffer(ctx, offer, accept); err != nil {
		a.Logger.Warn("reply to inventory offer", "offer", offer.ID, "error", err)
	}
	action := "decline"
	offer.State = model.OfferDeclined
	if accept {
		action = "accept"
		offer.State = model.OfferAccepted
	}
	a.saveOffer(offer)
	a.Notify.Send(notify.InventoryOffer{Offer: offer, Action: action})
}

func (a *App) saveOffer(offer model.InventoryOffer) {
	if a.Store == nil {
		return
	}
	ctx, cancel := a.servicesContext()
	defer cancel()
	if err := a.Store.UpsertOffer(ctx, offer); err != nil {
		a.Logger.Warn("save inventory offer", "offer", offer.ID, "error", err)
	}
}

func (a *App) servicesContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(a.ctx), config.ServicesTimeout(a.Config.Get()))
}

func (a *App) isMaster(fullName string) bool {
	first, last := session.SplitName(fullName)
	for _, m := range a.Masters {
		if m.Matches(first, last) {
			return true
		}
	}
	return false
}

// isCommand reports whether message decodes to a wire request naming a
// group.
func isCommand(message string) bool {
	_, ok := wire.Decode(message)["group"]
	return ok
}
