package notify

import (
	"log/slog"

	"github.com/google/uuid"

	"corrade/internal/auth"
	"corrade/internal/delivery"
	"corrade/internal/filter"
	"corrade/internal/model"
	"corrade/internal/pool"
	"corrade/internal/session"
	"corrade/internal/wire"
)

// Recorder counts notifications handed to the delivery queue.
type Recorder interface {
	Notification(kind string)
}

type AvatarState struct {
	Name     string
	Position model.Vector3
}

type PrimitiveState struct {
	Name        string
	Description string
	Owner       uuid.UUID
	Position    model.Vector3
}

type Options struct {
	Groups   *auth.Groups
	Registry *Registry
	Queue    *delivery.Queue
	Pipeline *filter.Pipeline
	Budget   *pool.Budget
	// Threads is read on every send so the pool budget can change at
	// runtime.
	Threads  func() int
	Logger   *slog.Logger
	Recorder Recorder
}

// Engine decides who wants a notification and enqueues one delivery per
// destination URL.
type Engine struct {
	opts Options

	Avatars    *Radar[AvatarState]
	Primitives *Radar[PrimitiveState]
	Effects    *Effects
	ChatLog    *ChatLog
}

func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		opts:       opts,
		Avatars:    NewRadar[AvatarState](),
		Primitives: NewRadar[PrimitiveState](),
		Effects:    NewEffects(),
		ChatLog:    NewChatLog(),
	}
}

type target struct {
	group string
	urls  []string
}

// Send delivers n to every interested group. Nothing is built unless some
// configured group both allows the kind and has a live registration for
// it. Send reports whether delivery was scheduled.
func (e *Engine) Send(n Notification) bool {
	targets := e.targets(n)
	if len(targets) == 0 {
		return false
	}
	return e.opts.Budget.Spawn(pool.Notification, func() {
		e.deliver(n, targets)
	}, e.opts.Threads())
}

// Interested is the cheap pre-check callers use before doing any work to
// construct a notification.
func (e *Engine) Interested(kind model.NotificationKind) bool {
	if !e.opts.Registry.Interested(kind) {
		return false
	}
	for _, g := range e.opts.Groups.All() {
		if auth.CanNotify(g, kind) && len(e.opts.Registry.URLs(g.Name, kind)) > 0 {
			return true
		}
	}
	return false
}

func (e *Engine) targets(n Notification) []target {
	kind := n.Kind()
	if !e.opts.Registry.Interested(kind) {
		return nil
	}
	var scope uuid.UUID
	if s, ok := n.(Scoped); ok {
		scope = s.Scope()
	}
	var out []target
	for _, g := range e.opts.Groups.All() {
		if !auth.CanNotify(g, kind) {
			continue
		}
		if scope != uuid.Nil && g.UUID != scope {
			continue
		}
		urls := e.opts.Registry.URLs(g.Name, kind)
		if len(urls) == 0 {
			continue
		}
		out = append(out, target{group: g.Name, urls: urls})
	}
	return out
}

func (e *Engine) deliver(n Notification, targets []target) {
	kind := KindName(n.Kind())
	payload := n.Payload()
	payload["type"] = kind
	body := wire.Encode(wire.Escape(payload, e.opts.Pipeline))

	for _, t := range targets {
		for _, url := range t.urls {
			if !e.opts.Queue.TryEnqueue(url, body) {
				e.opts.Logger.Debug("notification queue full, dropping",
					"kind", kind, "group", t.group, "url", url)
				continue
			}
			if e.opts.Recorder != nil {
				e.opts.Recorder.Notification(kind)
			}
		}
	}
}

// Handle turns one world event into notifications, keeping the radar and
// effect trackers current. It reports whether anything was sent.
func (e *Engine) Handle(ev session.Event) bool {
	switch ev := ev.(type) {
	case session.AvatarAppearedEvent:
		if !e.Avatars.Appear(ev.ID, AvatarState{Name: ev.Name, Position: ev.Position}) {
			return false
		}
		return e.Send(RadarAvatar{ID: ev.ID, Name: ev.Name, Position: ev.Position, Appeared: true})
	case session.AvatarVanishedEvent:
		st, ok := e.Avatars.Vanish(ev.ID)
		if !ok {
			return false
		}
		return e.Send(RadarAvatar{ID: ev.ID, Name: st.Name, Position: st.Position})
	case session.PrimitiveAppearedEvent:
		st := PrimitiveState{Name: ev.Name, Description: ev.Description, Owner: ev.OwnerID, Position: ev.Position}
		if !e.Primitives.Appear(ev.ID, st) {
			return false
		}
		return e.Send(RadarPrimitive{ID: ev.ID, Name: ev.Name, Description: ev.Description, Owner: ev.OwnerID, Position: ev.Position, Appeared: true})
	case session.PrimitiveVanishedEvent:
		st, ok := e.Primitives.Vanish(ev.ID)
		if !ok {
			return false
		}
		return e.Send(RadarPrimitive{ID: ev.ID, Name: st.Name, Description: st.Description, Owner: st.Owner, Position: st.Position})
	case session.TerseUpdateEvent:
		if ev.Avatar {
			e.Avatars.Update(ev.ID, func(s *AvatarState) { s.Position = ev.Position })
		} else {
			e.Primitives.Update(ev.ID, func(s *PrimitiveState) { s.Position = ev.Position })
		}
		return e.Send(Terse{ev})
	case session.RegionCrossedEvent:
		e.Avatars.Reset()
		e.Primitives.Reset()
		return e.Send(Crossing{ev})
	case session.ViewerEffectEvent:
		e.Effects.Track(ev)
		return e.Send(Effect{ev})
	}
	n, ok := FromEvent(ev)
	if !ok {
		return false
	}
	return e.Send(n)
}

// GroupChat logs the line to the group's chat log when enabled and sends
// the group notification.
func (e *Engine) GroupChat(ev session.GroupChatEvent, groupName string) bool {
	if g, ok := e.opts.Groups.ByID(ev.GroupID); ok && g.ChatLog.Enabled && g.ChatLog.File != "" {
		if err := e.ChatLog.Append(g.ChatLog.File, ev.FromName, ev.Message); err != nil {
			e.opts.Logger.Warn("group chat log write failed", "group", g.Name, "error", err)
		}
	}
	return e.Send(GroupChat{GroupChatEvent: ev, GroupName: groupName})
}
