// Package membership periodically lists the members of the configured
// groups and reports who joined or parted since the previous listing.
package membership

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"corrade/internal/auth"
	"corrade/internal/cache"
	"corrade/internal/model"
	"corrade/internal/notify"
	"corrade/internal/session"
)

// Notifier is the part of the notification engine the sweep needs.
type Notifier interface {
	Interested(kind model.NotificationKind) bool
	Send(n notify.Notification) bool
}

type Options struct {
	Groups   *auth.Groups
	Session  session.Session
	Resolver *cache.Resolver
	Notifier Notifier
	// Timeout bounds one group listing.
	Timeout func() time.Duration
	Logger  *slog.Logger
}

// Sweeper holds the last roster seen for every group. It is only used from
// the scheduler's single in-flight run, so the rosters need no lock.
type Sweeper struct {
	opts    Options
	rosters map[uuid.UUID]map[uuid.UUID]struct{}
}

func New(opts Options) *Sweeper {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Sweeper{opts: opts, rosters: map[uuid.UUID]map[uuid.UUID]struct{}{}}
}

// Sweep lists every configured group the agent belongs to and sends a
// membership notification for each change. The first listing of a group
// only seeds its roster. Sweep returns the number of changes seen.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if !s.opts.Notifier.Interested(model.NotificationMembership) {
		// Nobody listens; start over silently once somebody does.
		s.rosters = map[uuid.UUID]map[uuid.UUID]struct{}{}
		return 0
	}

	current, err := s.opts.Resolver.CurrentGroups(ctx)
	if err != nil {
		s.opts.Logger.Warn("membership sweep: current groups", "error", err)
		return 0
	}
	joined := make(map[uuid.UUID]struct{}, len(current))
	for _, id := range current {
		joined[id] = struct{}{}
	}
	for id := range s.rosters {
		if _, ok := joined[id]; !ok {
			delete(s.rosters, id)
		}
	}

	changes := 0
	for _, g := range s.opts.Groups.All() {
		if _, ok := joined[g.UUID]; !ok {
			continue
		}
		if ctx.Err() != nil {
			return changes
		}
		changes += s.sweepGroup(ctx, g)
	}
	return changes
}

func (s *Sweeper) sweepGroup(ctx context.Context, g model.Group) int {
	members, err := session.CollectGroupMembers(ctx, s.opts.Session, g.UUID, s.opts.Timeout())
	if err != nil {
		s.opts.Logger.Warn("membership sweep: list members", "group", g.Name, "error", err)
		return 0
	}
	now := make(map[uuid.UUID]struct{}, len(members))
	for _, id := range members {
		now[id] = struct{}{}
	}
	before, seen := s.rosters[g.UUID]
	s.rosters[g.UUID] = now
	if !seen {
		return 0
	}

	changes := 0
	for id := range now {
		if _, ok := before[id]; !ok {
			s.announce(ctx, g, id, true)
			changes++
		}
	}
	for id := range before {
		if _, ok := now[id]; !ok {
			s.announce(ctx, g, id, false)
			changes++
		}
	}
	return changes
}

func (s *Sweeper) announce(ctx context.Context, g model.Group, agent uuid.UUID, joined bool) {
	name, err := s.opts.Resolver.AgentName(ctx, agent)
	if err != nil {
		s.opts.Logger.Debug("membership sweep: agent name", "agent", agent, "error", err)
	}
	s.opts.Notifier.Send(notify.Membership{
		GroupID:   g.UUID,
		GroupName: g.Name,
		Agent:     agent,
		AgentName: name,
		Joined:    joined,
	})
}
