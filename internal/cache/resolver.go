// Package cache remembers grid name resolutions and the agent's current
// groups so repeated commands do not round-trip to the grid.
package cache

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"corrade/internal/session"
	"corrade/internal/storage/repos"
)

// Resolver answers name and group lookups from memory and falls back to
// the session on a miss. Entries never expire; current groups are dropped
// when the agent joins or leaves a group.
type Resolver struct {
	sess session.Session

	agentsMu sync.RWMutex
	agents   map[uuid.UUID]string
	agentIDs map[string]uuid.UUID

	groupsMu sync.RWMutex
	groups   map[uuid.UUID]string
	groupIDs map[string]uuid.UUID

	currentMu sync.RWMutex
	current   []uuid.UUID
	valid     bool
}

func New(sess session.Session) *Resolver {
	return &Resolver{
		sess:     sess,
		agents:   map[uuid.UUID]string{},
		agentIDs: map[string]uuid.UUID{},
		groups:   map[uuid.UUID]string{},
		groupIDs: map[string]uuid.UUID{},
	}
}

func (r *Resolver) AgentName(ctx context.Context, id uuid.UUID) (string, error) {
	r.agentsMu.RLock()
	name, ok := r.agents[id]
	r.agentsMu.RUnlock()
	if ok {
		return name, nil
	}
	name, err := r.sess.AgentName(ctx, id)
	if err != nil {
		return "", err
	}
	r.rememberAgent(id, name)
	return name, nil
}

func (r *Resolver) AgentID(ctx context.Context, firstName, lastName string) (uuid.UUID, error) {
	key := nameKey(firstName + " " + lastName)
	r.agentsMu.RLock()
	id, ok := r.agentIDs[key]
	r.agentsMu.RUnlock()
	if ok {
		return id, nil
	}
	id, err := r.sess.AgentID(ctx, firstName, lastName)
	if err != nil {
		return uuid.Nil, err
	}
	r.rememberAgent(id, strings.TrimSpace(firstName+" "+lastName))
	return id, nil
}

func (r *Resolver) rememberAgent(id uuid.UUID, name string) {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	r.agents[id] = name
	r.agentIDs[nameKey(name)] = id
}

func (r *Resolver) GroupName(ctx context.Context, id uuid.UUID) (string, error) {
	r.groupsMu.RLock()
	name, ok := r.groups[id]
	r.groupsMu.RUnlock()
	if ok {
		return name, nil
	}
	name, err := r.sess.GroupName(ctx, id)
	if err != nil {
		return "", err
	}
	r.RememberGroup(id, name)
	return name, nil
}

func (r *Resolver) GroupID(ctx context.Context, name string) (uuid.UUID, error) {
	r.groupsMu.RLock()
	id, ok := r.groupIDs[nameKey(name)]
	r.groupsMu.RUnlock()
	if ok {
		return id, nil
	}
	id, err := r.sess.GroupID(ctx, name)
	if err != nil {
		return uuid.Nil, err
	}
	r.RememberGroup(id, name)
	return id, nil
}

// RememberGroup records a name learned from an event.
func (r *Resolver) RememberGroup(id uuid.UUID, name string) {
	if id == uuid.Nil || strings.TrimSpace(name) == "" {
		return
	}
	r.groupsMu.Lock()
	defer r.groupsMu.Unlock()
	r.groups[id] = name
	r.groupIDs[nameKey(name)] = id
}

// CurrentGroups returns the groups the agent belongs to, asking the grid
// only when the cached list was invalidated.
func (r *Resolver) CurrentGroups(ctx context.Context) ([]uuid.UUID, error) {
	r.currentMu.RLock()
	if r.valid {
		out := append([]uuid.UUID(nil), r.current...)
		r.currentMu.RUnlock()
		return out, nil
	}
	r.currentMu.RUnlock()

	ids, err := r.sess.CurrentGroups(ctx)
	if err != nil {
		return nil, err
	}
	r.currentMu.Lock()
	r.current = append([]uuid.UUID(nil), ids...)
	r.valid = true
	r.currentMu.Unlock()
	return ids, nil
}

// InCurrentGroups reports whether the agent belongs to group.
func (r *Resolver) InCurrentGroups(ctx context.Context, group uuid.UUID) (bool, error) {
	ids, err := r.CurrentGroups(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range ids {
		if id == group {
			return true, nil
		}
	}
	return false, nil
}

func (r *Resolver) InvalidateCurrentGroups() {
	r.currentMu.Lock()
	defer r.currentMu.Unlock()
	r.current = nil
	r.valid = false
}

// Snapshot copies every cache for persistence.
func (r *Resolver) Snapshot() repos.CacheSnapshot {
	var snap repos.CacheSnapshot

	r.agentsMu.RLock()
	for id, name := range r.agents {
		first, last := session.SplitName(name)
		snap.Agents = append(snap.Agents, repos.CachedAgent{ID: id, FirstName: first, LastName: last})
	}
	r.agentsMu.RUnlock()

	r.groupsMu.RLock()
	for id, name := range r.groups {
		snap.Groups = append(snap.Groups, repos.CachedGroup{ID: id, Name: name})
	}
	r.groupsMu.RUnlock()

	r.currentMu.RLock()
	if r.valid {
		snap.CurrentGroups = append(snap.CurrentGroups, r.current...)
	}
	r.currentMu.RUnlock()
	return snap
}

// Restore loads a persisted snapshot. A snapshot with no current groups
// leaves the list to be fetched on first use.
func (r *Resolver) Restore(snap repos.CacheSnapshot) {
	for _, a := range snap.Agents {
		r.rememberAgent(a.ID, strings.TrimSpace(a.FirstName+" "+a.LastName))
	}
	for _, g := range snap.Groups {
		r.RememberGroup(g.ID, g.Name)
	}
	if len(snap.CurrentGroups) > 0 {
		r.currentMu.Lock()
		r.current = append([]uuid.UUID(nil), snap.CurrentGroups...)
		r.valid = true
		r.currentMu.Unlock()
	}
}

func nameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
