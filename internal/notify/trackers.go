package notify

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"corrade/internal/session"
)

// Radar tracks which objects are currently known, so that repeated
// appearances are not announced twice and vanishing objects are only
// announced if they were seen.
type Radar[T any] struct {
	mu      sync.Mutex
	tracked map[uuid.UUID]T
}

func NewRadar[T any]() *Radar[T] {
	return &Radar[T]{tracked: map[uuid.UUID]T{}}
}

// Appear tracks id and reports whether it was previously untracked.
func (r *Radar[T]) Appear(id uuid.UUID, v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tracked[id]; ok {
		r.tracked[id] = v
		return false
	}
	r.tracked[id] = v
	return true
}

// Vanish stops tracking id and returns its last value if it was tracked.
func (r *Radar[T]) Vanish(id uuid.UUID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.tracked[id]
	if ok {
		delete(r.tracked, id)
	}
	return v, ok
}

// Update replaces the value of an already tracked id.
func (r *Radar[T]) Update(id uuid.UUID, fn func(*T)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.tracked[id]
	if !ok {
		return false
	}
	fn(&v)
	r.tracked[id] = v
	return true
}

func (r *Radar[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracked)
}

// Reset forgets everything, as after a region change.
func (r *Radar[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracked = map[uuid.UUID]T{}
}

// TrackedEffect is a viewer effect with its expiry.
type TrackedEffect struct {
	session.ViewerEffectEvent
	Expires time.Time
}

// Effects remembers recent viewer effects until they expire.
type Effects struct {
	mu      sync.Mutex
	effects map[uuid.UUID]TrackedEffect
	now     func() time.Time
}

func NewEffects() *Effects {
	return &Effects{effects: map[uuid.UUID]TrackedEffect{}, now: time.Now}
}

// Track records ev. Effects with no duration are kept for one second.
func (e *Effects) Track(ev session.ViewerEffectEvent) {
	d := ev.Duration
	if d <= 0 {
		d = time.Second
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.effects[ev.EffectID] = TrackedEffect{ViewerEffectEvent: ev, Expires: e.now().Add(d)}
}

// Expire drops effects past their expiry and returns how many went.
func (e *Effects) Expire() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	n := 0
	for id, fx := range e.effects {
		if !fx.Expires.After(now) {
			delete(e.effects, id)
			n++
		}
	}
	return n
}

// Active returns the live effects ordered by expiry.
func (e *Effects) Active() []TrackedEffect {
	e.mu.Lock()
	out := make([]TrackedEffect, 0, len(e.effects))
	for _, fx := range e.effects {
		out = append(out, fx)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Expires.Before(out[j].Expires) })
	return out
}
