package notify

import (
	"sort"
	"strings"
	"sync"

	"corrade/internal/model"
)

// Registry is the live set of notification registrations. A registration
// is unique on (group, kind, URL).
type Registry struct {
	mu   sync.RWMutex
	regs map[model.Registration]struct{}
}

func NewRegistry(initial []model.Registration) *Registry {
	r := &Registry{regs: map[model.Registration]struct{}{}}
	for _, reg := range initial {
		r.regs[normalize(reg)] = struct{}{}
	}
	return r
}

// Add registers url for every single kind in kinds and reports how many
// registrations were new.
func (r *Registry) Add(group string, kinds model.NotificationKind, url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	added := 0
	for _, k := range kinds.Kinds() {
		reg := normalize(model.Registration{Group: group, Kind: k, URL: url})
		if _, ok := r.regs[reg]; ok {
			continue
		}
		r.regs[reg] = struct{}{}
		added++
	}
	return added
}

// Remove drops the registrations of group for kinds. An empty url removes
// every URL for those kinds.
func (r *Registry) Remove(group string, kinds model.NotificationKind, url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for reg := range r.regs {
		if !sameGroup(reg.Group, group) || kinds&reg.Kind == 0 {
			continue
		}
		if url != "" && reg.URL != url {
			continue
		}
		delete(r.regs, reg)
		removed++
	}
	return removed
}

// Clear removes every registration of group.
func (r *Registry) Clear(group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for reg := range r.regs {
		if sameGroup(reg.Group, group) {
			delete(r.regs, reg)
			removed++
		}
	}
	return removed
}

// Purge removes every registration of groups not in keep, returning the
// number removed.
func (r *Registry) Purge(keep func(group string) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for reg := range r.regs {
		if !keep(reg.Group) {
			delete(r.regs, reg)
			removed++
		}
	}
	return removed
}

// URLs returns the sorted destinations of group for kind.
func (r *Registry) URLs(group string, kind model.NotificationKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for reg := range r.regs {
		if reg.Kind == kind && sameGroup(reg.Group, group) {
			out = append(out, reg.URL)
		}
	}
	sort.Strings(out)
	return out
}

// Interested reports whether any registration exists for kind.
func (r *Registry) Interested(kind model.NotificationKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for reg := range r.regs {
		if reg.Kind == kind {
			return true
		}
	}
	return false
}

// List returns the registrations of group, or all of them for an empty
// group, ordered by group, kind and URL.
func (r *Registry) List(group string) []model.Registration {
	r.mu.RLock()
	out := make([]model.Registration, 0, len(r.regs))
	for reg := range r.regs {
		if group == "" || sameGroup(reg.Group, group) {
			out = append(out, reg)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].URL < out[j].URL
	})
	return out
}

func normalize(reg model.Registration) model.Registration {
	reg.URL = strings.TrimSpace(reg.URL)
	return reg
}

func sameGroup(a, b string) bool {
	return strings.EqualFold(a, b)
}
