package rlv

import (
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"corrade/internal/model"
)

// Rules is the set of active restrictions, keyed on behaviour, option and
// the object that asked for them.
type Rules struct {
	mu    sync.Mutex
	rules []model.RLVRule
}

func NewRules(initial []model.RLVRule) *Rules {
	r := &Rules{}
	for _, rule := range initial {
		r.upsertLocked(rule)
	}
	return r
}

// Remove drops the rules of object for behaviour. With a non-empty option
// only the rule carrying that option goes. It returns the number removed.
func (r *Rules) Remove(behaviour, option string, object uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(func(rule model.RLVRule) bool {
		if rule.Object != object || rule.Behaviour != behaviour {
			return true
		}
		return option != "" && !strings.EqualFold(rule.Option, option)
	})
}

// Upsert stores rule, replacing any rule with the same behaviour, option
// and object.
func (r *Rules) Upsert(rule model.RLVRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertLocked(rule)
}

func (r *Rules) upsertLocked(rule model.RLVRule) {
	r.filterLocked(func(have model.RLVRule) bool {
		return have.Behaviour != rule.Behaviour || have.Option != rule.Option || have.Object != rule.Object
	})
	r.rules = append(r.rules, rule)
}

// Clear removes the rules of object whose behaviour contains fragment,
// ignoring case. An empty fragment clears everything the object holds.
func (r *Rules) Clear(object uuid.UUID, fragment string) int {
	fragment = strings.ToLower(fragment)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filterLocked(func(rule model.RLVRule) bool {
		return rule.Object != object || !strings.Contains(rule.Behaviour, fragment)
	})
}

// filterLocked keeps the rules accepted by keep and returns how many were
// dropped.
func (r *Rules) filterLocked(keep func(model.RLVRule) bool) int {
	kept := r.rules[:0]
	for _, rule := range r.rules {
		if keep(rule) {
			kept = append(kept, rule)
		}
	}
	removed := len(r.rules) - len(kept)
	r.rules = kept
	return removed
}

// List returns a copy of the rules, optionally restricted to one object.
// uuid.Nil lists all of them.
func (r *Rules) List(object uuid.UUID) []model.RLVRule {
	r.mu.Lock()
	out := make([]model.RLVRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if object == uuid.Nil || rule.Object == object {
			out = append(out, rule)
		}
	}
	r.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Object != out[j].Object {
			return out[i].Object.String() < out[j].Object.String()
		}
		return out[i].Behaviour < out[j].Behaviour
	})
	return out
}

func (r *Rules) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rules)
}
