package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"

	"corrade/internal/model"
)

var (
	ErrUnknownGroup = errors.New("unknown group")
	ErrBadPassword  = errors.New("access denied")
)

// Groups is the read-only set of configured groups, indexed by name and UUID.
type Groups struct {
	byName map[string]model.Group
	byID   map[uuid.UUID]model.Group
	order  []model.Group
}

func NewGroups(groups []model.Group) *Groups {
	g := &Groups{
		byName: make(map[string]model.Group, len(groups)),
		byID:   make(map[uuid.UUID]model.Group, len(groups)),
		order:  append([]model.Group(nil), groups...),
	}
	for _, group := range groups {
		g.byName[strings.ToLower(group.Name)] = group
		g.byID[group.UUID] = group
	}
	return g
}

// ByName looks a group up case-insensitively.
func (g *Groups) ByName(name string) (model.Group, bool) {
	group, ok := g.byName[strings.ToLower(strings.TrimSpace(name))]
	return group, ok
}

func (g *Groups) ByID(id uuid.UUID) (model.Group, bool) {
	group, ok := g.byID[id]
	return group, ok
}

// All returns the groups in configuration order.
func (g *Groups) All() []model.Group {
	return append([]model.Group(nil), g.order...)
}

// Authenticate compares the supplied password with the group's configured
// secret. The protocol carries the secret in plaintext; comparison is exact
// and case-sensitive.
func (g *Groups) Authenticate(name, password string) error {
	group, ok := g.ByName(name)
	if !ok {
		return ErrUnknownGroup
	}
	if subtle.ConstantTimeCompare([]byte(group.Password), []byte(password)) != 1 {
		return ErrBadPassword
	}
	return nil
}
