package auth

import (
	"errors"

	"corrade/internal/model"
)

var ErrAccessDenied = errors.New("access denied")

// Authorize checks the operation's required permission bit against the
// group's mask. An empty mask or an empty requirement never authorizes.
func Authorize(group model.Group, required model.Permission) error {
	if !group.Permissions.Has(required) {
		return ErrAccessDenied
	}
	return nil
}

// CanNotify reports whether the group may subscribe to kind.
func CanNotify(group model.Group, kind model.NotificationKind) bool {
	return group.Notifications.Has(kind)
}
