package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permission is the bitset of command families a group may invoke.
type Permission uint64

const (
	PermissionNone          Permission = 0
	PermissionMovement      Permission = 1 << 0
	PermissionEconomy       Permission = 1 << 1
	PermissionLand          Permission = 1 << 2
	PermissionGrooming      Permission = 1 << 3
	PermissionInventory     Permission = 1 << 4
	PermissionInteract      Permission = 1 << 5
	PermissionMute          Permission = 1 << 6
	PermissionDatabase      Permission = 1 << 7
	PermissionNotifications Permission = 1 << 8
	PermissionTalk          Permission = 1 << 9
	PermissionDirectory     Permission = 1 << 10
	PermissionSystem        Permission = 1 << 11
	PermissionFriendship    Permission = 1 << 12
	PermissionExecute       Permission = 1 << 13
	PermissionGroup         Permission = 1 << 14
	PermissionFilter        Permission = 1 << 15
	PermissionSchedule      Permission = 1 << 16
)

var permissionNames = map[string]Permission{
	"movement":      PermissionMovement,
	"economy":       PermissionEconomy,
	"land":          PermissionLand,
	"grooming":      PermissionGrooming,
	"inventory":     PermissionInventory,
	"interact":      PermissionInteract,
	"mute":          PermissionMute,
	"database":      PermissionDatabase,
	"notifications": PermissionNotifications,
	"talk":          PermissionTalk,
	"directory":     PermissionDirectory,
	"system":        PermissionSystem,
	"friendship":    PermissionFriendship,
	"execute":       PermissionExecute,
	"group":         PermissionGroup,
	"filter":        PermissionFilter,
	"schedule":      PermissionSchedule,
}

// Has reports whether every bit of want is set.
func (p Permission) Has(want Permission) bool {
	return want != PermissionNone && p&want == want
}

func (p Permission) String() string {
	return bitNames(uint64(p), permissionNames)
}

// ParsePermissions folds permission names into a bitset.
func ParsePermissions(names []string) (Permission, error) {
	var out Permission
	for _, n := range names {
		bit, ok := permissionNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown permission: %s", n)
		}
		out |= bit
	}
	return out, nil
}

// NotificationKind is both a single kind and a bitset of kinds.
type NotificationKind uint64

const (
	NotificationNone            NotificationKind = 0
	NotificationAlert           NotificationKind = 1 << 0
	NotificationRegion          NotificationKind = 1 << 1
	NotificationBalance         NotificationKind = 1 << 2
	NotificationMessage         NotificationKind = 1 << 3
	NotificationNotice          NotificationKind = 1 << 4
	NotificationLocal           NotificationKind = 1 << 5
	NotificationDialog          NotificationKind = 1 << 6
	NotificationFriendship      NotificationKind = 1 << 7
	NotificationInventory       NotificationKind = 1 << 8
	NotificationPermission      NotificationKind = 1 << 9
	NotificationLure            NotificationKind = 1 << 10
	NotificationEffect          NotificationKind = 1 << 11
	NotificationOwnerSay        NotificationKind = 1 << 12
	NotificationRegionSay       NotificationKind = 1 << 13
	NotificationGroup           NotificationKind = 1 << 14
	NotificationEconomy         NotificationKind = 1 << 15
	NotificationMembership      NotificationKind = 1 << 16
	NotificationRadarAvatars    NotificationKind = 1 << 17
	NotificationRadarPrimitives NotificationKind = 1 << 18
	NotificationTyping          NotificationKind = 1 << 19
	NotificationInvite          NotificationKind = 1 << 20
	NotificationCrossing        NotificationKind = 1 << 21
	NotificationSit             NotificationKind = 1 << 22
	NotificationTerse           NotificationKind = 1 << 23
	NotificationMute            NotificationKind = 1 << 24
)

var notificationNames = map[string]NotificationKind{
	"alert":            NotificationAlert,
	"region":           NotificationRegion,
	"balance":          NotificationBalance,
	"message":          NotificationMessage,
	"notice":           NotificationNotice,
	"local":            NotificationLocal,
	"dialog":           NotificationDialog,
	"friendship":       NotificationFriendship,
	"inventory":        NotificationInventory,
	"permission":       NotificationPermission,
	"lure":             NotificationLure,
	"effect":           NotificationEffect,
	"ownersay":         NotificationOwnerSay,
	"regionsay":        NotificationRegionSay,
	"group":            NotificationGroup,
	"economy":          NotificationEconomy,
	"membership":       NotificationMembership,
	"radar_avatars":    NotificationRadarAvatars,
	"radar_primitives": NotificationRadarPrimitives,
	"typing":           NotificationTyping,
	"invite":           NotificationInvite,
	"crossing":         NotificationCrossing,
	"sit":              NotificationSit,
	"terse":            NotificationTerse,
	"mute":             NotificationMute,
}

// Has reports whether every bit of want is set.
func (n NotificationKind) Has(want NotificationKind) bool {
	return want != NotificationNone && n&want == want
}

func (n NotificationKind) String() string {
	return bitNames(uint64(n), notificationNames)
}

// Kinds splits a bitset into its single kinds in ascending bit order.
func (n NotificationKind) Kinds() []NotificationKind {
	var out []NotificationKind
	for bit := NotificationKind(1); bit != 0 && bit <= n; bit <<= 1 {
		if n&bit != 0 {
			out = append(out, bit)
		}
	}
	return out
}

// AllNotificationKinds returns every known kind in bit order.
func AllNotificationKinds() []NotificationKind {
	var all NotificationKind
	for _, k := range notificationNames {
		all |= k
	}
	return all.Kinds()
}

// ParseNotifications folds notification names into a bitset.
func ParseNotifications(names []string) (NotificationKind, error) {
	var out NotificationKind
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		bit, ok := notificationNames[n]
		if !ok {
			return 0, fmt.Errorf("unknown notification: %s", n)
		}
		out |= bit
	}
	return out, nil
}

func bitNames[T ~uint64](v uint64, names map[string]T) string {
	var out []string
	for name, bit := range names {
		if v&uint64(bit) != 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

type ChatLog struct {
	Enabled bool
	File    string
}

// Group is a configured tenant.
type Group struct {
	Name          string
	UUID          uuid.UUID
	Password      string
	Permissions   Permission
	Notifications NotificationKind
	Workers       int
	ChatLog       ChatLog
}

type Master struct {
	FirstName string
	LastName  string
}

func (m Master) Matches(first, last string) bool {
	return strings.EqualFold(m.FirstName, first) && strings.EqualFold(m.LastName, last)
}

// Registration binds a group's interest in one notification kind to one URL.
type Registration struct {
	Group string           `json:"group"`
	Kind  NotificationKind `json:"kind"`
	URL   string           `json:"url"`
}

type RLVRule struct {
	Behaviour string    `json:"behaviour"`
	Option    string    `json:"option"`
	Param     string    `json:"param"`
	Object    uuid.UUID `json:"object"`
}

type OfferState string

const (
	OfferPending  OfferState = "pending"
	OfferAccepted OfferState = "accepted"
	OfferDeclined OfferState = "declined"
)

type InventoryOffer struct {
	ID         uuid.UUID  `json:"id"`
	Sender     uuid.UUID  `json:"sender"`
	SenderName string     `json:"sender_name"`
	ItemName   string     `json:"item_name"`
	AssetType  string     `json:"asset_type"`
	State      OfferState `json:"state"`
	Received   time.Time  `json:"received"`
}

// Vector3 is a region-local or global position.
type Vector3 struct {
	X, Y, Z float64
}

func (v Vector3) String() string {
	return fmt.Sprintf("<%g, %g, %g>", v.X, v.Y, v.Z)
}

// ParseVector3 accepts "<x, y, z>" with or without brackets.
func ParseVector3(s string) (Vector3, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<")
	s = strings.TrimSuffix(s, ">")
	var v Vector3
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%g,%g,%g", &v.X, &v.Y, &v.Z); err != nil {
		return Vector3{}, fmt.Errorf("invalid vector %q: %w", s, err)
	}
	return v, nil
}
