package model

// Permission is a bit in a PermissionSet
type Permission uint32

const (
	PermNotices Permission = 1 << iota
	PermNoticesToEveryone
	PermKick
	PermKickEveryone
	PermMute
	PermBan
	PermEditRoles
	PermAdmin
)

// PermissionSet is the union of permissions granted by a player's roles
type PermissionSet uint32

// Has reports whether every bit of p is present in the set
func (s PermissionSet) Has(p Permission) bool {
	return uint32(s)&uint32(p) == uint32(p)
}

// With returns the set with p added
func (s PermissionSet) With(p Permission) PermissionSet {
	return PermissionSet(uint32(s) | uint32(p))
}

// Role is one entry of the server's role catalog
type Role struct {
	ID          string        `json:"id"`
	Priority    int32         `json:"priority"`
	Badge       string        `json:"badge_icon,omitempty"`
	NameColor   string        `json:"name_color,omitempty"`
	Permissions PermissionSet `json:"permissions"`
}

// ComputedRole is the result of resolving a user's role identifiers
type ComputedRole struct {
	Priority    int32
	NameColor   string
	Permissions PermissionSet
}

// CanModerate reports whether the role grants any moderation permission
func (r ComputedRole) CanModerate() bool {
	return r.Permissions.Has(PermKick) || r.Permissions.Has(PermMute) ||
		r.Permissions.Has(PermBan) || r.Permissions.Has(PermAdmin)
}
