package roles

import (
	"fmt"
	"sort"

	"github.com/mcoot/relaygate/internal/model"
)

// DefaultRoleID is granted to every user, whether or not their entry lists it
const DefaultRoleID = "default"

// Manager resolves role identifiers against the server's role catalog.
// The catalog is immutable once built.
type Manager struct {
	roles  map[string]model.Role
	sorted []model.Role // highest priority first
}

// DefaultRoles returns the catalog used when the central server provides none
func DefaultRoles() []model.Role {
	var mod model.PermissionSet
	mod = mod.With(model.PermNotices).With(model.PermKick).With(model.PermMute)

	var admin model.PermissionSet
	admin = mod.With(model.PermNoticesToEveryone).With(model.PermKickEveryone).
		With(model.PermBan).With(model.PermEditRoles).With(model.PermAdmin)

	return []model.Role{
		{ID: "admin", Priority: 1000, Badge: "role-admin", NameColor: "#ff3b3b", Permissions: admin},
		{ID: "mod", Priority: 100, Badge: "role-mod", NameColor: "#3bb0ff", Permissions: mod},
		{ID: DefaultRoleID, Priority: 0},
	}
}

// New builds a Manager from a catalog. Role ids must be unique.
func New(catalog []model.Role) (*Manager, error) {
	m := &Manager{roles: make(map[string]model.Role, len(catalog))}
	for _, role := range catalog {
		if _, exists := m.roles[role.ID]; exists {
			return nil, fmt.Errorf("%w: %q", model.ErrDuplicateRole, role.ID)
		}
		m.roles[role.ID] = role
		m.sorted = append(m.sorted, role)
	}
	sort.SliceStable(m.sorted, func(i, j int) bool {
		return m.sorted[i].Priority > m.sorted[j].Priority
	})
	return m, nil
}

// Role looks up a single role by id
func (m *Manager) Role(id string) (model.Role, error) {
	role, ok := m.roles[id]
	if !ok {
		return model.Role{}, fmt.Errorf("%w: %q", model.ErrRoleNotFound, id)
	}
	return role, nil
}

// Compute merges the given roles (plus the default role) into one permission set.
// Priority and name colour come from the highest-priority role; unknown ids are ignored.
func (m *Manager) Compute(ids []string) model.ComputedRole {
	var out model.ComputedRole
	held := m.held(ids)

	for i, role := range held {
		out.Permissions |= role.Permissions
		if i == 0 {
			out.Priority = role.Priority
		}
		if out.NameColor == "" && role.NameColor != "" {
			out.NameColor = role.NameColor
		}
	}
	return out
}

// AllRoles returns the catalog ordered by descending priority
func (m *Manager) AllRoles() []model.Role {
	out := make([]model.Role, len(m.sorted))
	copy(out, m.sorted)
	return out
}

// SpecialUserData builds the role view other players see for entry.
// Returns nil for users with no visible roles and no custom name colour.
func (m *Manager) SpecialUserData(entry *model.UserEntry) *model.SpecialUserData {
	if entry == nil {
		return nil
	}

	var ids []string
	nameColor := entry.NameColor
	for _, role := range m.held(entry.UserRoles) {
		if role.ID == DefaultRoleID {
			continue
		}
		ids = append(ids, role.ID)
		if nameColor == "" {
			nameColor = role.NameColor
		}
	}

	if len(ids) == 0 && nameColor == "" {
		return nil
	}
	return &model.SpecialUserData{NameColor: nameColor, Roles: ids}
}

// held returns the known roles among ids plus the default role, highest priority first
func (m *Manager) held(ids []string) []model.Role {
	want := make(map[string]struct{}, len(ids)+1)
	for _, id := range ids {
		want[id] = struct{}{}
	}
	want[DefaultRoleID] = struct{}{}

	var out []model.Role
	for _, role := range m.sorted {
		if _, ok := want[role.ID]; ok {
			out = append(out, role)
		}
	}
	return out
}
