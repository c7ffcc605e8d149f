package response

import (
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/session"
)

// Status is the response for GET /api/v1/status
type Status struct {
	PlayerCount   uint32 `json:"player_count"`
	GlobalRoom    int    `json:"global_room_size"`
	Sessions      int    `json:"sessions"`
	Maintenance   bool   `json:"maintenance"`
	TPS           uint32 `json:"tps"`
	Whitelist     bool   `json:"whitelist"`
	Standalone    bool   `json:"standalone"`
	ServerKey     string `json:"server_public_key"`
	ProtocolLevel uint16 `json:"protocol_version"`
}

// User represents a stored user entry
type User struct {
	AccountID       int32    `json:"account_id"`
	UserName        string   `json:"user_name,omitempty"`
	NameColor       string   `json:"name_color,omitempty"`
	UserRoles       []string `json:"user_roles"`
	IsBanned        bool     `json:"is_banned"`
	IsMuted         bool     `json:"is_muted"`
	IsWhitelisted   bool     `json:"is_whitelisted"`
	ViolationReason string   `json:"violation_reason,omitempty"`
	ViolationExpiry int64    `json:"violation_expiry,omitempty"`
	Online          bool     `json:"online"`
}

// UserFromModel converts a model.UserEntry to a response User
func UserFromModel(e *model.UserEntry, online bool) User {
	roles := e.UserRoles
	if roles == nil {
		roles = []string{}
	}
	return User{
		AccountID:       int32(e.AccountID),
		UserName:        e.UserName,
		NameColor:       e.NameColor,
		UserRoles:       roles,
		IsBanned:        e.IsBanned,
		IsMuted:         e.IsMuted,
		IsWhitelisted:   e.IsWhitelisted,
		ViolationReason: e.ViolationReason,
		ViolationExpiry: e.ViolationExpiry,
		Online:          online,
	}
}

// UsersResponse lists stored user entries
type UsersResponse struct {
	Users []User `json:"users"`
}

// Session represents a live connection
type Session struct {
	ID        string `json:"id"`
	Addr      string `json:"addr"`
	State     string `json:"state"`
	AccountID int32  `json:"account_id,omitempty"`
	Name      string `json:"name,omitempty"`
}

// SessionFromModel converts a live session for display
func SessionFromModel(s *session.Session) Session {
	account := s.AccountData()
	return Session{
		ID:        s.ID(),
		Addr:      s.RemoteAddr(),
		State:     s.State().String(),
		AccountID: int32(s.AccountID()),
		Name:      account.Name,
	}
}

// SessionsResponse lists live sessions
type SessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

// RolesResponse lists the role catalog
type RolesResponse struct {
	Roles []model.Role `json:"roles"`
}
