package request

// MaintenanceRequest is the request body for toggling maintenance mode
type MaintenanceRequest struct {
	Enabled bool `json:"enabled"`
	// DisconnectAll also closes every live session
	DisconnectAll bool `json:"disconnect_all,omitempty"`
}

// UpdateUserRequest is the request body for replacing a user entry.
// Omitted fields keep their stored value.
type UpdateUserRequest struct {
	UserName      *string   `json:"user_name,omitempty"`
	NameColor     *string   `json:"name_color,omitempty"`
	UserRoles     *[]string `json:"user_roles,omitempty"`
	IsMuted       *bool     `json:"is_muted,omitempty"`
	IsWhitelisted *bool     `json:"is_whitelisted,omitempty"`
}

// BanRequest is the request body for banning an account
type BanRequest struct {
	Reason string `json:"reason"`
	// Expiry is unix seconds; zero bans permanently
	Expiry int64 `json:"expiry,omitempty"`
	// Disconnect also evicts the account's live session
	Disconnect bool `json:"disconnect,omitempty"`
}

// KickRequest is the request body for disconnecting a live session
type KickRequest struct {
	Message string `json:"message,omitempty"`
}
