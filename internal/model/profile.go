package model

// UserEntry is a user's record on the central server: moderation state and roles.
// Sessions receive a copy at login and never write it back.
type UserEntry struct {
	AccountID       AccountID `json:"account_id"`
	UserName        string    `json:"user_name,omitempty"`
	NameColor       string    `json:"name_color,omitempty"`
	UserRoles       []string  `json:"user_roles"`
	IsBanned        bool      `json:"is_banned"`
	IsMuted         bool      `json:"is_muted"`
	IsWhitelisted   bool      `json:"is_whitelisted"`
	ViolationReason string    `json:"violation_reason,omitempty"`
	ViolationExpiry int64     `json:"violation_expiry,omitempty"` // unix seconds, 0 = permanent
}

// NewUserEntry returns the entry used for accounts the central server has no record of
func NewUserEntry(accountID AccountID) *UserEntry {
	return &UserEntry{
		AccountID: accountID,
		UserRoles: []string{},
	}
}
