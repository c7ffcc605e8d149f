package model

// AccountID identifies a player's account on the central identity service
type AccountID int32

// UserID is the secondary identifier the client reports alongside the account ID
type UserID int32

// PlayerIconData is the cosmetic icon selection a client sends at login
type PlayerIconData struct {
	Cube        int16
	Ship        int16
	Ball        int16
	Ufo         int16
	Wave        int16
	Robot       int16
	Spider      int16
	Swing       int16
	Jetpack     int16
	DeathEffect uint8
	Color1      int16
	Color2      int16
	GlowColor   int16 // -1 when glow is disabled
}

// DefaultIcons returns the icon selection of a freshly created account
func DefaultIcons() PlayerIconData {
	return PlayerIconData{
		Cube: 1, Ship: 1, Ball: 1, Ufo: 1, Wave: 1, Robot: 1, Spider: 1, Swing: 1, Jetpack: 1,
		DeathEffect: 1,
		Color1:      1,
		Color2:      3,
		GlowColor:   -1,
	}
}

// SpecialUserData is the view of a player's roles shown to other players
type SpecialUserData struct {
	NameColor string   `json:"name_color,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// AccountData is the display profile of an authenticated player.
// Read concurrently by broadcast code, so sessions guard it with a lock.
type AccountData struct {
	AccountID       AccountID
	UserID          UserID
	Name            string
	Icons           PlayerIconData
	SpecialUserData *SpecialUserData
}

// RoomPlayer is the lightweight membership record kept in a room
type RoomPlayer struct {
	AccountID AccountID
	JoinedAt  int64
}
