package registry

import (
	"sort"
	"sync"

	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/model"
)

// Room is a set of players that see each other
type Room struct {
	clock clock.Clock

	mu      sync.RWMutex
	players map[model.AccountID]*model.RoomPlayer
}

func newRoom(clk clock.Clock) *Room {
	return &Room{
		clock:   clk,
		players: make(map[model.AccountID]*model.RoomPlayer),
	}
}

// CreatePlayer adds accountID to the room. Adding a present player resets its join time.
func (r *Room) CreatePlayer(accountID model.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.players[accountID] = &model.RoomPlayer{
		AccountID: accountID,
		JoinedAt:  r.clock.Now().Unix(),
	}
}

// RemovePlayer drops accountID from the room
func (r *Room) RemovePlayer(accountID model.AccountID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.players, accountID)
}

func (r *Room) Has(accountID model.AccountID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.players[accountID]
	return ok
}

func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Players returns a copy of the room's members ordered by account id
func (r *Room) Players() []model.RoomPlayer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.RoomPlayer, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}
