// Package registry tracks which accounts are logged in across every session.
package registry

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/model"
)

// ErrInvariantViolation is returned when a release would drive the player count below zero
var ErrInvariantViolation = errors.New("registry invariant violated: player count would go negative")

// Holder is a live session owning an account's slot
type Holder interface {
	ID() string
	Evict(reason string)
}

// Registry is the relay-wide set of logged-in accounts.
// playerCount always equals len(holders); each account has at most one holder.
type Registry struct {
	playerCount atomic.Uint32

	mu      sync.Mutex
	holders map[model.AccountID]Holder

	global *Room
	logger *slog.Logger
}

// New creates an empty Registry with its global room
func New(clk clock.Clock, logger *slog.Logger) *Registry {
	return &Registry{
		holders: make(map[model.AccountID]Holder),
		global:  newRoom(clk),
		logger:  logger.With(slog.String("component", "registry")),
	}
}

// Admit makes holder the owner of accountID and places the account in the
// global room. If another holder owned it, that holder is returned for the
// caller to evict and the count is unchanged.
func (r *Registry) Admit(accountID model.AccountID, holder Holder) Holder {
	r.mu.Lock()
	defer r.mu.Unlock()

	prior, ok := r.holders[accountID]
	r.holders[accountID] = holder
	r.global.CreatePlayer(accountID)
	if ok {
		return prior
	}
	r.playerCount.Add(1)
	return nil
}

// Release removes holder's claim on accountID and drops the account from the
// global room. Releasing an account held by someone else, or never admitted, is a no-op.
func (r *Registry) Release(accountID model.AccountID, holder Holder) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.holders[accountID]
	if !ok || current != holder {
		return nil
	}
	delete(r.holders, accountID)
	r.global.RemovePlayer(accountID)

	for {
		n := r.playerCount.Load()
		if n == 0 {
			r.logger.Error("player count underflow on release",
				slog.Int("account_id", int(accountID)),
				slog.String("session_id", holder.ID()),
			)
			return ErrInvariantViolation
		}
		if r.playerCount.CompareAndSwap(n, n-1) {
			return nil
		}
	}
}

// Holder returns the current holder of accountID, if any
func (r *Registry) Holder(accountID model.AccountID) (Holder, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holders[accountID]
	return h, ok
}

// PlayerCount returns the number of logged-in accounts
func (r *Registry) PlayerCount() uint32 {
	return r.playerCount.Load()
}

// GlobalRoom returns the room every logged-in player joins
func (r *Registry) GlobalRoom() *Room {
	return r.global
}
