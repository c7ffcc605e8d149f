package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/storage"
)

// Storage is an in-memory implementation of the storage interface
type Storage struct {
	mu      sync.RWMutex
	entries map[model.AccountID]*model.UserEntry
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		entries: make(map[model.AccountID]*model.UserEntry),
	}
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

func (s *Storage) SaveUserEntry(ctx context.Context, entry *model.UserEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.AccountID] = cloneEntry(entry)
	return nil
}

func (s *Storage) GetUserEntry(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[accountID]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return cloneEntry(entry), nil
}

func (s *Storage) DeleteUserEntry(ctx context.Context, accountID model.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, accountID)
	return nil
}

func (s *Storage) ListUserEntries(ctx context.Context) ([]*model.UserEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.UserEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, cloneEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

// cloneEntry copies an entry so callers never share the stored role slice
func cloneEntry(entry *model.UserEntry) *model.UserEntry {
	c := *entry
	c.UserRoles = append([]string{}, entry.UserRoles...)
	return &c
}
