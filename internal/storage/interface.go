package storage

import (
	"context"

	"github.com/mcoot/relaygate/internal/model"
)

// Storage defines the interface for user entry persistence.
// Used as the profile source when the relay runs without a central server.
type Storage interface {
	SaveUserEntry(ctx context.Context, entry *model.UserEntry) error
	GetUserEntry(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error)
	DeleteUserEntry(ctx context.Context, accountID model.AccountID) error
	ListUserEntries(ctx context.Context) ([]*model.UserEntry, error)
}
