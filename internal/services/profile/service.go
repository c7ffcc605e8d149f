package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/storage"
)

// Errors
var (
	ErrInvalidAccountID = errors.New("account id must be positive")
)

// Service serves user entries from local storage.
// It stands in for the central server when the relay runs without one.
type Service struct {
	storage storage.Storage
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a new profile Service
func New(storage storage.Storage, clock clock.Clock, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		clock:   clock,
		logger:  logger.With(slog.String("component", "profile")),
	}
}

// GetUser returns the entry for accountID. Unknown accounts get a blank entry.
// A temporary ban whose expiry has passed is reported as lifted.
func (s *Service) GetUser(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error) {
	if accountID <= 0 {
		return nil, ErrInvalidAccountID
	}

	entry, err := s.storage.GetUserEntry(ctx, accountID)
	if errors.Is(err, model.ErrUserNotFound) {
		return model.NewUserEntry(accountID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", accountID, err)
	}

	if entry.IsBanned && entry.ViolationExpiry > 0 && entry.ViolationExpiry <= s.clock.Now().Unix() {
		entry.IsBanned = false
		entry.ViolationReason = ""
		entry.ViolationExpiry = 0
	}
	return entry, nil
}

// SaveUser replaces the stored entry for entry.AccountID
func (s *Service) SaveUser(ctx context.Context, entry *model.UserEntry) error {
	if entry.AccountID <= 0 {
		return ErrInvalidAccountID
	}
	if entry.UserRoles == nil {
		entry.UserRoles = []string{}
	}
	return s.storage.SaveUserEntry(ctx, entry)
}

// Ban marks an account as banned. A zero expiry bans permanently.
func (s *Service) Ban(ctx context.Context, accountID model.AccountID, reason string, expiry int64) (*model.UserEntry, error) {
	return s.update(ctx, accountID, func(entry *model.UserEntry) {
		entry.IsBanned = true
		entry.ViolationReason = reason
		entry.ViolationExpiry = expiry
	})
}

// Unban lifts a ban on an account
func (s *Service) Unban(ctx context.Context, accountID model.AccountID) (*model.UserEntry, error) {
	return s.update(ctx, accountID, func(entry *model.UserEntry) {
		entry.IsBanned = false
		entry.ViolationReason = ""
		entry.ViolationExpiry = 0
	})
}

// SetWhitelisted adds or removes an account from the whitelist
func (s *Service) SetWhitelisted(ctx context.Context, accountID model.AccountID, whitelisted bool) (*model.UserEntry, error) {
	return s.update(ctx, accountID, func(entry *model.UserEntry) {
		entry.IsWhitelisted = whitelisted
	})
}

// ListUsers returns every stored entry
func (s *Service) ListUsers(ctx context.Context) ([]*model.UserEntry, error) {
	return s.storage.ListUserEntries(ctx)
}

func (s *Service) update(ctx context.Context, accountID model.AccountID, fn func(*model.UserEntry)) (*model.UserEntry, error) {
	entry, err := s.GetUser(ctx, accountID)
	if err != nil {
		return nil, err
	}
	fn(entry)
	if err := s.storage.SaveUserEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("save user %d: %w", accountID, err)
	}

	s.logger.Info("user entry updated",
		slog.Int("account_id", int(accountID)),
		slog.Bool("banned", entry.IsBanned),
		slog.Bool("whitelisted", entry.IsWhitelisted),
	)
	return entry, nil
}
