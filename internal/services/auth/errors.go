package auth

import (
	"errors"
	"fmt"
)

// ErrNotWhitelisted is returned when whitelist mode is on and the account is not on it
var ErrNotWhitelisted = errors.New("account is not whitelisted")

// FragmentationLimitError is returned when the client's fragmentation limit is below MinFragmentationLimit
type FragmentationLimitError struct {
	Limit uint16
}

func (e *FragmentationLimitError) Error() string {
	return fmt.Sprintf("fragmentation limit too low: %d bytes", e.Limit)
}

// InvalidIDError is returned when the account or user id is not positive
type InvalidIDError struct {
	AccountID int32
	UserID    int32
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid account/user id: %d and %d", e.AccountID, e.UserID)
}

// InvalidTokenError is returned when the login token fails validation.
// Reason is safe to show to the client.
type InvalidTokenError struct {
	Reason string
	Err    error
}

func (e *InvalidTokenError) Error() string {
	return "invalid token: " + e.Reason
}

func (e *InvalidTokenError) Unwrap() error {
	return e.Err
}

// BannedError is returned for banned accounts. Expiry is unix seconds, 0 for permanent.
type BannedError struct {
	Reason string
	Expiry int64
}

func (e *BannedError) Error() string {
	return fmt.Sprintf("account banned until %d: %s", e.Expiry, e.Reason)
}

// FetchError wraps a profile service failure. The wrapped error is for logs only.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "failed to fetch user data: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
