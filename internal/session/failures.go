package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/services/auth"
)

// Client-facing messages
const (
	MsgMaintenance      = "The server is currently under maintenance, please try connecting again later."
	MsgNotWhitelisted   = "This server has whitelist enabled and your account has not been allowed."
	MsgFetchFailed      = "failed to fetch user data: unable to reach the central server"
	MsgEvicted          = "Someone logged into the same account from a different place."
	MsgSecondHandshake  = "attempting to perform a second handshake in one session"
	MsgServerShutdown   = "The server is shutting down."
	msgFragLimitFormat  = "The client fragmentation limit is too low (%d bytes) to be accepted"
	msgInvalidIDFormat  = "Invalid account/user ID was sent (%d and %d). Please note that you must be signed into a Geometry Dash account before connecting."
	msgAuthFailedPrefix = "authentication failed: "
)

// loginFailure maps an authentication error to the packet the client receives
// and the metrics label. A nil packet means the attempt was abandoned silently.
func loginFailure(err error) (protocol.Packet, string) {
	var (
		fragErr  *auth.FragmentationLimitError
		idErr    *auth.InvalidIDError
		tokErr   *auth.InvalidTokenError
		banErr   *auth.BannedError
		fetchErr *auth.FetchError
	)

	switch {
	case errors.As(err, &fragErr):
		return &protocol.ServerDisconnectPacket{Message: fmt.Sprintf(msgFragLimitFormat, fragErr.Limit)}, metrics.LoginFragmentation
	case errors.As(err, &idErr):
		return &protocol.LoginFailedPacket{Message: fmt.Sprintf(msgInvalidIDFormat, idErr.AccountID, idErr.UserID)}, metrics.LoginInvalidID
	case errors.As(err, &tokErr):
		return &protocol.LoginFailedPacket{Message: msgAuthFailedPrefix + tokErr.Reason}, metrics.LoginInvalidToken
	case errors.As(err, &banErr):
		return &protocol.ServerBannedPacket{Message: banErr.Reason, Timestamp: banErr.Expiry}, metrics.LoginBanned
	case errors.Is(err, auth.ErrNotWhitelisted):
		return &protocol.LoginFailedPacket{Message: MsgNotWhitelisted}, metrics.LoginNotWhitelisted
	case errors.As(err, &fetchErr):
		return &protocol.LoginFailedPacket{Message: MsgFetchFailed}, metrics.LoginFetchError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, metrics.LoginAborted
	default:
		// unknown errors never leak their text to the client
		return &protocol.LoginFailedPacket{Message: MsgFetchFailed}, metrics.LoginFetchError
	}
}
