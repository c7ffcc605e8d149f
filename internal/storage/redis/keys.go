package redis

import (
	"fmt"

	"github.com/mcoot/relaygate/internal/model"
)

const keyPrefix = "relaygate"

// userEntryKey returns the Redis key for a UserEntry
func userEntryKey(id model.AccountID) string {
	return fmt.Sprintf("%s:user:%d", keyPrefix, id)
}

// userIndexKey returns the Redis key for the SET of known account ids
func userIndexKey() string {
	return fmt.Sprintf("%s:idx:users", keyPrefix)
}
