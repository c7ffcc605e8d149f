// Package config holds the relay's static identity configuration and the runtime
// settings pushed by the central server.
package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mcoot/relaygate/internal/cryptobox"
)

// Server is the static configuration of a relay process
type Server struct {
	// TCPAddr is the listen address for the raw TCP transport
	TCPAddr string
	// WSAddr is the listen address for the websocket transport (empty disables it)
	WSAddr string
	// AdminAddr is the listen address for the admin HTTP API (empty disables it)
	AdminAddr string
	// AdminPassword guards mutating admin endpoints
	AdminPassword string

	// Standalone skips token validation and profile fetches
	Standalone bool
	// Keys is the server's static key pair used in the crypto handshake
	Keys *cryptobox.KeyPair
	// TokenSecret is the shared secret login tokens are signed with
	TokenSecret string
	// TokenValidity is how long an issued token is accepted
	TokenValidity time.Duration

	// CentralURL is the base URL of the central server (empty = use local storage)
	CentralURL string
	// CentralPassword authenticates this relay against the central server
	CentralPassword string
	// CentralRefresh is how often runtime settings are refetched from the central server
	CentralRefresh time.Duration

	// MessagesPerSecond and Burst configure the per-connection inbound rate limit
	MessagesPerSecond float64
	Burst             int
}

// DefaultServerConfig returns defaults, overridden by RELAY_* environment variables
func DefaultServerConfig() Server {
	return Server{
		TCPAddr:           getEnvOrDefault("RELAY_TCP_ADDR", ":4201"),
		WSAddr:            os.Getenv("RELAY_WS_ADDR"),
		AdminAddr:         getEnvOrDefault("RELAY_ADMIN_ADDR", ":4280"),
		AdminPassword:     os.Getenv("RELAY_ADMIN_PASSWORD"),
		Standalone:        getEnvBool("RELAY_STANDALONE", false),
		TokenSecret:       os.Getenv("RELAY_TOKEN_SECRET"),
		TokenValidity:     getEnvDuration("RELAY_TOKEN_VALIDITY", 24*time.Hour),
		CentralURL:        os.Getenv("RELAY_CENTRAL_URL"),
		CentralPassword:   os.Getenv("RELAY_CENTRAL_PASSWORD"),
		CentralRefresh:    getEnvDuration("RELAY_CENTRAL_REFRESH", time.Minute),
		MessagesPerSecond: 100,
		Burst:             200,
	}
}

// CentralSnapshot is a point-in-time copy of the central runtime settings
type CentralSnapshot struct {
	Maintenance bool   `json:"maintenance"`
	TPS         uint32 `json:"tps"`
	Whitelist   bool   `json:"whitelist"`
}

// DefaultCentral returns the settings used until the central server says otherwise
func DefaultCentral() CentralSnapshot {
	return CentralSnapshot{
		Maintenance: false,
		TPS:         30,
		Whitelist:   false,
	}
}

// Central holds runtime settings owned by the central server.
// Sessions only read it; the bridge refresh loop and the admin API write it.
type Central struct {
	mu   sync.RWMutex
	snap CentralSnapshot
}

// NewCentral creates a Central holding snap
func NewCentral(snap CentralSnapshot) *Central {
	return &Central{snap: snap}
}

// Snapshot returns a copy of the current settings
func (c *Central) Snapshot() CentralSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Update replaces the current settings
func (c *Central) Update(snap CentralSnapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// SetMaintenance toggles maintenance mode only
func (c *Central) SetMaintenance(enabled bool) {
	c.mu.Lock()
	c.snap.Maintenance = enabled
	c.mu.Unlock()
}

func (c *Central) Maintenance() bool {
	return c.Snapshot().Maintenance
}

func (c *Central) TPS() uint32 {
	return c.Snapshot().TPS
}

func (c *Central) Whitelist() bool {
	return c.Snapshot().Whitelist
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return val
}
