package factory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/dependencies/clock"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/metrics"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/services/auth"
	"github.com/mcoot/relaygate/internal/services/bridge"
	"github.com/mcoot/relaygate/internal/services/profile"
	"github.com/mcoot/relaygate/internal/services/roles"
	"github.com/mcoot/relaygate/internal/services/token"
	"github.com/mcoot/relaygate/internal/session"
	"github.com/mcoot/relaygate/internal/storage"
	"github.com/mcoot/relaygate/internal/storage/memory"
	redisstorage "github.com/mcoot/relaygate/internal/storage/redis"
)

// Storage type constants
const (
	StorageTypeMemory = "memory"
	StorageTypeRedis  = "redis"
)

// App contains all wired application components
type App struct {
	Server config.Server
	Logger *slog.Logger

	// Storage
	Storage storage.Storage

	// External dependencies
	Clock clock.Clock

	// Runtime settings and identity
	Central *config.Central
	Keys    *cryptobox.KeyPair

	// Services
	Tokens   *token.Issuer
	Profiles *profile.Service
	Bridge   *bridge.Client
	Roles    *roles.Manager
	Gateway  *auth.Gateway

	// Session admission
	Registry *registry.Registry
	Hub      *session.Hub
	Events   *events.Feed

	Metrics         *metrics.Metrics
	MetricsRegistry *prometheus.Registry
}

// Config holds configuration for the application factory
type Config struct {
	// Server is the relay's static configuration.
	// If zero value, defaults to config.DefaultServerConfig()
	Server config.Server
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory" or "redis")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// Roles is the role catalog (optional). If nil, roles.DefaultRoles() is used
	Roles []model.Role
}

// New creates a new application with all dependencies wired
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var store storage.Storage
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		store = memory.New()
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		redisStore, err := redisstorage.New(*cfg.RedisConfig)
		if err != nil {
			return nil, err
		}
		store = redisStore
	default:
		return nil, errors.New("invalid StorageType: must be 'memory' or 'redis'")
	}

	server := cfg.Server
	if server.TCPAddr == "" {
		server = config.DefaultServerConfig()
	}

	return newWithDependencies(server, store, clock.New(), cfg.Roles, logger)
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(server config.Server, store storage.Storage, clk clock.Clock, catalog []model.Role, logger *slog.Logger) (*App, error) {
	if server.Keys == nil {
		keys, err := cryptobox.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		logger.Warn("no server key configured, generated an ephemeral one",
			slog.String("public_key", cryptobox.EncodeKey(keys.Public)))
		server.Keys = keys
	}

	if catalog == nil {
		catalog = roles.DefaultRoles()
	}
	roleManager, err := roles.New(catalog)
	if err != nil {
		return nil, fmt.Errorf("build role catalog: %w", err)
	}

	central := config.NewCentral(config.DefaultCentral())
	profiles := profile.New(store, clk, logger)

	var tokens *token.Issuer
	if !server.Standalone || server.TokenSecret != "" {
		tokens, err = token.New(token.Config{Secret: server.TokenSecret, Validity: server.TokenValidity}, clk)
		if err != nil {
			return nil, fmt.Errorf("token issuer: %w", err)
		}
	}

	// User entries come from the central server when one is configured,
	// otherwise from local storage.
	var source auth.ProfileService = profiles
	var bridgeClient *bridge.Client
	if server.CentralURL != "" {
		bridgeClient = bridge.New(bridge.Config{
			BaseURL:  server.CentralURL,
			Password: server.CentralPassword,
			Refresh:  server.CentralRefresh,
		}, central, logger)
		source = bridgeClient
	}

	gateway := auth.NewGateway(auth.Config{
		Standalone: server.Standalone,
		Tokens:     tokens,
		Profiles:   source,
		Roles:      roleManager,
		Whitelist:  central,
	}, logger)
	if gateway.Standalone() {
		logger.Warn("running in standalone mode, logins are not authenticated")
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	reg := registry.New(clk, logger)
	m.RegisterPlayerCount(reg.PlayerCount)

	feed := events.NewFeed(logger)
	go feed.Run()

	opts := session.DefaultOptions()
	if server.MessagesPerSecond > 0 {
		opts.MessagesPerSecond = rate.Limit(server.MessagesPerSecond)
	}
	if server.Burst > 0 {
		opts.Burst = server.Burst
	}

	hub := session.NewHub(session.Deps{
		Codec:    protocol.NewCodec(),
		Keys:     server.Keys,
		Auth:     gateway,
		Roles:    roleManager,
		Settings: central,
		Registry: reg,
		Metrics:  m,
		Clock:    clk,
		Events:   feed,
	}, opts, logger)

	return &App{
		Server:          server,
		Logger:          logger,
		Storage:         store,
		Clock:           clk,
		Central:         central,
		Keys:            server.Keys,
		Tokens:          tokens,
		Profiles:        profiles,
		Bridge:          bridgeClient,
		Roles:           roleManager,
		Gateway:         gateway,
		Registry:        reg,
		Hub:             hub,
		Events:          feed,
		Metrics:         m,
		MetricsRegistry: promRegistry,
	}, nil
}

// Close stops the event feed and releases the storage backend
func (a *App) Close() error {
	a.Events.Close()
	if closer, ok := a.Storage.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
