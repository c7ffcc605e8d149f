package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/factory"
	redisstorage "github.com/mcoot/relaygate/internal/storage/redis"
)

func newServeCmd() *cobra.Command {
	server := config.DefaultServerConfig()
	var secretKey string
	storageType := os.Getenv("STORAGE_TYPE")

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			if secretKey != "" {
				keys, err := cryptobox.KeyPairFromSecret(secretKey)
				if err != nil {
					return fmt.Errorf("--secret-key: %w", err)
				}
				server.Keys = keys
			}

			factoryCfg := factory.Config{
				Server:      server,
				Logger:      logger,
				StorageType: storageType,
			}
			if storageType == factory.StorageTypeRedis {
				redisURL := os.Getenv("REDIS_URL")
				if redisURL == "" {
					return fmt.Errorf("REDIS_URL required when STORAGE_TYPE=redis")
				}
				redisCfg := redisstorage.DefaultConfig()
				redisCfg.URL = redisURL
				factoryCfg.RedisConfig = &redisCfg
			}

			app, err := factory.New(factoryCfg)
			if err != nil {
				return fmt.Errorf("failed to create application: %w", err)
			}
			defer func() { _ = app.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := app.Run(ctx); err != nil {
				logger.Error("relay stopped with error", slog.String("error", err.Error()))
				return err
			}
			logger.Info("relay stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&server.TCPAddr, "tcp", server.TCPAddr, "TCP listen address (env: RELAY_TCP_ADDR)")
	flags.StringVar(&server.WSAddr, "ws", server.WSAddr, "Websocket listen address, empty to disable (env: RELAY_WS_ADDR)")
	flags.StringVar(&server.AdminAddr, "admin-addr", server.AdminAddr, "Admin API listen address, empty to disable (env: RELAY_ADMIN_ADDR)")
	flags.StringVar(&server.AdminPassword, "admin-password", server.AdminPassword, "Admin API password (env: RELAY_ADMIN_PASSWORD)")
	flags.BoolVar(&server.Standalone, "standalone", server.Standalone, "Accept logins without token or profile checks (env: RELAY_STANDALONE)")
	flags.StringVar(&secretKey, "secret-key", os.Getenv("RELAY_SECRET_KEY"), "Hex server secret key; generated when empty (env: RELAY_SECRET_KEY)")
	flags.StringVar(&server.TokenSecret, "token-secret", server.TokenSecret, "Login token signing secret (env: RELAY_TOKEN_SECRET)")
	flags.StringVar(&server.CentralURL, "central", server.CentralURL, "Central server URL (env: RELAY_CENTRAL_URL)")
	flags.StringVar(&server.CentralPassword, "central-password", server.CentralPassword, "Central server password (env: RELAY_CENTRAL_PASSWORD)")
	flags.StringVar(&storageType, "storage", storageType, "Local storage backend: memory, redis (env: STORAGE_TYPE)")
	flags.Float64Var(&server.MessagesPerSecond, "rate", server.MessagesPerSecond, "Inbound packets per second per connection")
	flags.IntVar(&server.Burst, "burst", server.Burst, "Inbound packet burst per connection")

	return cmd
}
