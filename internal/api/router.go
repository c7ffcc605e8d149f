package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcoot/relaygate/internal/api/apierr"
	"github.com/mcoot/relaygate/internal/api/handler"
	"github.com/mcoot/relaygate/internal/api/middleware"
	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/events"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/services/profile"
	"github.com/mcoot/relaygate/internal/services/roles"
	"github.com/mcoot/relaygate/internal/session"
)

// RouterConfig holds configuration for the admin API router
type RouterConfig struct {
	Logger        *slog.Logger
	AdminPassword string
	Standalone    bool
	// CentralManaged disables the local user endpoints; logins read user
	// entries from the central server instead
	CentralManaged bool
	ServerKey      string
	Profiles       *profile.Service
	Roles          *roles.Manager
	Registry       *registry.Registry
	Hub            *session.Hub
	Central        *config.Central
	Events         *events.Feed
	Gatherer       prometheus.Gatherer
}

// NewRouter creates the admin API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	statusHandler := handler.NewStatusHandler(cfg.Registry, cfg.Hub, cfg.Central, cfg.Standalone, cfg.ServerKey)
	userHandler := handler.NewUserHandler(cfg.Profiles, cfg.Roles, cfg.Registry)
	sessionHandler := handler.NewSessionHandler(cfg.Hub, cfg.Registry, cfg.Roles)

	adminAuth := middleware.AdminAuth(cfg.AdminPassword)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	// Public
	api.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	api.HandleFunc("/status", statusHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/roles", sessionHandler.Roles).Methods(http.MethodGet)

	// Admin
	admin := api.NewRoute().Subrouter()
	admin.Use(adminAuth)
	admin.HandleFunc("/maintenance", statusHandler.SetMaintenance).Methods(http.MethodPost)

	localUsers := func(next http.HandlerFunc) http.HandlerFunc {
		if !cfg.CentralManaged {
			return next
		}
		return func(w http.ResponseWriter, r *http.Request) {
			apierr.WriteError(w, apierr.NewCentralManagedError())
		}
	}
	admin.HandleFunc("/users", localUsers(userHandler.List)).Methods(http.MethodGet)
	admin.HandleFunc("/users/{account_id}", localUsers(userHandler.Get)).Methods(http.MethodGet)
	admin.HandleFunc("/users/{account_id}", localUsers(userHandler.Update)).Methods(http.MethodPut)
	admin.HandleFunc("/users/{account_id}/ban", localUsers(userHandler.Ban)).Methods(http.MethodPost)
	admin.HandleFunc("/users/{account_id}/ban", localUsers(userHandler.Unban)).Methods(http.MethodDelete)

	admin.HandleFunc("/sessions", sessionHandler.List).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{account_id}", sessionHandler.Kick).Methods(http.MethodDelete)

	if cfg.Events != nil {
		admin.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
			events.ServeSSE(w, r, cfg.Events)
		}).Methods(http.MethodGet)
	}

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
