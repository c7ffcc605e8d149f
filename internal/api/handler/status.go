package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcoot/relaygate/internal/api/request"
	"github.com/mcoot/relaygate/internal/api/response"
	"github.com/mcoot/relaygate/internal/config"
	"github.com/mcoot/relaygate/internal/protocol"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/session"
)

// StatusHandler reports relay state and toggles maintenance mode
type StatusHandler struct {
	registry   *registry.Registry
	hub        *session.Hub
	central    *config.Central
	standalone bool
	serverKey  string
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(reg *registry.Registry, hub *session.Hub, central *config.Central, standalone bool, serverKey string) *StatusHandler {
	return &StatusHandler{
		registry:   reg,
		hub:        hub,
		central:    central,
		standalone: standalone,
		serverKey:  serverKey,
	}
}

// Get handles GET /api/v1/status
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.central.Snapshot()
	response.JSON(w, http.StatusOK, response.Status{
		PlayerCount:   h.registry.PlayerCount(),
		GlobalRoom:    h.registry.GlobalRoom().Len(),
		Sessions:      h.hub.Count(),
		Maintenance:   snap.Maintenance,
		TPS:           snap.TPS,
		Whitelist:     snap.Whitelist,
		Standalone:    h.standalone,
		ServerKey:     h.serverKey,
		ProtocolLevel: protocol.Version,
	})
}

// SetMaintenance handles POST /api/v1/maintenance
func (h *StatusHandler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	var req request.MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	h.central.SetMaintenance(req.Enabled)
	if req.Enabled && req.DisconnectAll {
		h.hub.CloseAll(session.MsgMaintenance)
	}

	h.Get(w, r)
}
