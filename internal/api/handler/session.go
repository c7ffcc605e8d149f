package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mcoot/relaygate/internal/api/apierr"
	"github.com/mcoot/relaygate/internal/api/request"
	"github.com/mcoot/relaygate/internal/api/response"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/session"
)

const defaultKickMessage = "You have been kicked from the server."

// SessionHandler lists and disconnects live sessions
type SessionHandler struct {
	hub      *session.Hub
	registry *registry.Registry
	roles    session.RoleCatalog
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(hub *session.Hub, reg *registry.Registry, roles session.RoleCatalog) *SessionHandler {
	return &SessionHandler{hub: hub, registry: reg, roles: roles}
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.hub.Sessions()
	resp := response.SessionsResponse{Sessions: make([]response.Session, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, response.SessionFromModel(s))
	}
	response.JSON(w, http.StatusOK, resp)
}

// Kick handles DELETE /api/v1/sessions/{account_id}
func (h *SessionHandler) Kick(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.KickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Message == "" {
		req.Message = defaultKickMessage
	}

	holder, ok := h.registry.Holder(accountID)
	if !ok {
		WriteError(w, apierr.NewNotLoggedInError())
		return
	}
	holder.Evict(req.Message)
	response.NoContent(w)
}

// Roles handles GET /api/v1/roles
func (h *SessionHandler) Roles(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.RolesResponse{Roles: h.roles.AllRoles()})
}
