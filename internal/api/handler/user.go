package handler

import (
	"encoding/json"
	"net/http"

	"github.com/mcoot/relaygate/internal/api/request"
	"github.com/mcoot/relaygate/internal/api/response"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/registry"
	"github.com/mcoot/relaygate/internal/services/profile"
)

// RoleLookup validates role ids
type RoleLookup interface {
	Role(id string) (model.Role, error)
}

// UserHandler manages the relay's local user entries
type UserHandler struct {
	profiles *profile.Service
	roles    RoleLookup
	registry *registry.Registry
}

// NewUserHandler creates a new user handler
func NewUserHandler(profiles *profile.Service, roles RoleLookup, reg *registry.Registry) *UserHandler {
	return &UserHandler{
		profiles: profiles,
		roles:    roles,
		registry: reg,
	}
}

// List handles GET /api/v1/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.profiles.ListUsers(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := response.UsersResponse{Users: make([]response.User, 0, len(entries))}
	for _, e := range entries {
		resp.Users = append(resp.Users, response.UserFromModel(e, h.online(e.AccountID)))
	}
	response.JSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/users/{account_id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	entry, err := h.profiles.GetUser(r.Context(), accountID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.UserFromModel(entry, h.online(accountID)))
}

// Update handles PUT /api/v1/users/{account_id}
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	if req.UserRoles != nil {
		for _, id := range *req.UserRoles {
			if _, err := h.roles.Role(id); err != nil {
				WriteError(w, err)
				return
			}
		}
	}

	entry, err := h.profiles.GetUser(r.Context(), accountID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if req.UserName != nil {
		entry.UserName = *req.UserName
	}
	if req.NameColor != nil {
		entry.NameColor = *req.NameColor
	}
	if req.UserRoles != nil {
		entry.UserRoles = *req.UserRoles
	}
	if req.IsMuted != nil {
		entry.IsMuted = *req.IsMuted
	}
	if req.IsWhitelisted != nil {
		entry.IsWhitelisted = *req.IsWhitelisted
	}

	if err := h.profiles.SaveUser(r.Context(), entry); err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.UserFromModel(entry, h.online(accountID)))
}

// Ban handles POST /api/v1/users/{account_id}/ban
func (h *UserHandler) Ban(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var req request.BanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Expiry < 0 {
		WriteError(w, NewInvalidRequestError("expiry must not be negative"))
		return
	}

	entry, err := h.profiles.Ban(r.Context(), accountID, req.Reason, req.Expiry)
	if err != nil {
		WriteError(w, err)
		return
	}

	if req.Disconnect {
		if holder, ok := h.registry.Holder(accountID); ok {
			msg := "You have been banned from this server."
			if req.Reason != "" {
				msg = "You have been banned from this server: " + req.Reason
			}
			holder.Evict(msg)
		}
	}
	response.JSON(w, http.StatusOK, response.UserFromModel(entry, h.online(accountID)))
}

// Unban handles DELETE /api/v1/users/{account_id}/ban
func (h *UserHandler) Unban(w http.ResponseWriter, r *http.Request) {
	accountID, err := accountIDVar(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	entry, err := h.profiles.Unban(r.Context(), accountID)
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.UserFromModel(entry, h.online(accountID)))
}

func (h *UserHandler) online(accountID model.AccountID) bool {
	_, ok := h.registry.Holder(accountID)
	return ok
}
