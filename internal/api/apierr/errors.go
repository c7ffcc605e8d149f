package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/services/profile"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidAccountID = "INVALID_ACCOUNT_ID"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeAdminDisabled    = "ADMIN_DISABLED"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeRoleNotFound     = "ROLE_NOT_FOUND"
	CodeNotLoggedIn      = "NOT_LOGGED_IN"
	CodeCentralManaged   = "CENTRAL_MANAGED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, model.ErrUserNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeUserNotFound, "User not found"}}
	case errors.Is(err, model.ErrRoleNotFound):
		return &httpError{http.StatusBadRequest, APIError{CodeRoleNotFound, err.Error()}}
	case errors.Is(err, profile.ErrInvalidAccountID):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidAccountID, "Account ID must be a positive integer"}}
	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewAdminDisabledError is returned when no admin password is configured
func NewAdminDisabledError() error {
	return &httpError{http.StatusForbidden, APIError{CodeAdminDisabled, "Admin API is disabled on this relay"}}
}

// NewNotLoggedInError is returned when acting on an account with no live session
func NewNotLoggedInError() error {
	return &httpError{http.StatusNotFound, APIError{CodeNotLoggedIn, "Account is not logged in"}}
}

// NewCentralManagedError is returned by the local user endpoints when user
// entries come from the central server
func NewCentralManagedError() error {
	return &httpError{http.StatusConflict, APIError{CodeCentralManaged, "User entries are managed by the central server"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
