package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/relaygate/internal/api/apierr"
	"github.com/mcoot/relaygate/internal/model"
	"github.com/mcoot/relaygate/internal/services/profile"
)

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// accountIDVar parses the {account_id} route variable
func accountIDVar(r *http.Request) (model.AccountID, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["account_id"], 10, 32)
	if err != nil || id <= 0 {
		return 0, profile.ErrInvalidAccountID
	}
	return model.AccountID(id), nil
}
