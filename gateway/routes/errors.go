package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"mpccoordinator/core/callbudget"
	"mpccoordinator/core/dataset"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/keyenvelope"
	"mpccoordinator/core/orchestrator"
	"mpccoordinator/core/proof"
	"mpccoordinator/core/request"
	"mpccoordinator/core/vote"
	"mpccoordinator/observability"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errUnauthenticated is returned by handlers that require a caller
// principal the authentication middleware did not supply.
var errUnauthenticated = identity.ErrUnauthenticated

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a sentinel error from §7's taxonomy onto an HTTP status
// and a {kind, message} body, recording a gateway-level rejection metric
// labelled with the error kind for every error response it writes.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= 400 {
		observability.Gateway().RecordRejection(kind)
	}
	writeJSON(w, status, errorBody{Kind: kind, Message: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated), errors.Is(err, request.ErrUnauthenticated):
		return http.StatusUnauthorized, "Unauthenticated"
	case errors.Is(err, identity.ErrNotRegistered), errors.Is(err, request.ErrNotRegistered):
		return http.StatusForbidden, "NotRegistered"
	case errors.Is(err, identity.ErrNameTooLong):
		return http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, request.ErrNotAuthorized):
		return http.StatusForbidden, "NotAuthorized"
	case errors.Is(err, request.ErrInvalidState):
		return http.StatusConflict, "InvalidState"
	case errors.Is(err, vote.ErrDuplicateVote):
		return http.StatusConflict, "DuplicateVote"
	case errors.Is(err, request.ErrVoterNotInSet):
		return http.StatusForbidden, "VoterNotInSet"
	case errors.Is(err, request.ErrInputTooLarge), errors.Is(err, dataset.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, "InputTooLarge"
	case errors.Is(err, request.ErrInvalidInput):
		return http.StatusBadRequest, "InvalidInput"
	case errors.Is(err, callbudget.ErrTemporarilyUnavailable):
		return http.StatusServiceUnavailable, "TemporarilyUnavailable"
	case errors.Is(err, keyenvelope.ErrKdfUnavailable):
		return http.StatusServiceUnavailable, "KdfUnavailable"
	case errors.Is(err, orchestrator.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "OracleUnavailable"
	case errors.Is(err, dataset.ErrUploadQuotaExceeded):
		return http.StatusTooManyRequests, "UploadQuotaExceeded"
	case errors.Is(err, keyenvelope.ErrIntegrityFailure):
		return http.StatusUnprocessableEntity, "IntegrityFailure"
	case errors.Is(err, keyenvelope.ErrAuthorizationInvalid):
		return http.StatusForbidden, "AuthorizationInvalid"
	case errors.Is(err, request.ErrAlreadyExecuting):
		return http.StatusConflict, "AlreadyExecuting"
	case errors.Is(err, request.ErrNotFound), errors.Is(err, dataset.ErrNotFound), errors.Is(err, proof.ErrNotFound):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, dataset.ErrNotOwner):
		return http.StatusForbidden, "NotAuthorized"
	default:
		return http.StatusInternalServerError, "Internal"
	}
}
