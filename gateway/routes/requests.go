package routes

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mpccoordinator/core/request"
	"mpccoordinator/core/vote"
	"mpccoordinator/gateway/middleware"
)

type createRequestRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type createRequestResponse struct {
	RequestID string `json:"request_id"`
}

// createRequest implements `create_request(title, description)` (§6).
func (h *handlers) createRequest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	id := newRequestID()
	created, err := h.svc.Requests.CreateRequest(id, principal, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createRequestResponse{RequestID: created.ID})
}

type voteRequest struct {
	Choice string `json:"choice"`
}

type voteResponse struct {
	State string `json:"state"`
}

// vote implements `vote(request_id, "yes"|"no")` (§6).
func (h *handlers) vote(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	id := chi.URLParam(r, "id")
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	var choice vote.Choice
	switch req.Choice {
	case string(vote.Yes):
		choice = vote.Yes
	case string(vote.No):
		choice = vote.No
	default:
		writeError(w, request.ErrInvalidInput)
		return
	}
	state, err := h.svc.Requests.Vote(id, principal, choice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{State: string(state)})
}

type executeResponse struct {
	Result string `json:"result"`
}

// execute implements `execute(request_id) -> result` (§6, §4.6). The HTTP
// call blocks for the full orchestration: unwrap, oracle analysis, proof
// emission. It returns once the request reaches Completed or Failed.
func (h *handlers) execute(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.svc.Orchestrator.Execute(r.Context(), id, principal); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.svc.Requests.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executeResponse{Result: req.Result})
}

// listRequests implements `list_requests()` (§6).
func (h *handlers) listRequests(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Gateway.ListRequests())
}

// listRequestsPublicView implements `list_requests_public_view()`.
// Anonymous callers are permitted (§6).
func (h *handlers) listRequestsPublicView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Gateway.ListRequestsPublicView())
}

// getRequest returns a single request's full record to an authenticated caller.
func (h *handlers) getRequest(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	id := chi.URLParam(r, "id")
	req, err := h.svc.Gateway.GetRequest(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
