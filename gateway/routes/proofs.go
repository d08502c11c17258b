package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// listProofs implements `list_proofs()`. Anonymous callers are permitted
// (§6).
func (h *handlers) listProofs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Gateway.ListProofs())
}

// getProof implements `generate_proof(request_id) -> proof handle` (§6):
// the proof record for a completed request is generated once, during
// execute, and this returns the stored record (including its chain
// position) rather than regenerating anything. The hex proof handle is
// not a field of the response; it is stored on the request record.
func (h *handlers) getProof(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	rec, err := h.svc.Gateway.GetProof(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
