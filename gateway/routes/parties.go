package routes

import (
	"encoding/json"
	"net/http"

	"mpccoordinator/core/identity"
	"mpccoordinator/gateway/middleware"
)

type registerPartyRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// partyView augments a Party with its derived display address. The
// embedded Party's fields, including the raw Principal, are serialized
// alongside it.
type partyView struct {
	*identity.Party
	Address string `json:"address"`
}

func viewParty(p *identity.Party) partyView {
	return partyView{Party: p, Address: p.DisplayAddress()}
}

func viewParties(parties []*identity.Party) []partyView {
	out := make([]partyView, 0, len(parties))
	for _, p := range parties {
		out = append(out, viewParty(p))
	}
	return out
}

// registerParty implements `register_party(name, role)` (§6).
func (h *handlers) registerParty(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	var req registerPartyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	party, err := h.svc.Parties.Register(principal, req.Name, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewParty(party))
}

// getIdentity implements `get_user_identity()` (§6).
func (h *handlers) getIdentity(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	party, err := h.svc.Gateway.GetIdentity(principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewParty(party))
}

// listActiveParties implements `list_active_parties()`. Anonymous callers
// are permitted (§6).
func (h *handlers) listActiveParties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewParties(h.svc.Gateway.ListActiveParties()))
}

// listParties implements `list_parties()` (§6).
func (h *handlers) listParties(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, viewParties(h.svc.Gateway.ListParties()))
}
