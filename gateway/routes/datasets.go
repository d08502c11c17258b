package routes

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"mpccoordinator/gateway/middleware"
)

// datasetUploadPurpose scopes the key-envelope handle derived for a
// principal's uploaded datasets, distinct from the handle derived at
// registration time (§4.1's registrationPurpose).
const datasetUploadPurpose = "dataset.upload"

type uploadDatasetRequest struct {
	Name        string `json:"name"`
	Ciphertext  []byte `json:"ciphertext"`
	Schema      string `json:"schema"`
	RecordCount uint32 `json:"record_count"`
}

type uploadDatasetResponse struct {
	DatasetID string `json:"dataset_id"`
}

// uploadDataset implements `upload(name, ciphertext, schema, record_count)`
// (§6). The key-envelope handle is derived lazily against the caller's
// upload purpose; repeated uploads by the same principal share a handle,
// matching the KDF's principal/purpose derivation model (§4.2).
func (h *handlers) uploadDataset(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	var req uploadDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	handle, err := h.svc.Keys.DeriveHandle(principal, datasetUploadPurpose)
	if err != nil {
		writeError(w, err)
		return
	}
	ds, err := h.svc.Datasets.Upload(principal, req.Name, req.Ciphertext, req.Schema, req.RecordCount, handle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, uploadDatasetResponse{DatasetID: ds.ID})
}

// listAllDatasets implements `list_all_datasets()` (§6).
func (h *handlers) listAllDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Gateway.ListAllDatasets())
}

// listMyDatasets implements `list_my_datasets()` (§6).
func (h *handlers) listMyDatasets(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Gateway.ListMyDatasets(principal))
}

type grantDatasetRequest struct {
	Principal string `json:"principal"`
}

// grantDataset implements the Dataset Store's owner-only access grant
// (§4.3). Not itself a row in §6's public operation table, but required to
// make `list_my_datasets`/`Visible` access-grants reachable from the API.
func (h *handlers) grantDataset(w http.ResponseWriter, r *http.Request) {
	principal := middleware.Principal(r.Context())
	if principal == "" {
		writeError(w, errUnauthenticated)
		return
	}
	id := chi.URLParam(r, "id")
	var req grantDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := h.svc.Datasets.Grant(id, principal, req.Principal); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// publicMaterial implements `public_material()` (§6): returns the public
// half of the caller's registration-derived key, base64-encoded.
func (h *handlers) publicMaterial(w http.ResponseWriter, r *http.Request) {
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
	material, err := h.svc.Keys.PublicMaterial(party.KeyEnvelopeHandle)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_material": base64.StdEncoding.EncodeToString(material)})
}

type transportEncryptedKeyRequest struct {
	TransportPublicKey []byte `json:"transport_public_key"`
}

// transportEncryptedKey implements `transport_encrypted_key(transport_pk,
// derivation_id)` (§6), scoped to the caller's own registration handle.
func (h *handlers) transportEncryptedKey(w http.ResponseWriter, r *http.Request) {
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
	var req transportEncryptedKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	sealed, err := h.svc.Keys.EncryptedKeyFor(party.KeyEnvelopeHandle, req.TransportPublicKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"encrypted_key": base64.StdEncoding.EncodeToString(sealed)})
}
