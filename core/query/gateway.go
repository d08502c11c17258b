package query

import (
	"mpccoordinator/core/dataset"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/proof"
	"mpccoordinator/core/request"
)

// Gateway implements the Query Gateway component (§4.8 family in §6): a
// read-only façade over the coordinator's owning components. It never
// mutates state; every method here corresponds to one public operation
// in §6's operation table.
type Gateway struct {
	parties  *identity.Registry
	datasets *dataset.DatasetStore
	requests *request.Engine
	proofs   *proof.Log
}

// NewGateway constructs a Gateway over the coordinator's components.
func NewGateway(parties *identity.Registry, datasets *dataset.DatasetStore, requests *request.Engine, proofs *proof.Log) *Gateway {
	return &Gateway{parties: parties, datasets: datasets, requests: requests, proofs: proofs}
}

// ListActiveParties returns parties within the liveness window. Anonymous
// callers may call this (§6).
func (g *Gateway) ListActiveParties() []*identity.Party {
	return g.parties.ListActive()
}

// ListParties returns every registered party, active or not.
func (g *Gateway) ListParties() []*identity.Party {
	return g.parties.ListAll()
}

// GetIdentity resolves the caller's own party record.
func (g *Gateway) GetIdentity(principal string) (*identity.Party, error) {
	return g.parties.Lookup(principal)
}

// ListAllDatasets returns every dataset's metadata.
func (g *Gateway) ListAllDatasets() []*dataset.Dataset {
	return g.datasets.GetAll()
}

// ListMyDatasets returns datasets visible to principal (owned or granted).
func (g *Gateway) ListMyDatasets(principal string) []*dataset.Dataset {
	return g.datasets.GetFor(principal)
}

// ListRequests returns every request's full record, for authenticated callers.
func (g *Gateway) ListRequests() []*request.Request {
	return g.requests.ListAll()
}

// ListRequestsPublicView returns the reduced projection visible to
// anonymous callers (§6: list_requests_public_view).
func (g *Gateway) ListRequestsPublicView() []request.PublicView {
	return g.requests.ListPublicView()
}

// GetRequest returns a single request by id.
func (g *Gateway) GetRequest(id string) (*request.Request, error) {
	return g.requests.Get(id)
}

// GetProof returns the proof record bound to a request id.
func (g *Gateway) GetProof(requestID string) (*proof.Record, error) {
	return g.proofs.ByRequestID(requestID)
}

// ListProofs returns the full proof chain in position order. Anonymous
// callers may call this (§6).
func (g *Gateway) ListProofs() []*proof.Record {
	return g.proofs.ListAll()
}
