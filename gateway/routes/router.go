package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mpccoordinator/core/dataset"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/keyenvelope"
	"mpccoordinator/core/orchestrator"
	"mpccoordinator/core/query"
	"mpccoordinator/core/request"
	"mpccoordinator/gateway/middleware"
)

// Services bundles the coordinator's domain components and cross-cutting
// middleware that route handlers need. It plays the role Config/Server play
// in services/otc-gateway/server/server.go, split into a dependency bag
// rather than a single struct embedding every field at the top level.
type Services struct {
	Parties      *identity.Registry
	Keys         *keyenvelope.Service
	Datasets     *dataset.DatasetStore
	Requests     *request.Engine
	Orchestrator *orchestrator.Orchestrator
	Gateway      *query.Gateway
	Hub          *query.Hub

	Auth    *middleware.Authenticator
	Obs     *middleware.Observability
	RateLim *middleware.RateLimiter
	CORS    middleware.CORSConfig
}

// NewRouter builds the coordinator's HTTP router. Grounded on
// services/otc-gateway/server/server.go's buildRouter: chi request-id/
// real-ip/recoverer stack, then a single authenticator pass, then
// route groups per family.
func NewRouter(svc *Services) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(svc.CORS))
	if svc.Obs != nil {
		r.Use(svc.Obs.Middleware("gateway"))
	}
	if svc.RateLim != nil {
		r.Use(svc.RateLim.Middleware("default"))
	}
	if svc.Auth != nil {
		r.Use(svc.Auth.Middleware())
	}

	h := &handlers{svc: svc}

	r.Get("/healthz", h.healthz)
	if svc.Obs != nil {
		r.Get("/metrics", svc.Obs.MetricsHandler().ServeHTTP)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/parties/active", h.listActiveParties)
		api.Get("/parties", h.listParties)
		api.Post("/parties", h.registerParty)
		api.Get("/identity", h.getIdentity)

		api.Get("/keys/public-material", h.publicMaterial)
		api.Post("/keys/transport-encrypted-key", h.transportEncryptedKey)

		api.Post("/datasets", h.uploadDataset)
		api.Get("/datasets", h.listAllDatasets)
		api.Get("/datasets/mine", h.listMyDatasets)
		api.Post("/datasets/{id}/grant", h.grantDataset)

		api.Post("/requests", h.createRequest)
		api.Get("/requests", h.listRequests)
		api.Get("/requests/public", h.listRequestsPublicView)
		api.Get("/requests/{id}", h.getRequest)
		api.Post("/requests/{id}/vote", h.vote)
		api.Post("/requests/{id}/execute", h.execute)

		api.Get("/proofs", h.listProofs)
		api.Get("/proofs/{requestID}", h.getProof)

		if svc.Hub != nil {
			api.Get("/watch", svc.Hub.ServeWatch)
		}
	})

	return r
}

type handlers struct {
	svc *Services
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
