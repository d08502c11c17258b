package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mpccoordinator/core/dataset"
	"mpccoordinator/core/events"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/keyenvelope"
	"mpccoordinator/core/orchestrator"
	"mpccoordinator/core/proof"
	"mpccoordinator/core/query"
	"mpccoordinator/core/request"
	"mpccoordinator/core/vote"
	"mpccoordinator/gateway/middleware"
	"mpccoordinator/gateway/routes"
	"mpccoordinator/persistence"
	"mpccoordinator/storage"
)

const testJWTSecret = "test-coordinator-secret"

func signTestJWT(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func authHeader(t *testing.T, subject string) string {
	return "Bearer " + signTestJWT(t, subject)
}

type stubKDF struct{}

func (stubKDF) PublicKey(ctx context.Context, derivationID string) ([]byte, error) {
	return []byte("pub-" + derivationID), nil
}

func (stubKDF) DerivedKey(ctx context.Context, derivationID string) ([]byte, error) {
	m := make([]byte, 32)
	for i := range m {
		m[i] = byte(i + 1)
	}
	return m, nil
}

type stubOracle struct{}

func (stubOracle) Submit(ctx context.Context, prompt orchestrator.PromptInput) (string, error) {
	return "positive correlation", nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrate(db))
	return db
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	db := setupTestDB(t)

	hub := query.NewHub()
	emitter := events.MultiEmitter{hub}

	tokens := keyenvelope.NewTokenStore(storage.NewMemDB())
	keys, err := keyenvelope.NewService(stubKDF{}, tokens, persistence.NewHandleRepo(db), emitter)
	require.NoError(t, err)

	parties, err := identity.NewRegistry(persistence.NewPartyRepo(db), keys, time.Hour, emitter)
	require.NoError(t, err)

	datasets, err := dataset.NewDatasetStore(persistence.NewDatasetRepo(db), parties, emitter)
	require.NoError(t, err)

	votes, err := vote.NewLedger(persistence.NewVoteRepo(db), emitter)
	require.NoError(t, err)

	requests, err := request.NewEngine(parties, votes, datasets, tokens, persistence.NewRequestRepo(db), emitter)
	require.NoError(t, err)

	proofs, err := proof.NewLog(persistence.NewProofRepo(db), proof.Config{}, emitter)
	require.NoError(t, err)

	orch := orchestrator.New(requests, datasets, keys, stubOracle{}, proofs, orchestrator.DefaultTemplate())

	gateway := query.NewGateway(parties, datasets, requests, proofs)

	authenticator := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        true,
		HMACSecret:     testJWTSecret,
		OptionalPaths:  []string{"/api/v1/parties/active", "/api/v1/requests/public", "/api/v1/proofs"},
		AllowAnonymous: true,
	}, nil)

	return routes.NewRouter(&routes.Services{
		Parties:      parties,
		Keys:         keys,
		Datasets:     datasets,
		Requests:     requests,
		Orchestrator: orch,
		Gateway:      gateway,
		Hub:          hub,
		Auth:         authenticator,
		CORS:         middleware.CORSConfig{},
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path, subject string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if subject != "" {
		req.Header.Set("Authorization", authHeader(t, subject))
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	return recorder
}

// TestRequestLifecycle walks a request from registration through unanimous
// approval to a completed execution with an emitted proof, mirroring the
// end-to-end shape of otc-gateway's TestInvoiceLifecycle.
func TestRequestLifecycle(t *testing.T) {
	handler := newTestRouter(t)

	for _, p := range []string{"alice", "bob"} {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/parties", p, map[string]string{"name": p, "role": "analyst"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/requests", "alice", map[string]string{
		"title":       "age vs outcome",
		"description": "does age correlate with outcome",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.RequestID)

	path := fmt.Sprintf("/api/v1/requests/%s/vote", created.RequestID)
	rec = doJSON(t, handler, http.MethodPost, path, "alice", map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, handler, http.MethodPost, path, "bob", map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var voteResp struct {
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &voteResp))
	require.Equal(t, "ReadyToExecute", voteResp.State)

	execPath := fmt.Sprintf("/api/v1/requests/%s/execute", created.RequestID)
	rec = doJSON(t, handler, http.MethodPost, execPath, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var execResp struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execResp))
	require.Equal(t, "positive correlation", execResp.Result)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/proofs/"+created.RequestID, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// TestVote_RejectsDuplicateVote exercises the DuplicateVote branch of the
// error taxonomy end-to-end through the HTTP layer.
func TestVote_RejectsDuplicateVote(t *testing.T) {
	handler := newTestRouter(t)

	for _, p := range []string{"alice", "bob"} {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/parties", p, map[string]string{"name": p, "role": "analyst"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/requests", "alice", map[string]string{
		"title":       "t",
		"description": "d",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	path := fmt.Sprintf("/api/v1/requests/%s/vote", created.RequestID)
	rec = doJSON(t, handler, http.MethodPost, path, "alice", map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodPost, path, "alice", map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusConflict, rec.Code)
	var errBody struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errBody))
	require.Equal(t, "DuplicateVote", errBody.Kind)
}

// TestExecute_RejectsNonRequester exercises the NotAuthorized branch: only
// the requester may call execute, even once the request is ReadyToExecute.
func TestExecute_RejectsNonRequester(t *testing.T) {
	handler := newTestRouter(t)

	for _, p := range []string{"alice", "bob"} {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/parties", p, map[string]string{"name": p, "role": "analyst"})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/requests", "alice", map[string]string{
		"title":       "t",
		"description": "d",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		RequestID string `json:"request_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	votePath := fmt.Sprintf("/api/v1/requests/%s/vote", created.RequestID)
	rec = doJSON(t, handler, http.MethodPost, votePath, "alice", map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, handler, http.MethodPost, votePath, "bob", map[string]string{"choice": "yes"})
	require.Equal(t, http.StatusOK, rec.Code)

	execPath := fmt.Sprintf("/api/v1/requests/%s/execute", created.RequestID)
	rec = doJSON(t, handler, http.MethodPost, execPath, "bob", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

// TestListActiveParties_AllowsAnonymous exercises an OptionalPaths route
// with no Authorization header at all.
func TestListActiveParties_AllowsAnonymous(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodGet, "/api/v1/parties/active", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

// TestCreateRequest_RejectsUnauthenticated exercises a protected route with
// no Authorization header.
func TestCreateRequest_RejectsUnauthenticated(t *testing.T) {
	handler := newTestRouter(t)
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/requests", "", map[string]string{"title": "t", "description": "d"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestListProofs_AllowsAnonymousButGetProofRequiresAuth confirms the
// optional-path match on "/api/v1/proofs" covers only the exact list
// route, not the single-proof lookup that happens to share its prefix.
func TestListProofs_AllowsAnonymousButGetProofRequiresAuth(t *testing.T) {
	handler := newTestRouter(t)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/proofs", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/proofs/req-does-not-exist", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
