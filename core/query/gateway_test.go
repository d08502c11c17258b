package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mpccoordinator/core/dataset"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/proof"
	"mpccoordinator/core/query"
	"mpccoordinator/core/request"
	"mpccoordinator/core/vote"
)

func TestGateway_DelegatesToUnderlyingComponents(t *testing.T) {
	parties, err := identity.NewRegistry(nil, nil, 0, nil)
	require.NoError(t, err)
	_, err = parties.Register("alice", "Alice", "member")
	require.NoError(t, err)
	_, err = parties.Register("bob", "Bob", "member")
	require.NoError(t, err)

	datasets, err := dataset.NewDatasetStore(nil, parties, nil)
	require.NoError(t, err)

	votes, err := vote.NewLedger(nil, nil)
	require.NoError(t, err)
	requests, err := request.NewEngine(parties, votes, datasets, &noopTokens{}, nil, nil)
	require.NoError(t, err)
	_, err = requests.CreateRequest("req-1", "alice", "title", "")
	require.NoError(t, err)

	proofs, err := proof.NewLog(nil, proof.Config{}, nil)
	require.NoError(t, err)

	gw := query.NewGateway(parties, datasets, requests, proofs)

	require.Len(t, gw.ListParties(), 2)
	require.Len(t, gw.ListRequestsPublicView(), 1)
	require.Empty(t, gw.ListAllDatasets())
	require.Empty(t, gw.ListProofs())
}

type noopTokens struct{}

func (noopTokens) Issue(requestID string) (string, error) { return "tok", nil }
func (noopTokens) Revoke(requestID string) error          { return nil }
