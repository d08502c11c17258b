package proof_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mpccoordinator/core/proof"
)

type memStore struct {
	records []*proof.Record
}

func (m *memStore) SaveProof(r *proof.Record) error {
	m.records = append(m.records, r)
	return nil
}

func (m *memStore) LoadProofs() ([]*proof.Record, error) {
	return m.records, nil
}

func TestAppend_ChainsPriorHash(t *testing.T) {
	log, err := proof.NewLog(&memStore{}, proof.Config{}, nil)
	require.NoError(t, err)

	handle1, err := log.Append("req-1", "alice", []string{"ds-1"}, [32]byte{1}, []string{"unanimous-consent"})
	require.NoError(t, err)
	require.NotEmpty(t, handle1)

	handle2, err := log.Append("req-2", "bob", []string{"ds-2"}, [32]byte{2}, []string{"unanimous-consent"})
	require.NoError(t, err)
	require.NotEqual(t, handle1, handle2)

	r1, err := log.ByPosition(1)
	require.NoError(t, err)
	r2, err := log.ByPosition(2)
	require.NoError(t, err)
	require.Equal(t, r1.ContentHash(), r2.PriorHash)
}

func TestByRequestID_ReturnsNotFoundForUnknownRequest(t *testing.T) {
	log, err := proof.NewLog(&memStore{}, proof.Config{}, nil)
	require.NoError(t, err)
	_, err = log.ByRequestID("missing")
	require.ErrorIs(t, err, proof.ErrNotFound)
}

func TestListAll_PreservesPositionOrder(t *testing.T) {
	log, err := proof.NewLog(&memStore{}, proof.Config{}, nil)
	require.NoError(t, err)
	_, err = log.Append("req-1", "alice", nil, [32]byte{1}, nil)
	require.NoError(t, err)
	_, err = log.Append("req-2", "alice", nil, [32]byte{2}, nil)
	require.NoError(t, err)

	all := log.ListAll()
	require.Len(t, all, 2)
	require.Equal(t, uint64(1), all[0].Position)
	require.Equal(t, uint64(2), all[1].Position)
}
