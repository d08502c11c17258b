package dataset_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mpccoordinator/core/dataset"
)

type memStore struct {
	saved map[string]*dataset.Dataset
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*dataset.Dataset)}
}

func (m *memStore) SaveDataset(d *dataset.Dataset) error {
	m.saved[d.ID] = d.Clone()
	return nil
}

func (m *memStore) LoadDatasets() ([]*dataset.Dataset, error) {
	out := make([]*dataset.Dataset, 0, len(m.saved))
	for _, d := range m.saved {
		out = append(out, d)
	}
	return out, nil
}

type stubResolver struct{ names map[string]string }

func (r stubResolver) DisplayName(principal string) (string, bool) {
	name, ok := r.names[principal]
	return name, ok
}

func TestUpload_DeduplicatesIdenticalContent(t *testing.T) {
	store, err := dataset.NewDatasetStore(newMemStore(), stubResolver{names: map[string]string{"alice": "Alice"}}, nil)
	require.NoError(t, err)

	first, err := store.Upload("alice", "patients.csv", []byte("ciphertext-1"), "patient_id,age,outcome", 100, "handle-1")
	require.NoError(t, err)

	second, err := store.Upload("alice", "patients.csv", []byte("ciphertext-1"), "patient_id,age,outcome", 100, "handle-1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	all := store.GetAll()
	require.Len(t, all, 1)
}

func TestUpload_RejectsOversizedPayload(t *testing.T) {
	store, err := dataset.NewDatasetStore(newMemStore(), nil, nil)
	require.NoError(t, err)

	oversized := make([]byte, dataset.MaxPayloadBytes+1)
	_, err = store.Upload("alice", "big.csv", oversized, "a,b", 1, "handle-1")
	require.ErrorIs(t, err, dataset.ErrPayloadTooLarge)
}

func TestGetFor_ReturnsOwnedAndGrantedDatasets(t *testing.T) {
	store, err := dataset.NewDatasetStore(newMemStore(), nil, nil)
	require.NoError(t, err)

	ds, err := store.Upload("alice", "data.csv", []byte("ciphertext"), "a,b", 10, "handle-1")
	require.NoError(t, err)

	require.Empty(t, store.GetFor("bob"))

	require.NoError(t, store.Grant(ds.ID, "alice", "bob"))
	bobsView := store.GetFor("bob")
	require.Len(t, bobsView, 1)
	require.Equal(t, ds.ID, bobsView[0].ID)
}

func TestGrant_RejectsNonOwner(t *testing.T) {
	store, err := dataset.NewDatasetStore(newMemStore(), nil, nil)
	require.NoError(t, err)

	ds, err := store.Upload("alice", "data.csv", []byte("ciphertext"), "a,b", 10, "handle-1")
	require.NoError(t, err)

	err = store.Grant(ds.ID, "bob", "carol")
	require.ErrorIs(t, err, dataset.ErrNotOwner)
}

func TestUpload_EnforcesPerPrincipalQuota(t *testing.T) {
	store, err := dataset.NewDatasetStore(newMemStore(), nil, nil)
	require.NoError(t, err)
	store.SetUploadQuota(1)

	_, err = store.Upload("alice", "first.csv", []byte("ciphertext-1"), "a,b", 10, "handle-1")
	require.NoError(t, err)

	_, err = store.Upload("alice", "second.csv", []byte("ciphertext-2"), "a,b", 10, "handle-2")
	require.ErrorIs(t, err, dataset.ErrUploadQuotaExceeded)

	// A duplicate of an already-counted upload is still accepted: it
	// returns the existing record rather than consuming new quota.
	_, err = store.Upload("alice", "first.csv", []byte("ciphertext-1"), "a,b", 10, "handle-1")
	require.NoError(t, err)

	// The quota is per-principal; bob is unaffected by alice's usage.
	_, err = store.Upload("bob", "first.csv", []byte("ciphertext-3"), "a,b", 10, "handle-3")
	require.NoError(t, err)
}
