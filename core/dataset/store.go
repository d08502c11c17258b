package dataset

import (
	"fmt"
	"sync"
	"time"

	"mpccoordinator/core/events"
	"mpccoordinator/core/identity"
)

// PartyResolver is the narrow slice of the Identity Registry the store
// depends on: confirming a caller is registered and resolving its display
// name for the owner-name snapshot (§3).
type PartyResolver interface {
	DisplayName(principal string) (string, bool)
}

// Store persists dataset records across restarts.
type Store interface {
	SaveDataset(*Dataset) error
	LoadDatasets() ([]*Dataset, error)
}

// DatasetStore implements the Dataset Store component (§4.3).
type DatasetStore struct {
	mu           sync.RWMutex
	datasets     map[string]*Dataset
	uploadCounts map[string]int
	uploadQuota  int
	parties      PartyResolver
	store        Store
	emitter      events.Emitter
	nowFn        func() time.Time
}

// NewDatasetStore constructs a DatasetStore and hydrates it from store.
func NewDatasetStore(store Store, parties PartyResolver, emitter events.Emitter) (*DatasetStore, error) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s := &DatasetStore{
		datasets:     make(map[string]*Dataset),
		uploadCounts: make(map[string]int),
		parties:      parties,
		store:        store,
		emitter:      emitter,
		nowFn:        time.Now,
	}
	if store != nil {
		existing, err := store.LoadDatasets()
		if err != nil {
			return nil, err
		}
		for _, d := range existing {
			s.datasets[d.ID] = d
			s.uploadCounts[d.Owner]++
		}
	}
	return s, nil
}

// SetNowFunc overrides the clock; used by tests.
func (s *DatasetStore) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// SetUploadQuota caps the number of distinct datasets a single principal
// may hold in custody (§5: "uploads remain accepted up to the
// per-principal quota"). A non-positive quota disables the cap.
func (s *DatasetStore) SetUploadQuota(quota int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadQuota = quota
}

// Upload registers an encrypted blob for owner. Duplicate (owner, content,
// name) uploads are detected by id and return the existing record (§4.3).
func (s *DatasetStore) Upload(owner, name string, ciphertext []byte, schema string, recordCount uint32, handle string) (*Dataset, error) {
	if owner == "" {
		return nil, fmt.Errorf("dataset: owner required")
	}
	if err := validatePayload(ciphertext); err != nil {
		return nil, err
	}
	if len(schema) > MaxSchemaBytes {
		return nil, fmt.Errorf("%w: schema exceeds %d bytes", ErrPayloadTooLarge, MaxSchemaBytes)
	}

	id := DeriveID(owner, ciphertext, name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.datasets[id]; ok {
		return existing.Clone(), nil
	}

	if s.uploadQuota > 0 && s.uploadCounts[owner] >= s.uploadQuota {
		return nil, fmt.Errorf("%w: %d datasets", ErrUploadQuotaExceeded, s.uploadQuota)
	}

	displayName := owner
	if s.parties != nil {
		name, ok := s.parties.DisplayName(owner)
		if !ok {
			return nil, identity.ErrNotRegistered
		}
		displayName = name
	}

	ds := &Dataset{
		ID:                id,
		Owner:             owner,
		OwnerDisplayName:  displayName,
		Name:              name,
		Schema:            schema,
		RecordCount:       recordCount,
		EncryptedPayload:  append([]byte(nil), ciphertext...),
		KeyEnvelopeHandle: handle,
		CreatedAt:         s.nowFn(),
		AccessList:        map[string]struct{}{owner: {}},
	}
	s.datasets[id] = ds
	if s.store != nil {
		if err := s.store.SaveDataset(ds); err != nil {
			delete(s.datasets, id)
			return nil, err
		}
	}
	s.uploadCounts[owner]++
	s.emitter.Emit(events.DatasetUploaded{DatasetID: id, Owner: owner})
	return ds.Clone(), nil
}

// GetAll returns every dataset's metadata and payload handle. Payload
// bytes are still present (the store is the custody boundary, not a
// disclosure boundary) but are never decrypted here.
func (s *DatasetStore) GetAll() []*Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d.Clone())
	}
	return out
}

// GetFor returns datasets visible to principal: owned or access-granted.
func (s *DatasetStore) GetFor(principal string) []*Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Dataset, 0)
	for _, d := range s.datasets {
		if d.Visible(principal) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// ListVisibleDatasetIDs returns the ids of datasets visible to principal,
// for the Request Engine's execute-time input snapshot (§4.4, §9).
func (s *DatasetStore) ListVisibleDatasetIDs(principal string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for _, d := range s.datasets {
		if d.Visible(principal) {
			out = append(out, d.ID)
		}
	}
	return out
}

// Get returns a single dataset by id.
func (s *DatasetStore) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d.Clone(), nil
}

// Grant adds principal to dataset id's access list. Only the owner may
// grant (§4.3).
func (s *DatasetStore) Grant(id, caller, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[id]
	if !ok {
		return ErrNotFound
	}
	if d.Owner != caller {
		return ErrNotOwner
	}
	d.AccessList[principal] = struct{}{}
	if s.store != nil {
		if err := s.store.SaveDataset(d); err != nil {
			delete(d.AccessList, principal)
			return err
		}
	}
	return nil
}
