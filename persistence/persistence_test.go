package persistence_test

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mpccoordinator/core/dataset"
	"mpccoordinator/core/identity"
	"mpccoordinator/core/keyenvelope"
	"mpccoordinator/core/proof"
	"mpccoordinator/core/request"
	"mpccoordinator/core/vote"
	"mpccoordinator/persistence"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, persistence.AutoMigrate(db))
	return db
}

func TestPartyRepo_RoundTrips(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewPartyRepo(db)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.SaveParty(&identity.Party{
		Principal:         "alice",
		Name:              "Alice",
		Role:              "member",
		KeyEnvelopeHandle: "handle-1",
		FirstSeen:         now,
		LastSeen:          now,
		Active:            true,
	}))

	loaded, err := repo.LoadParties()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "alice", loaded[0].Principal)
	require.Equal(t, "Alice", loaded[0].Name)
	require.True(t, loaded[0].Active)
}

func TestHandleRepo_RoundTrips(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewHandleRepo(db)

	require.NoError(t, repo.SaveHandle("handle-1", keyenvelope.HandleRecord{
		Principal: "alice",
		Purpose:   "identity.registration",
		PublicKey: []byte{1, 2, 3},
	}))

	loaded, err := repo.LoadHandles()
	require.NoError(t, err)
	rec, ok := loaded["handle-1"]
	require.True(t, ok)
	require.Equal(t, "alice", rec.Principal)
	require.Equal(t, []byte{1, 2, 3}, rec.PublicKey)
}

func TestDatasetRepo_RoundTripsAccessList(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewDatasetRepo(db)

	require.NoError(t, repo.SaveDataset(&dataset.Dataset{
		ID:                "ds-1",
		Owner:             "alice",
		OwnerDisplayName:  "Alice",
		Name:              "customers",
		Schema:            "id,name",
		RecordCount:       10,
		EncryptedPayload:  []byte{0xde, 0xad},
		KeyEnvelopeHandle: "handle-1",
		CreatedAt:         time.Now().UTC().Truncate(time.Second),
		AccessList:        map[string]struct{}{"alice": {}, "bob": {}},
	}))

	loaded, err := repo.LoadDatasets()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0].AccessList, 2)
	_, ok := loaded[0].AccessList["bob"]
	require.True(t, ok)
}

func TestVoteRepo_PreservesInsertionOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewVoteRepo(db)

	require.NoError(t, repo.SaveVote(vote.Vote{RequestID: "req-1", Voter: "alice", Choice: vote.Yes, Timestamp: time.Now()}))
	require.NoError(t, repo.SaveVote(vote.Vote{RequestID: "req-1", Voter: "bob", Choice: vote.No, Timestamp: time.Now()}))

	loaded, err := repo.LoadVotes()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "alice", loaded[0].Voter)
	require.Equal(t, "bob", loaded[1].Voter)
}

func TestVoteRepo_RejectsDuplicateVoterAtStorageLayer(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewVoteRepo(db)

	require.NoError(t, repo.SaveVote(vote.Vote{RequestID: "req-1", Voter: "alice", Choice: vote.Yes, Timestamp: time.Now()}))

	err := repo.SaveVote(vote.Vote{RequestID: "req-1", Voter: "alice", Choice: vote.No, Timestamp: time.Now()})
	require.ErrorIs(t, err, vote.ErrDuplicateVote)

	loaded, err := repo.LoadVotes()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
}

func TestRequestRepo_RoundTripsSlices(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewRequestRepo(db)

	req := &request.Request{
		ID:              "req-1",
		Title:           "quarterly analysis",
		Description:     "",
		Requester:       "alice",
		RequiredVoters:  []string{"alice", "bob"},
		State:           request.PendingApproval,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
		InputDatasetIDs: nil,
		Result:          "",
		ProofHandle:     "",
		FailureReason:   "",
	}
	require.NoError(t, repo.SaveRequest(req))

	loaded, err := repo.LoadRequests()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, []string{"alice", "bob"}, loaded[0].RequiredVoters)
	require.Equal(t, request.PendingApproval, loaded[0].State)
	require.Empty(t, loaded[0].InputDatasetIDs)
}

func TestProofRepo_RoundTripsHashes(t *testing.T) {
	db := setupTestDB(t)
	repo := persistence.NewProofRepo(db)

	var oracleHash, priorHash [32]byte
	oracleHash[0] = 0xAB
	priorHash[0] = 0xCD

	rec := &proof.Record{
		RequestID:          "req-1",
		Requester:          "alice",
		DatasetIDs:         []string{"ds-1", "ds-2"},
		Position:           1,
		OracleResponseHash: oracleHash,
		GuaranteeLabels:    []string{"unanimous-consent"},
		PriorHash:          priorHash,
		Timestamp:          time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, repo.SaveProof(rec))

	loaded, err := repo.LoadProofs()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, oracleHash, loaded[0].OracleResponseHash)
	require.Equal(t, priorHash, loaded[0].PriorHash)
	require.Equal(t, []string{"ds-1", "ds-2"}, loaded[0].DatasetIDs)
}
