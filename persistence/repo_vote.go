package persistence

import (
	"errors"

	"gorm.io/gorm"

	"mpccoordinator/core/vote"
)

// VoteRepo implements vote.Store against the votes table.
type VoteRepo struct {
	db *gorm.DB
}

// NewVoteRepo wraps db as a vote.Store.
func NewVoteRepo(db *gorm.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

// SaveVote appends a vote record. Votes are never updated once cast, so
// this is always an insert. The (request_id, voter) unique index is the
// durable backstop for one-vote-per-voter: the in-memory ledger already
// rejects a duplicate within a single process, but only the index catches
// a race across a restart that replays LoadVotes concurrently with a
// write.
func (r *VoteRepo) SaveVote(v vote.Vote) error {
	m := voteModel{
		RequestID: v.RequestID,
		Voter:     v.Voter,
		Choice:    string(v.Choice),
		Timestamp: v.Timestamp,
	}
	if err := r.db.Create(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return vote.ErrDuplicateVote
		}
		return err
	}
	return nil
}

// LoadVotes returns every persisted vote, in insertion order.
func (r *VoteRepo) LoadVotes() ([]vote.Vote, error) {
	var rows []voteModel
	if err := r.db.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]vote.Vote, 0, len(rows))
	for _, row := range rows {
		out = append(out, vote.Vote{
			RequestID: row.RequestID,
			Voter:     row.Voter,
			Choice:    vote.Choice(row.Choice),
			Timestamp: row.Timestamp,
		})
	}
	return out, nil
}
