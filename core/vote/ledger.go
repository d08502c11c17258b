package vote

import (
	"errors"
	"sync"
	"time"

	"mpccoordinator/core/events"
)

// Choice is a voter's explicit decision (§3).
type Choice string

const (
	Yes Choice = "yes"
	No  Choice = "no"
)

// ErrDuplicateVote is returned when a voter has already voted on a request.
var ErrDuplicateVote = errors.New("vote: voter already voted")

// Vote is an immutable, append-only record (§3, §4.5).
type Vote struct {
	RequestID string
	Voter     string
	Choice    Choice
	Timestamp time.Time
}

// Tally summarizes a request's votes against its required-voters snapshot.
type Tally struct {
	Yes     int
	No      int
	Pending int
}

// Store persists votes across restarts.
type Store interface {
	SaveVote(Vote) error
	LoadVotes() ([]Vote, error)
}

// Ledger implements the Vote Ledger component (§4.5): append-only, one
// vote per voter per request, with deterministically derived tallies.
type Ledger struct {
	mu      sync.RWMutex
	byReq   map[string][]Vote
	store   Store
	emitter events.Emitter
	nowFn   func() time.Time
}

// NewLedger constructs a Ledger and hydrates it from store.
func NewLedger(store Store, emitter events.Emitter) (*Ledger, error) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l := &Ledger{
		byReq:   make(map[string][]Vote),
		store:   store,
		emitter: emitter,
		nowFn:   time.Now,
	}
	if store != nil {
		existing, err := store.LoadVotes()
		if err != nil {
			return nil, err
		}
		for _, v := range existing {
			l.byReq[v.RequestID] = append(l.byReq[v.RequestID], v)
		}
	}
	return l, nil
}

// SetNowFunc overrides the clock; used by tests.
func (l *Ledger) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		l.nowFn = fn
	}
}

// Append records voter's choice for requestID. Rejects a second vote from
// the same voter on the same request, regardless of the earlier choice.
func (l *Ledger) Append(requestID, voter string, choice Choice) (Vote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.byReq[requestID] {
		if existing.Voter == voter {
			return Vote{}, ErrDuplicateVote
		}
	}

	v := Vote{RequestID: requestID, Voter: voter, Choice: choice, Timestamp: l.nowFn()}
	if l.store != nil {
		if err := l.store.SaveVote(v); err != nil {
			return Vote{}, err
		}
	}
	l.byReq[requestID] = append(l.byReq[requestID], v)
	l.emitter.Emit(events.VoteCast{RequestID: requestID, Voter: voter, Choice: string(choice)})
	return v, nil
}

// Votes returns every vote cast on requestID, in append order.
func (l *Ledger) Votes(requestID string) []Vote {
	l.mu.RLock()
	defer l.mu.RUnlock()
	existing := l.byReq[requestID]
	out := make([]Vote, len(existing))
	copy(out, existing)
	return out
}

// HasVoted reports whether voter has already voted on requestID.
func (l *Ledger) HasVoted(requestID, voter string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, v := range l.byReq[requestID] {
		if v.Voter == voter {
			return true
		}
	}
	return false
}

// Tally computes yes/no/pending counts against requiredVoters.
func (l *Ledger) Tally(requestID string, requiredVoters []string) Tally {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cast := make(map[string]Choice, len(l.byReq[requestID]))
	for _, v := range l.byReq[requestID] {
		cast[v.Voter] = v.Choice
	}
	var t Tally
	for _, voter := range requiredVoters {
		switch cast[voter] {
		case Yes:
			t.Yes++
		case No:
			t.No++
		default:
			t.Pending++
		}
	}
	return t
}
