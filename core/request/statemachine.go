package request

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"mpccoordinator/core/events"
	"mpccoordinator/core/vote"
	"mpccoordinator/observability"
)

// PartyResolver is the narrow slice of the Identity Registry the engine
// depends on: confirming registration and producing the required-voters
// snapshot at create_request (§4.1 rationale).
type PartyResolver interface {
	IsRegistered(principal string) bool
	RequiredVoterSnapshot() []string
}

// DatasetLister resolves the datasets visible to a principal at the
// moment execute is invoked (§9's dataset-selection decision: "all
// datasets visible to the requester at execution time", snapshotted then).
type DatasetLister interface {
	ListVisibleDatasetIDs(principal string) []string
}

// TokenIssuer mints and revokes the single-use authorization token that
// gates unwrap_authorized during Executing (§4.2, §4.4).
type TokenIssuer interface {
	Issue(requestID string) (string, error)
	Revoke(requestID string) error
}

// Store persists requests across restarts.
type Store interface {
	SaveRequest(*Request) error
	LoadRequests() ([]*Request, error)
}

// Engine implements the Request State Machine (§4.4), the heart of the
// coordinator. Per-request transitions are serialized by a dedicated
// mutex per request id; unrelated requests proceed concurrently, matching
// the "single logical actor per request" scheduling model of §5.
type Engine struct {
	mu       sync.RWMutex
	requests map[string]*Request
	locksMu  sync.Mutex
	locks    map[string]*sync.Mutex

	parties  PartyResolver
	votes    *vote.Ledger
	datasets DatasetLister
	tokens   TokenIssuer
	store    Store
	emitter  events.Emitter
	nowFn    func() time.Time
	expiry   time.Duration
}

// NewEngine constructs an Engine and hydrates it from store.
func NewEngine(parties PartyResolver, votes *vote.Ledger, datasets DatasetLister, tokens TokenIssuer, store Store, emitter events.Emitter) (*Engine, error) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e := &Engine{
		requests: make(map[string]*Request),
		locks:    make(map[string]*sync.Mutex),
		parties:  parties,
		votes:    votes,
		datasets: datasets,
		tokens:   tokens,
		store:    store,
		emitter:  emitter,
		nowFn:    time.Now,
	}
	if store != nil {
		existing, err := store.LoadRequests()
		if err != nil {
			return nil, err
		}
		for _, r := range existing {
			e.requests[r.ID] = r
		}
	}
	return e, nil
}

// SetNowFunc overrides the clock; used by tests.
func (e *Engine) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

// SetExpiry configures the optional PendingApproval timeout (§9). Zero
// (the default) means requests never expire.
func (e *Engine) SetExpiry(d time.Duration) {
	e.expiry = d
}

func (e *Engine) lockFor(requestID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	lock, ok := e.locks[requestID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[requestID] = lock
	}
	return lock
}

// CreateRequest implements create_request (§4.4). The required-voters set
// is snapshotted now and never changes for the life of the request.
func (e *Engine) CreateRequest(id, requester, title, description string) (*Request, error) {
	if requester == "" {
		return nil, ErrUnauthenticated
	}
	if e.parties != nil && !e.parties.IsRegistered(requester) {
		return nil, ErrNotRegistered
	}
	title = strings.TrimSpace(title)
	if title == "" || len(title) > TitleMaxBytes {
		return nil, fmt.Errorf("%w: title must be 1-%d bytes", ErrInputTooLarge, TitleMaxBytes)
	}
	if len(description) > DescriptionMaxBytes {
		return nil, fmt.Errorf("%w: description exceeds %d bytes", ErrInputTooLarge, DescriptionMaxBytes)
	}

	var requiredVoters []string
	if e.parties != nil {
		requiredVoters = e.parties.RequiredVoterSnapshot()
	}
	if !containsString(requiredVoters, requester) {
		requiredVoters = append(requiredVoters, requester)
	}
	if len(requiredVoters) < MinRequiredVoters {
		return nil, fmt.Errorf("%w: at least %d registered parties required", ErrInvalidInput, MinRequiredVoters)
	}
	if len(requiredVoters) > MaxRequiredVoters {
		return nil, fmt.Errorf("%w: at most %d required voters permitted", ErrInvalidInput, MaxRequiredVoters)
	}

	r := &Request{
		ID:             id,
		Title:          title,
		Description:    description,
		Requester:      requester,
		RequiredVoters: requiredVoters,
		State:          PendingApproval,
		CreatedAt:      e.nowFn(),
	}

	e.mu.Lock()
	e.requests[id] = r
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveRequest(r); err != nil {
			e.mu.Lock()
			delete(e.requests, id)
			e.mu.Unlock()
			return nil, err
		}
	}
	e.emitter.Emit(events.RequestCreated{RequestID: id, Requester: requester, RequiredVoters: requiredVoters})
	observability.RequestMetrics().RecordTransition("", string(PendingApproval))
	return r.Clone(), nil
}

// Vote implements vote(request_id, yes|no) (§4.4). A No vote is
// immediately terminal; a Yes vote advances to ReadyToExecute only once
// every required voter has voted Yes.
func (e *Engine) Vote(requestID, voter string, choice vote.Choice) (State, error) {
	lock := e.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.getLocked(requestID)
	if err != nil {
		return "", err
	}
	e.applyExpiry(r)
	if r.State != PendingApproval {
		return r.State, ErrInvalidState
	}
	if !containsString(r.RequiredVoters, voter) {
		return r.State, ErrVoterNotInSet
	}

	if _, err := e.votes.Append(requestID, voter, choice); err != nil {
		return r.State, err
	}
	observability.RequestMetrics().RecordVote(string(choice))

	from := r.State
	switch choice {
	case vote.No:
		r.State = Rejected
	case vote.Yes:
		tally := e.votes.Tally(requestID, r.RequiredVoters)
		if tally.Yes == len(r.RequiredVoters) {
			r.State = ReadyToExecute
		}
	}
	if r.State != from {
		if err := e.persist(r); err != nil {
			return from, err
		}
		e.emitTransition(requestID, from, r.State)
	}
	return r.State, nil
}

// Execute implements execute(request_id) (§4.4): only the requester may
// call it, only from ReadyToExecute, and a concurrent call while already
// Executing fails fast rather than queuing.
func (e *Engine) Execute(requestID, caller string) (authToken string, inputDatasetIDs []string, err error) {
	lock := e.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.getLocked(requestID)
	if err != nil {
		return "", nil, err
	}
	e.applyExpiry(r)
	if r.State == Executing {
		return "", nil, ErrAlreadyExecuting
	}
	if r.State != ReadyToExecute {
		return "", nil, ErrInvalidState
	}
	if caller != r.Requester {
		return "", nil, ErrNotAuthorized
	}

	var visible []string
	if e.datasets != nil {
		visible = e.datasets.ListVisibleDatasetIDs(caller)
	}

	token, err := e.tokens.Issue(requestID)
	if err != nil {
		return "", nil, err
	}

	from := r.State
	r.State = Executing
	r.InputDatasetIDs = visible
	r.authToken = token
	if err := e.persist(r); err != nil {
		r.State = from
		_ = e.tokens.Revoke(requestID)
		return "", nil, err
	}
	e.emitTransition(requestID, from, r.State)
	observability.RequestMetrics().SetExecuting(true)
	return token, append([]string(nil), visible...), nil
}

// Complete implements the oracle_ok transition (§4.4 step 6): the
// orchestrator calls this after a successful oracle response.
func (e *Engine) Complete(requestID, result, proofHandle string) (*Request, error) {
	lock := e.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.getLocked(requestID)
	if err != nil {
		return nil, err
	}
	if r.State != Executing {
		return nil, ErrInvalidState
	}

	from := r.State
	r.State = Completed
	r.Result = result
	r.ProofHandle = proofHandle
	r.authToken = ""
	if err := e.persist(r); err != nil {
		return nil, err
	}
	_ = e.tokens.Revoke(requestID)
	e.emitTransition(requestID, from, r.State)
	observability.RequestMetrics().SetExecuting(false)
	return r.Clone(), nil
}

// Fail implements the oracle_err transition (§4.4): oracle exhaustion or
// an integrity failure during unwrap. No proof record is emitted for a
// failed request.
func (e *Engine) Fail(requestID, reason string) error {
	lock := e.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()

	r, err := e.getLocked(requestID)
	if err != nil {
		return err
	}
	if r.State != Executing {
		return ErrInvalidState
	}

	from := r.State
	r.State = Failed
	r.FailureReason = reason
	r.authToken = ""
	if err := e.persist(r); err != nil {
		return err
	}
	_ = e.tokens.Revoke(requestID)
	e.emitTransition(requestID, from, r.State)
	observability.RequestMetrics().SetExecuting(false)
	return nil
}

// Get returns a request by id, applying lazy expiry.
func (e *Engine) Get(requestID string) (*Request, error) {
	lock := e.lockFor(requestID)
	lock.Lock()
	defer lock.Unlock()
	r, err := e.getLocked(requestID)
	if err != nil {
		return nil, err
	}
	if e.applyExpiry(r) {
		if err := e.persist(r); err != nil {
			return nil, err
		}
	}
	return r.Clone(), nil
}

// ListAll returns every request's full record.
func (e *Engine) ListAll() []*Request {
	e.mu.RLock()
	ids := make([]string, 0, len(e.requests))
	for id := range e.requests {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	out := make([]*Request, 0, len(ids))
	for _, id := range ids {
		r, err := e.Get(id)
		if err == nil {
			out = append(out, r)
		}
	}
	return out
}

// ListPublicView returns the reduced projection visible to anonymous
// callers (§6: list_requests_public_view).
func (e *Engine) ListPublicView() []PublicView {
	all := e.ListAll()
	out := make([]PublicView, 0, len(all))
	for _, r := range all {
		out = append(out, r.ToPublicView())
	}
	return out
}

func (e *Engine) getLocked(requestID string) (*Request, error) {
	e.mu.RLock()
	r, ok := e.requests[requestID]
	e.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (e *Engine) persist(r *Request) error {
	if e.store == nil {
		return nil
	}
	return e.store.SaveRequest(r)
}

func (e *Engine) emitTransition(requestID string, from, to State) {
	e.emitter.Emit(events.RequestTransitioned{RequestID: requestID, From: string(from), To: string(to)})
	observability.RequestMetrics().RecordTransition(string(from), string(to))
}

// applyExpiry transitions r to Expired if a non-zero expiry is configured
// and r has lingered in PendingApproval past it. Returns true if it
// mutated r, so the caller knows to persist.
func (e *Engine) applyExpiry(r *Request) bool {
	if e.expiry <= 0 || r.State != PendingApproval {
		return false
	}
	if e.nowFn().Sub(r.CreatedAt) < e.expiry {
		return false
	}
	from := r.State
	r.State = Expired
	e.emitTransition(r.ID, from, r.State)
	return true
}
