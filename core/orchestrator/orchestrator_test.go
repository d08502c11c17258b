package orchestrator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"mpccoordinator/core/callbudget"
	"mpccoordinator/core/dataset"
	"mpccoordinator/core/keyenvelope"
	"mpccoordinator/core/orchestrator"
	"mpccoordinator/core/request"
)

type stubRequests struct {
	req         *request.Request
	executeErr  error
	failReason  string
	completed   bool
	completeRes string
}

func (s *stubRequests) Execute(requestID, caller string) (string, []string, error) {
	if s.executeErr != nil {
		return "", nil, s.executeErr
	}
	return "tok-1", []string{"ds-1"}, nil
}

func (s *stubRequests) Get(requestID string) (*request.Request, error) {
	return s.req, nil
}

func (s *stubRequests) Complete(requestID, result, proofHandle string) (*request.Request, error) {
	s.completed = true
	s.completeRes = result
	return s.req, nil
}

func (s *stubRequests) Fail(requestID, reason string) error {
	s.failReason = reason
	return nil
}

type stubDatasets struct {
	ds map[string]*dataset.Dataset
}

func (s *stubDatasets) Get(id string) (*dataset.Dataset, error) {
	return s.ds[id], nil
}

type stubKeys struct {
	plaintext []byte
	err       error
}

func (s *stubKeys) UnwrapAuthorized(handle string, ciphertext []byte, authorization, requestID string) ([]byte, error) {
	return s.plaintext, s.err
}

type stubOracle struct {
	failUntil int
	calls     int
	result    string
	err       error
}

func (s *stubOracle) Submit(ctx context.Context, prompt orchestrator.PromptInput) (string, error) {
	s.calls++
	if s.calls <= s.failUntil {
		return "", context.DeadlineExceeded
	}
	if s.err != nil {
		return "", s.err
	}
	return s.result, nil
}

type stubProofs struct {
	handle string
	err    error
	calls  int
}

func (s *stubProofs) Append(requestID, requester string, datasetIDs []string, responseHash [32]byte, labels []string) (string, error) {
	s.calls++
	return s.handle, s.err
}

func TestExecute_HappyPath(t *testing.T) {
	requests := &stubRequests{req: &request.Request{ID: "req-1", Requester: "alice", Title: "study"}}
	datasets := &stubDatasets{ds: map[string]*dataset.Dataset{
		"ds-1": {ID: "ds-1", KeyEnvelopeHandle: "h1", EncryptedPayload: []byte("cipher"), Schema: "age,outcome", RecordCount: 100},
	}}
	keys := &stubKeys{plaintext: []byte("plaintext rows never leave here")}
	oracle := &stubOracle{result: "positive correlation"}
	proofs := &stubProofs{handle: "proof-1"}

	o := orchestrator.New(requests, datasets, keys, oracle, proofs, nil)
	err := o.Execute(context.Background(), "req-1", "alice")
	require.NoError(t, err)
	require.True(t, requests.completed)
	require.Equal(t, "positive correlation", requests.completeRes)
	require.Equal(t, 1, proofs.calls)
}

func TestExecute_OracleRecoversWithinRetryBudget(t *testing.T) {
	requests := &stubRequests{req: &request.Request{ID: "req-1", Requester: "alice"}}
	datasets := &stubDatasets{ds: map[string]*dataset.Dataset{
		"ds-1": {ID: "ds-1", KeyEnvelopeHandle: "h1", EncryptedPayload: []byte("cipher")},
	}}
	keys := &stubKeys{plaintext: []byte("x")}
	oracle := &stubOracle{failUntil: 3, result: "ok"}
	proofs := &stubProofs{handle: "proof-1"}

	o := orchestrator.New(requests, datasets, keys, oracle, proofs, nil)
	o.SetRetryPolicy(orchestrator.RetryPolicy{MaxAttempts: 4, MinBackoff: 1, MaxBackoff: 2})
	err := o.Execute(context.Background(), "req-1", "alice")
	require.NoError(t, err)
	require.True(t, requests.completed)
}

func TestExecute_OracleExhaustionFailsRequest(t *testing.T) {
	requests := &stubRequests{req: &request.Request{ID: "req-1", Requester: "alice"}}
	datasets := &stubDatasets{ds: map[string]*dataset.Dataset{
		"ds-1": {ID: "ds-1", KeyEnvelopeHandle: "h1", EncryptedPayload: []byte("cipher")},
	}}
	keys := &stubKeys{plaintext: []byte("x")}
	oracle := &stubOracle{failUntil: 99}
	proofs := &stubProofs{}

	o := orchestrator.New(requests, datasets, keys, oracle, proofs, nil)
	o.SetRetryPolicy(orchestrator.RetryPolicy{MaxAttempts: 2, MinBackoff: 1, MaxBackoff: 2})
	err := o.Execute(context.Background(), "req-1", "alice")
	require.Error(t, err)
	require.False(t, requests.completed)
	require.NotEmpty(t, requests.failReason)
	require.Equal(t, 0, proofs.calls)
}

func TestExecute_FailsFastWhenCallBudgetExhausted(t *testing.T) {
	requests := &stubRequests{req: &request.Request{ID: "req-1", Requester: "alice"}}
	datasets := &stubDatasets{ds: map[string]*dataset.Dataset{
		"ds-1": {ID: "ds-1", KeyEnvelopeHandle: "h1", EncryptedPayload: []byte("cipher")},
	}}
	keys := &stubKeys{plaintext: []byte("x")}
	oracle := &stubOracle{result: "ok"}
	proofs := &stubProofs{handle: "proof-1"}

	budget := callbudget.New(1)
	release, err := budget.Acquire()
	require.NoError(t, err)
	defer release()

	o := orchestrator.New(requests, datasets, keys, oracle, proofs, nil)
	o.SetCallBudget(budget)
	err = o.Execute(context.Background(), "req-1", "alice")
	require.ErrorIs(t, err, callbudget.ErrTemporarilyUnavailable)
	require.False(t, requests.completed)
	require.NotEmpty(t, requests.failReason)
	require.Equal(t, 0, oracle.calls)
	require.Equal(t, 0, proofs.calls)
}

func TestExecute_UnwrapIntegrityFailureFailsRequestWithoutProof(t *testing.T) {
	requests := &stubRequests{req: &request.Request{ID: "req-1", Requester: "alice"}}
	datasets := &stubDatasets{ds: map[string]*dataset.Dataset{
		"ds-1": {ID: "ds-1", KeyEnvelopeHandle: "h1", EncryptedPayload: []byte("cipher")},
	}}
	keys := &stubKeys{err: keyenvelope.ErrIntegrityFailure}
	oracle := &stubOracle{}
	proofs := &stubProofs{}

	o := orchestrator.New(requests, datasets, keys, oracle, proofs, nil)
	err := o.Execute(context.Background(), "req-1", "alice")
	require.Error(t, err)
	require.Equal(t, 0, proofs.calls)
}
