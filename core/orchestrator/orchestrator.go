package orchestrator

import (
	"context"
	"crypto/sha256"
	"time"

	"mpccoordinator/core/dataset"
	"mpccoordinator/core/request"
	"mpccoordinator/observability"
)

// KeyEnvelope is the narrow slice of the Key Envelope Service the
// Orchestrator depends on: unwrapping dataset payloads under a
// request-scoped authorization (§4.2, §4.6 step 3).
type KeyEnvelope interface {
	UnwrapAuthorized(handle string, ciphertext []byte, authorization, requestID string) ([]byte, error)
}

// DatasetReader resolves dataset records by id.
type DatasetReader interface {
	Get(id string) (*dataset.Dataset, error)
}

// RequestDriver is the slice of the Request Engine the Orchestrator drives
// through execute/complete/fail (§4.4, §4.6).
type RequestDriver interface {
	Execute(requestID, caller string) (token string, datasetIDs []string, err error)
	Get(requestID string) (*request.Request, error)
	Complete(requestID, result, proofHandle string) (*request.Request, error)
	Fail(requestID, reason string) error
}

// CallBudget bounds concurrent oracle calls against the pool the spec
// shares with the Key Envelope Service's KDF calls (§5). Kept as a narrow
// interface to avoid a cycle with core/keyenvelope.
type CallBudget interface {
	Acquire() (release func(), err error)
}

// ProofAppender emits the hash-chained proof record on successful
// execution (§4.7).
type ProofAppender interface {
	Append(requestID, requester string, datasetIDs []string, oracleResponseHash [32]byte, guaranteeLabels []string) (proofHandle string, err error)
}

// Orchestrator implements the Execution Orchestrator (§4.6). It is driven
// entirely by Execute; it owns no mutable state of its own beyond its
// dependencies, matching the coordinator's single-owning-container model
// (§9).
type Orchestrator struct {
	requests RequestDriver
	datasets DatasetReader
	keys     KeyEnvelope
	oracle   OracleClient
	proofs   ProofAppender
	template *Template
	policy   RetryPolicy
	budget   CallBudget
}

// New constructs an Orchestrator.
func New(requests RequestDriver, datasets DatasetReader, keys KeyEnvelope, oracle OracleClient, proofs ProofAppender, template *Template) *Orchestrator {
	if template == nil {
		template = DefaultTemplate()
	}
	return &Orchestrator{
		requests: requests,
		datasets: datasets,
		keys:     keys,
		oracle:   oracle,
		proofs:   proofs,
		template: template,
		policy:   DefaultRetryPolicy(),
	}
}

// SetRetryPolicy overrides the bounded oracle retry budget.
func (o *Orchestrator) SetRetryPolicy(p RetryPolicy) {
	o.policy = p
}

// SetCallBudget installs the shared KDF/oracle call pool. Unset, Execute
// proceeds straight to the oracle call with no admission check.
func (o *Orchestrator) SetCallBudget(b CallBudget) {
	o.budget = b
}

// Execute drives request requestID from ReadyToExecute through to
// Completed or Failed (§4.6 steps 1-6). caller must be the request's
// requester; the Request Engine itself enforces that and ErrAlreadyExecuting.
func (o *Orchestrator) Execute(ctx context.Context, requestID, caller string) error {
	token, datasetIDs, err := o.requests.Execute(requestID, caller)
	if err != nil {
		return err
	}

	req, err := o.requests.Get(requestID)
	if err != nil {
		return err
	}

	prompt := PromptInput{
		RequestID:   requestID,
		Title:       req.Title,
		Description: req.Description,
	}

	for _, id := range datasetIDs {
		ds, err := o.datasets.Get(id)
		if err != nil {
			_ = o.requests.Fail(requestID, "dataset lookup failed: "+err.Error())
			return err
		}
		plaintext, err := o.keys.UnwrapAuthorized(ds.KeyEnvelopeHandle, ds.EncryptedPayload, token, requestID)
		if err != nil {
			_ = o.requests.Fail(requestID, "unwrap failed: "+err.Error())
			return err
		}
		// The plaintext is zeroed immediately after a successful unwrap.
		// Neither it nor its length is recorded in the proof input; the
		// proof record carries only the dataset ids.
		_ = len(plaintext)
		zero(plaintext)

		prompt.Datasets = append(prompt.Datasets, DatasetMeta{
			DatasetID:   ds.ID,
			Schema:      ds.Schema,
			RecordCount: ds.RecordCount,
		})
	}

	release, budgetErr := o.acquireBudget()
	if budgetErr != nil {
		_ = o.requests.Fail(requestID, "oracle call budget exhausted: "+budgetErr.Error())
		return budgetErr
	}
	defer release()

	var result string
	start := time.Now()
	submitErr := withRetry(ctx, o.policy, func() {
		observability.ExternalCalls().RecordRetry("oracle")
	}, func() error {
		var callErr error
		result, callErr = o.oracle.Submit(ctx, prompt)
		return callErr
	})
	observability.ExternalCalls().Observe("oracle", submitErr, time.Since(start))
	if submitErr != nil {
		_ = o.requests.Fail(requestID, "oracle exhausted: "+submitErr.Error())
		return submitErr
	}

	responseHash := sha256.Sum256([]byte(result))
	proofHandle, err := o.proofs.Append(requestID, req.Requester, datasetIDs, responseHash, o.template.GuaranteeLabels)
	if err != nil {
		_ = o.requests.Fail(requestID, "proof emission failed: "+err.Error())
		return err
	}

	_, err = o.requests.Complete(requestID, result, proofHandle)
	return err
}

// acquireBudget reserves a slot from the shared KDF/oracle call pool, if
// one is installed, failing fast rather than queuing (§5).
func (o *Orchestrator) acquireBudget() (func(), error) {
	if o.budget == nil {
		return func() {}, nil
	}
	return o.budget.Acquire()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
