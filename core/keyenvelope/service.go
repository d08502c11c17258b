package keyenvelope

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"mpccoordinator/core/events"
	"mpccoordinator/observability"
)

// ErrHandleUnknown is returned when an operation references a handle the
// service has never derived.
var ErrHandleUnknown = errors.New("keyenvelope: handle unknown")

// ErrIntegrityFailure is returned when a ciphertext fails to authenticate
// during unwrap. Per §7 this is never retried and is escalated to audit.
var ErrIntegrityFailure = errors.New("keyenvelope: integrity failure")

// CallBudget bounds concurrent KDF calls against the pool the spec shares
// with the Execution Orchestrator's oracle calls (§5). Kept as a narrow
// interface, consistent with the package's other cross-component
// dependencies, to avoid a cycle with core/orchestrator.
type CallBudget interface {
	Acquire() (release func(), err error)
}

// HandleRecord is the durable shape of an envelope, used by persistence.
type HandleRecord struct {
	Principal string
	Purpose   string
	PublicKey []byte
}

// Store persists envelope records (handle -> principal/purpose/public key)
// across restarts.
type Store interface {
	SaveHandle(handle string, rec HandleRecord) error
	LoadHandles() (map[string]HandleRecord, error)
}

// Service implements the Key Envelope Service (§4.2). Handles are opaque
// to every other component; only this service ever resolves one to key
// material, and then only for the span of a single wrap/unwrap call.
type Service struct {
	mu      sync.RWMutex
	handles map[Handle]*envelope
	kdf     KDFClient
	tokens  *TokenStore
	store   Store
	policy  RetryPolicy
	emitter events.Emitter
	budget  CallBudget
}

// NewService constructs the Key Envelope Service.
func NewService(kdf KDFClient, tokens *TokenStore, store Store, emitter events.Emitter) (*Service, error) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	s := &Service{
		handles: make(map[Handle]*envelope),
		kdf:     kdf,
		tokens:  tokens,
		store:   store,
		policy:  DefaultRetryPolicy(),
		emitter: emitter,
	}
	if store != nil {
		existing, err := store.LoadHandles()
		if err != nil {
			return nil, err
		}
		for handle, rec := range existing {
			s.handles[Handle(handle)] = &envelope{
				Handle:    Handle(handle),
				Principal: rec.Principal,
				Purpose:   rec.Purpose,
				PublicKey: rec.PublicKey,
			}
		}
	}
	return s, nil
}

// SetRetryPolicy overrides the bounded retry budget used against the KDF.
func (s *Service) SetRetryPolicy(p RetryPolicy) {
	s.policy = p
}

// SetCallBudget installs the shared KDF/oracle call pool. Unset, the
// service has no budget and every call proceeds straight to retry.
func (s *Service) SetCallBudget(b CallBudget) {
	s.budget = b
}

// DeriveHandle obtains a durable handle for (principal, purpose). Implements
// identity.HandleIssuer so the Identity Registry can request a handle on
// first registration.
func (s *Service) DeriveHandle(principal, purpose string) (string, error) {
	handle := deriveHandleID(principal, purpose)

	s.mu.RLock()
	if existing, ok := s.handles[handle]; ok {
		s.mu.RUnlock()
		return string(existing.Handle), nil
	}
	s.mu.RUnlock()

	release, err := s.acquireBudget()
	if err != nil {
		return "", err
	}
	defer release()

	ctx := context.Background()
	var pubKey []byte
	start := time.Now()
	err = withRetry(ctx, s.policy, func() {
		observability.ExternalCalls().RecordRetry("kdf")
	}, func() error {
		var callErr error
		pubKey, callErr = s.kdf.PublicKey(ctx, string(handle))
		return callErr
	})
	observability.ExternalCalls().Observe("kdf", err, time.Since(start))
	if err != nil {
		return "", err
	}

	env := &envelope{Handle: handle, Principal: principal, Purpose: purpose, PublicKey: pubKey}
	s.mu.Lock()
	s.handles[handle] = env
	s.mu.Unlock()
	if s.store != nil {
		if err := s.store.SaveHandle(string(handle), HandleRecord{Principal: principal, Purpose: purpose, PublicKey: pubKey}); err != nil {
			return "", fmt.Errorf("persist handle: %w", err)
		}
	}
	return string(handle), nil
}

// PublicMaterial returns the public portion of a handle's derived key,
// suitable for client-side envelope encryption before upload (§4.2).
func (s *Service) PublicMaterial(handle string) ([]byte, error) {
	env, ok := s.lookup(Handle(handle))
	if !ok {
		return nil, ErrHandleUnknown
	}
	return append([]byte(nil), env.PublicKey...), nil
}

// EncryptedKeyFor returns a transport-encrypted copy of the handle's
// derived key, decryptable only by the holder of callerTransportPK's
// private half (§4.2). The symmetric material is fetched from the KDF,
// sealed anonymously with nacl/box against callerTransportPK, and
// discarded — it never leaves this function in the clear.
func (s *Service) EncryptedKeyFor(handle string, callerTransportPK []byte) ([]byte, error) {
	if len(callerTransportPK) != 32 {
		return nil, fmt.Errorf("keyenvelope: transport public key must be 32 bytes")
	}
	if _, ok := s.lookup(Handle(handle)); !ok {
		return nil, ErrHandleUnknown
	}

	material, err := s.fetchMaterial(handle)
	if err != nil {
		return nil, err
	}
	defer zero(material)

	var recipientPK [32]byte
	copy(recipientPK[:], callerTransportPK)
	sealed, err := box.SealAnonymous(nil, material, &recipientPK, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("seal transport key: %w", err)
	}
	return sealed, nil
}

// Wrap encrypts plaintext under the symmetric key material bound to
// handle. Key material is requested from the KDF, used for exactly this
// call, and zeroed before return — it is never persisted or logged.
func (s *Service) Wrap(handle string, plaintext []byte) ([]byte, error) {
	if _, ok := s.lookup(Handle(handle)); !ok {
		return nil, ErrHandleUnknown
	}
	material, err := s.fetchMaterial(handle)
	if err != nil {
		return nil, err
	}
	defer zero(material)
	var key [32]byte
	copy(key[:], material)

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &key)
	return sealed, nil
}

// UnwrapAuthorized decrypts ciphertext under handle, but only when
// authorization is a live token scoped to requestID (§4.2, §4.4). The
// token remains valid for every dataset unwrapped during the same
// execution; it is destroyed only when the request leaves Executing
// (State Machine's Revoke call), which is what makes it single-use across
// the lifetime of one execute invocation.
func (s *Service) UnwrapAuthorized(handle string, ciphertext []byte, authorization, requestID string) ([]byte, error) {
	if err := s.tokens.Validate(authorization, requestID); err != nil {
		return nil, err
	}
	if _, ok := s.lookup(Handle(handle)); !ok {
		return nil, ErrHandleUnknown
	}
	material, err := s.fetchMaterial(handle)
	if err != nil {
		return nil, err
	}
	defer zero(material)
	var key [32]byte
	copy(key[:], material)

	if len(ciphertext) < 24 {
		return nil, ErrIntegrityFailure
	}
	var nonce [24]byte
	copy(nonce[:], ciphertext[:24])
	plaintext, ok := secretbox.Open(nil, ciphertext[24:], &nonce, &key)
	if !ok {
		return nil, ErrIntegrityFailure
	}
	return plaintext, nil
}

// fetchMaterial asks the KDF for the raw symmetric key backing handle's
// wrap/unwrap and transport-sealing operations, with the same bounded
// retry budget applied to every other outbound KDF call.
func (s *Service) fetchMaterial(handle string) ([]byte, error) {
	release, err := s.acquireBudget()
	if err != nil {
		return nil, err
	}
	defer release()

	ctx := context.Background()
	var material []byte
	start := time.Now()
	err = withRetry(ctx, s.policy, func() {
		observability.ExternalCalls().RecordRetry("kdf")
	}, func() error {
		var callErr error
		material, callErr = s.kdf.DerivedKey(ctx, handle)
		return callErr
	})
	observability.ExternalCalls().Observe("kdf", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(material) < 32 {
		return nil, ErrIntegrityFailure
	}
	return material, nil
}

// acquireBudget reserves a slot from the shared KDF/oracle call pool, if
// one is installed. It fails fast with ErrTemporarilyUnavailable rather
// than waiting for a slot to free up (§5).
func (s *Service) acquireBudget() (func(), error) {
	if s.budget == nil {
		return func() {}, nil
	}
	return s.budget.Acquire()
}

func (s *Service) lookup(handle Handle) (*envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.handles[handle]
	return env, ok
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
