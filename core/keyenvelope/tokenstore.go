package keyenvelope

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"mpccoordinator/storage"
)

// ErrAuthorizationInvalid is returned when a supplied token does not exist,
// does not belong to the supplied request, or has been revoked.
var ErrAuthorizationInvalid = errors.New("keyenvelope: authorization invalid")

const (
	tokenKeyPrefix   = "token:"
	requestKeyPrefix = "request:"
)

// TokenStore persists single-use, request-scoped authorization tokens
// (§4.2, §4.4). It is backed by the teacher's generic storage.Database
// abstraction (leveldb in production, an in-memory map in tests) rather
// than the relational schema: tokens are short-lived capabilities, not
// durable business records.
//
// The two key prefixes form a bidirectional index: tokenKeyPrefix+token ->
// requestID lets Validate check a token by its own value, requestKeyPrefix+
// requestID -> token lets Revoke find and delete the live token when a
// request leaves Executing.
type TokenStore struct {
	mu sync.Mutex
	db storage.Database
}

// NewTokenStore wraps db as an authorization token store.
func NewTokenStore(db storage.Database) *TokenStore {
	return &TokenStore{db: db}
}

// Issue mints a fresh single-use token bound to requestID. The State
// Machine calls this exactly once on entering Executing.
func (s *TokenStore) Issue(requestID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	if err := s.db.Put([]byte(tokenKeyPrefix+token), []byte(requestID)); err != nil {
		return "", fmt.Errorf("issue authorization token: %w", err)
	}
	if err := s.db.Put([]byte(requestKeyPrefix+requestID), []byte(token)); err != nil {
		return "", fmt.Errorf("index authorization token: %w", err)
	}
	return token, nil
}

// Validate checks that token is live and scoped to requestID without
// destroying it. A single execute call may unwrap several datasets under
// the same token (§4.6 step 3); the token's single-use property is
// enforced by Revoke destroying it when the request leaves Executing, not
// by consuming it on first use.
func (s *TokenStore) Validate(token, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.db.Get([]byte(tokenKeyPrefix + token))
	if err != nil {
		return ErrAuthorizationInvalid
	}
	if string(stored) != requestID {
		return ErrAuthorizationInvalid
	}
	return nil
}

// Revoke destroys any live token for requestID without validating it. The
// State Machine calls this when a request leaves Executing (§4.4: "the
// token is destroyed on leaving Executing regardless of outcome"), which
// also covers the case where execution completed without ever calling
// unwrap_authorized.
func (s *TokenStore) Revoke(requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.db.Get([]byte(requestKeyPrefix + requestID))
	if err != nil {
		return nil
	}
	_ = s.db.Delete([]byte(tokenKeyPrefix + string(token)))
	_ = s.db.Delete([]byte(requestKeyPrefix + requestID))
	return nil
}
