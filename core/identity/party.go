package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mpccoordinator/crypto"
)

const nameMaxBytes = 128

var (
	// ErrUnauthenticated is returned when an operation requires a caller
	// principal and none was supplied.
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	// ErrNameTooLong is returned when a party name exceeds nameMaxBytes.
	ErrNameTooLong = errors.New("identity: name too long")
	// ErrNotRegistered is returned when a lookup finds no party record.
	ErrNotRegistered = errors.New("identity: not registered")
)

// Party is a registered organizational participant. Role is a free-form
// label, not a type: the coordinator never dispatches on role.
type Party struct {
	Principal        string
	Name             string
	Role             string
	KeyEnvelopeHandle string
	FirstSeen        time.Time
	LastSeen         time.Time
	Active           bool
}

// Clone returns a defensive copy so callers cannot mutate registry state
// through a returned pointer.
func (p *Party) Clone() *Party {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// DisplayAddress renders a stable, non-reversible bech32 handle for the
// party's principal, for use in audit output and API responses that should
// not echo a raw principal string (which may be an email or an
// auth-provider-specific identifier).
func (p *Party) DisplayAddress() string {
	return crypto.PrincipalAddress(p.Principal).String()
}

// ValidateName enforces the §6 field limit on party display names.
func ValidateName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: name must not be empty", ErrNameTooLong)
	}
	if len(trimmed) > nameMaxBytes {
		return "", fmt.Errorf("%w: must be at most %d bytes", ErrNameTooLong, nameMaxBytes)
	}
	return trimmed, nil
}
