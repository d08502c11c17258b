package request

import "errors"

// Error kinds from §7's taxonomy. Kinds, not types: callers switch on the
// sentinel with errors.Is, not on a concrete error struct.
var (
	ErrUnauthenticated  = errors.New("request: unauthenticated")
	ErrNotRegistered    = errors.New("request: caller not registered")
	ErrNotAuthorized    = errors.New("request: not authorized")
	ErrInvalidState     = errors.New("request: invalid state for operation")
	ErrVoterNotInSet    = errors.New("request: voter not in required-voters snapshot")
	ErrInputTooLarge    = errors.New("request: input exceeds field limit")
	ErrInvalidInput     = errors.New("request: invalid input")
	ErrAlreadyExecuting = errors.New("request: already executing")
	ErrNotFound         = errors.New("request: not found")
)
