package routes

import "github.com/google/uuid"

// newRequestID mints the identifier assigned to a freshly created request.
// Unlike dataset ids, request ids carry no determinism requirement, so a
// random uuid is sufficient.
func newRequestID() string {
	return uuid.NewString()
}
