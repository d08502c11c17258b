package identity

import (
	"sync"
	"time"

	"mpccoordinator/core/events"
)

// Store persists party records across restarts. Implementations live in
// the persistence package.
type Store interface {
	SaveParty(*Party) error
	LoadParties() ([]*Party, error)
}

// HandleIssuer derives a key-envelope handle for a newly registered
// principal. It is the narrow slice of the Key Envelope Service the
// registry depends on, kept as an interface here to avoid a package cycle
// between identity and keyenvelope.
type HandleIssuer interface {
	DeriveHandle(principal, purpose string) (string, error)
}

const registrationPurpose = "identity.registration"

// Registry is the Identity Registry component (§4.1). It is safe for
// concurrent use; a single RWMutex guards the in-memory index, consistent
// with the coordinator's single-logical-actor model (§5) where registry
// reads vastly outnumber writes.
type Registry struct {
	mu             sync.RWMutex
	parties        map[string]*Party
	livenessWindow time.Duration
	store          Store
	handles        HandleIssuer
	emitter        events.Emitter
	nowFn          func() time.Time
}

// NewRegistry constructs a Registry and hydrates it from store.
func NewRegistry(store Store, handles HandleIssuer, livenessWindow time.Duration, emitter events.Emitter) (*Registry, error) {
	if livenessWindow <= 0 {
		livenessWindow = 24 * time.Hour
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	r := &Registry{
		parties:        make(map[string]*Party),
		livenessWindow: livenessWindow,
		store:          store,
		handles:        handles,
		emitter:        emitter,
		nowFn:          time.Now,
	}
	if store != nil {
		existing, err := store.LoadParties()
		if err != nil {
			return nil, err
		}
		for _, p := range existing {
			r.parties[p.Principal] = p
		}
	}
	return r, nil
}

// SetNowFunc overrides the clock; used by tests.
func (r *Registry) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	r.nowFn = fn
}

// Register associates principal with a party record, deriving a fresh
// key-envelope handle on first registration. Re-registration with the same
// principal updates name/role/last-seen and is idempotent on principal.
func (r *Registry) Register(principal, name, role string) (*Party, error) {
	if principal == "" {
		return nil, ErrUnauthenticated
	}
	cleanName, err := ValidateName(name)
	if err != nil {
		return nil, err
	}
	role = trimOrDefault(role, "member")

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	existing, ok := r.parties[principal]
	if ok {
		prevName, prevRole, prevLastSeen, prevActive := existing.Name, existing.Role, existing.LastSeen, existing.Active
		existing.Name = cleanName
		existing.Role = role
		existing.LastSeen = now
		existing.Active = true
		if r.store != nil {
			if err := r.store.SaveParty(existing); err != nil {
				existing.Name, existing.Role, existing.LastSeen, existing.Active = prevName, prevRole, prevLastSeen, prevActive
				return nil, err
			}
		}
		r.emitter.Emit(events.PartyRegistered{Principal: principal, Name: cleanName, Role: role})
		return existing.Clone(), nil
	}

	handle := ""
	if r.handles != nil {
		handle, err = r.handles.DeriveHandle(principal, registrationPurpose)
		if err != nil {
			return nil, err
		}
	}
	party := &Party{
		Principal:         principal,
		Name:              cleanName,
		Role:              role,
		KeyEnvelopeHandle: handle,
		FirstSeen:         now,
		LastSeen:          now,
		Active:            true,
	}
	r.parties[principal] = party
	if r.store != nil {
		if err := r.store.SaveParty(party); err != nil {
			delete(r.parties, principal)
			return nil, err
		}
	}
	r.emitter.Emit(events.PartyRegistered{Principal: principal, Name: cleanName, Role: role})
	return party.Clone(), nil
}

// Touch refreshes a party's last-seen timestamp without changing name/role.
// No route or middleware in this repository calls it, so last-seen
// otherwise changes only when the party calls Register.
func (r *Registry) Touch(principal string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	party, ok := r.parties[principal]
	if !ok {
		return
	}
	party.LastSeen = r.nowFn()
	if r.store != nil {
		_ = r.store.SaveParty(party)
	}
}

// Lookup returns the party bound to principal, or ErrNotRegistered.
func (r *Registry) Lookup(principal string) (*Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	party, ok := r.parties[principal]
	if !ok {
		return nil, ErrNotRegistered
	}
	return party.Clone(), nil
}

// ListActive returns parties whose last-seen falls within the liveness
// window, per §4.1.
func (r *Registry) ListActive() []*Party {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := r.nowFn().Add(-r.livenessWindow)
	out := make([]*Party, 0, len(r.parties))
	for _, p := range r.parties {
		if p.LastSeen.After(cutoff) {
			out = append(out, p.Clone())
		}
	}
	return out
}

// ListAll returns every registered party, active or not.
func (r *Registry) ListAll() []*Party {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Party, 0, len(r.parties))
	for _, p := range r.parties {
		out = append(out, p.Clone())
	}
	return out
}

// DisplayName returns principal's registered name, for the Dataset Store's
// owner-name snapshot at upload time (§4.3).
func (r *Registry) DisplayName(principal string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	party, ok := r.parties[principal]
	if !ok {
		return "", false
	}
	return party.Name, true
}

// IsRegistered reports whether principal has a party record, active or
// not. It
// lets the Request State Machine check registration without importing the
// identity package's Party type (§4.4's create_request precondition).
func (r *Registry) IsRegistered(principal string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parties[principal]
	return ok
}

// RequiredVoterSnapshot returns the principals of every currently
// registered party, for use by the Request State Machine at create_request
// time (§4.1 rationale, §4.4 voter-set immutability).
func (r *Registry) RequiredVoterSnapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parties))
	for principal := range r.parties {
		out = append(out, principal)
	}
	return out
}

func trimOrDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
