package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mpccoordinator/core/identity"
)

type memStore struct {
	saved map[string]*identity.Party
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*identity.Party)}
}

func (m *memStore) SaveParty(p *identity.Party) error {
	m.saved[p.Principal] = p.Clone()
	return nil
}

func (m *memStore) LoadParties() ([]*identity.Party, error) {
	out := make([]*identity.Party, 0, len(m.saved))
	for _, p := range m.saved {
		out = append(out, p)
	}
	return out, nil
}

type stubHandles struct{ calls int }

func (s *stubHandles) DeriveHandle(principal, purpose string) (string, error) {
	s.calls++
	return "handle-" + principal, nil
}

func TestRegister_IsIdempotentOnPrincipal(t *testing.T) {
	store := newMemStore()
	handles := &stubHandles{}
	reg, err := identity.NewRegistry(store, handles, 24*time.Hour, nil)
	require.NoError(t, err)

	first, err := reg.Register("alice", "Alice", "analyst")
	require.NoError(t, err)
	require.Equal(t, "Alice", first.Name)
	require.NotEmpty(t, first.KeyEnvelopeHandle)

	second, err := reg.Register("alice", "Alice Renamed", "lead")
	require.NoError(t, err)
	require.Equal(t, "Alice Renamed", second.Name)
	require.Equal(t, "lead", second.Role)
	require.Equal(t, first.KeyEnvelopeHandle, second.KeyEnvelopeHandle)
	require.Equal(t, 1, handles.calls, "handle derivation must only occur on first registration")
}

func TestRegister_RejectsNameTooLong(t *testing.T) {
	reg, err := identity.NewRegistry(newMemStore(), &stubHandles{}, time.Hour, nil)
	require.NoError(t, err)

	longName := make([]byte, 129)
	for i := range longName {
		longName[i] = 'a'
	}
	_, err = reg.Register("bob", string(longName), "member")
	require.ErrorIs(t, err, identity.ErrNameTooLong)
}

func TestRegister_RequiresPrincipal(t *testing.T) {
	reg, err := identity.NewRegistry(newMemStore(), &stubHandles{}, time.Hour, nil)
	require.NoError(t, err)

	_, err = reg.Register("", "Nobody", "member")
	require.ErrorIs(t, err, identity.ErrUnauthenticated)
}

func TestListActive_RespectsLivenessWindow(t *testing.T) {
	reg, err := identity.NewRegistry(newMemStore(), &stubHandles{}, time.Hour, nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	reg.SetNowFunc(func() time.Time { return now })
	_, err = reg.Register("alice", "Alice", "analyst")
	require.NoError(t, err)

	reg.SetNowFunc(func() time.Time { return now.Add(2 * time.Hour) })
	_, err = reg.Register("bob", "Bob", "analyst")
	require.NoError(t, err)

	active := reg.ListActive()
	require.Len(t, active, 1)
	require.Equal(t, "bob", active[0].Principal)

	all := reg.ListAll()
	require.Len(t, all, 2)
}

func TestLookup_NotRegistered(t *testing.T) {
	reg, err := identity.NewRegistry(newMemStore(), &stubHandles{}, time.Hour, nil)
	require.NoError(t, err)

	_, err = reg.Lookup("nobody")
	require.ErrorIs(t, err, identity.ErrNotRegistered)
}
