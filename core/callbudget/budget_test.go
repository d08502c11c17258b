package callbudget_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mpccoordinator/core/callbudget"
)

func TestAcquire_FailsFastWhenExhausted(t *testing.T) {
	b := callbudget.New(1)

	release, err := b.Acquire()
	require.NoError(t, err)

	_, err = b.Acquire()
	require.ErrorIs(t, err, callbudget.ErrTemporarilyUnavailable)

	release()

	release2, err := b.Acquire()
	require.NoError(t, err)
	release2()
}

func TestAcquire_UnlimitedWhenNonPositiveCapacity(t *testing.T) {
	b := callbudget.New(0)
	for i := 0; i < 100; i++ {
		release, err := b.Acquire()
		require.NoError(t, err)
		release()
	}
}
