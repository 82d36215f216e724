package testutils

import (
	"context"
	"testing"

	"github.com/stokerproj/stoker/pkg/domain"
	"github.com/stokerproj/stoker/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunLockerContract verifies that a Locker implementation honors the
// bounded-wait mutual exclusion contract. Implementations under test should
// be configured with a short poll quantum so the timeout case stays fast.
func RunLockerContract(t *testing.T, locker ports.Locker, key string) {
	ctx := context.Background()

	t.Run("AcquireAndRelease", func(t *testing.T) {
		require.NoError(t, locker.Acquire(ctx, key, 1))
		require.NoError(t, locker.Release(ctx, key))
	})

	t.Run("SecondHolderTimesOut", func(t *testing.T) {
		require.NoError(t, locker.Acquire(ctx, key, 1))
		err := locker.Acquire(ctx, key, 2)
		assert.ErrorIs(t, err, domain.ErrLockTimeout)
		require.NoError(t, locker.Release(ctx, key))
	})

	t.Run("AcquireAfterRelease", func(t *testing.T) {
		require.NoError(t, locker.Acquire(ctx, key, 1))
		require.NoError(t, locker.Release(ctx, key))
		require.NoError(t, locker.Acquire(ctx, key, 1))
		require.NoError(t, locker.Release(ctx, key))
	})

	t.Run("ReleaseUnheld", func(t *testing.T) {
		err := locker.Release(ctx, key)
		assert.ErrorIs(t, err, domain.ErrNotLocked)
	})
}
