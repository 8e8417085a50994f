package coordinator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicante-io/replicore/internal/apperr"
)

func TestElectionFirstCandidateBecomesPrimary(t *testing.T) {
	c := NewMemCoordinator("node-a")
	ctx := context.Background()

	e := c.Election("discovery")
	require.NoError(t, e.Run(ctx))
	assert.True(t, e.Status().IsPrimary())
	assert.True(t, e.Watch().IsPrimary())
}

func TestElectionSecondCandidateIsSecondary(t *testing.T) {
	a := NewMemCoordinator("node-a")
	b := a.Fork("node-b")
	ctx := context.Background()

	ea := a.Election("discovery")
	require.NoError(t, ea.Run(ctx))

	eb := b.Election("discovery")
	require.NoError(t, eb.Run(ctx))

	assert.True(t, ea.Status().IsPrimary())
	assert.Equal(t, Secondary, eb.Status().State)
	assert.False(t, eb.Watch().IsPrimary())
}

func TestStepDownPromotesSecondary(t *testing.T) {
	a := NewMemCoordinator("node-a")
	b := a.Fork("node-b")
	ctx := context.Background()

	ea := a.Election("discovery")
	require.NoError(t, ea.Run(ctx))
	eb := b.Election("discovery")
	require.NoError(t, eb.Run(ctx))

	require.NoError(t, ea.StepDown(ctx))
	assert.Equal(t, NotCandidate, ea.Status().State)

	require.NoError(t, eb.Run(ctx))
	assert.True(t, eb.Status().IsPrimary())
}

func TestLockAcquireAlreadyHeld(t *testing.T) {
	a := NewMemCoordinator("node-a")
	b := a.Fork("node-b")
	ctx := context.Background()

	la := a.NonBlockingLock("cluster/ns1/c1")
	require.NoError(t, la.Acquire(ctx))

	lb := b.NonBlockingLock("cluster/ns1/c1")
	err := lb.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConcurrency, apperr.KindOf(err))
	assert.ErrorIs(t, err, apperr.ErrAlreadyHeld)
}

func TestLockCheckAndRelease(t *testing.T) {
	c := NewMemCoordinator("node-a")
	ctx := context.Background()

	l := c.NonBlockingLock("cluster/ns1/c1")
	require.NoError(t, l.Acquire(ctx))

	held, err := l.Check(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, l.Release(ctx))
	held, err = l.Check(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, l.Release(ctx)) // idempotent
}

func TestAdminForceRelease(t *testing.T) {
	a := NewMemCoordinator("node-a")
	b := a.Fork("node-b")
	ctx := context.Background()

	la := a.NonBlockingLock("cluster/ns1/c1")
	require.NoError(t, la.Acquire(ctx))

	locks, err := a.Admin().ListLocks(ctx)
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "cluster/ns1/c1", locks[0].Name)
	assert.Equal(t, "node-a", locks[0].Owner)

	require.NoError(t, a.Admin().ForceRelease(ctx, "cluster/ns1/c1"))

	held, err := la.Check(ctx)
	require.NoError(t, err)
	assert.False(t, held)

	lb := b.NonBlockingLock("cluster/ns1/c1")
	require.NoError(t, lb.Acquire(ctx))
}

func TestAdminForceReleaseNotHeld(t *testing.T) {
	c := NewMemCoordinator("node-a")
	err := c.Admin().ForceRelease(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
