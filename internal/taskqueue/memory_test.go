package taskqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitThenNextRoundTrip(t *testing.T) {
	q := NewMemQueue()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, q.Submit(ctx, Submission{Queue: QueueDiscoverPlatform, Payload: []byte(`{"ns_id":"default","name":"p1"}`), Retries: 3}))

	sub, err := q.Subscribe(ctx, QueueDiscoverPlatform)
	require.NoError(t, err)

	task, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, QueueDiscoverPlatform, task.Queue)
	assert.JSONEq(t, `{"ns_id":"default","name":"p1"}`, string(task.Payload))

	require.NoError(t, sub.Done(ctx, task))
}

func TestFailRedeliversUntilRetriesExhausted(t *testing.T) {
	q := NewMemQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, q.Submit(ctx, Submission{Queue: QueueOrchestrateCluster, Payload: []byte(`{}`), Retries: 2}))

	sub, err := q.Subscribe(ctx, QueueOrchestrateCluster)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		task, err := sub.Next(ctx)
		require.NoError(t, err)
		require.NoError(t, sub.Fail(ctx, task, errors.New("boom")))
	}

	assert.Eventually(t, func() bool {
		return len(q.DeadLetter(QueueOrchestrateCluster)) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestNextBlocksUntilCancelled(t *testing.T) {
	q := NewMemQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sub, err := q.Subscribe(context.Background(), QueueDiscoverPlatform)
	require.NoError(t, err)

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
