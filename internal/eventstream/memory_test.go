package eventstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicante-io/replicore/internal/model"
)

func TestEmitThenFollowFromZeroReplaysAll(t *testing.T) {
	s := NewMemStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Emit(ctx, model.Event{Stream: model.StreamChange, StreamKey: "ns1/c1", Code: model.CodeApplyClusterSpec}, model.AckAll))
	require.NoError(t, s.Emit(ctx, model.Event{Stream: model.StreamChange, StreamKey: "ns1/c1", Code: model.CodeOrchestrateStart}, model.AckAll))

	deliveries, err := s.Follow(ctx, model.StreamChange, "test-group", 0)
	require.NoError(t, err)

	first := <-deliveries
	assert.Equal(t, model.CodeApplyClusterSpec, first.Event.Code)
	assert.Equal(t, int64(1), first.Event.Sequence)

	second := <-deliveries
	assert.Equal(t, model.CodeOrchestrateStart, second.Event.Code)
	assert.Equal(t, int64(2), second.Event.Sequence)
}

func TestFollowWakesUpOnLateEmit(t *testing.T) {
	s := NewMemStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := s.Follow(ctx, model.StreamAudit, "g", 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = s.Emit(context.Background(), model.Event{Stream: model.StreamAudit, StreamKey: "ns1", Code: model.CodeApplyNamespace}, model.AckAll)
	}()

	select {
	case d := <-deliveries:
		assert.Equal(t, model.CodeApplyNamespace, d.Event.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestAckPersistsCursorAcrossFollowCalls(t *testing.T) {
	s := NewMemStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Emit(ctx, model.Event{Stream: model.StreamChange, StreamKey: "ns1/c1", Code: model.CodeApplyClusterSpec}, model.AckAll))
	require.NoError(t, s.Emit(ctx, model.Event{Stream: model.StreamChange, StreamKey: "ns1/c1", Code: model.CodeOrchestrateStart}, model.AckAll))

	first, err := s.Follow(ctx, model.StreamChange, "g", -1)
	require.NoError(t, err)
	d := <-first
	require.NoError(t, d.Ack(ctx))

	second, err := s.Follow(ctx, model.StreamChange, "g", -1)
	require.NoError(t, err)
	d2 := <-second
	assert.Equal(t, model.CodeOrchestrateStart, d2.Event.Code)
}

func TestStreamsAreIndependent(t *testing.T) {
	s := NewMemStream()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Emit(ctx, model.Event{Stream: model.StreamAudit, StreamKey: "ns1", Code: model.CodeApplyNamespace}, model.AckAll))

	changeDeliveries, err := s.Follow(ctx, model.StreamChange, "g", 0)
	require.NoError(t, err)

	select {
	case <-changeDeliveries:
		t.Fatal("unexpected delivery on unrelated stream")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCloseStopsFollowers(t *testing.T) {
	s := NewMemStream()
	ctx := context.Background()

	deliveries, err := s.Follow(ctx, model.StreamChange, "g", 0)
	require.NoError(t, err)

	require.NoError(t, s.Close())

	select {
	case _, ok := <-deliveries:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("follower channel did not close after Close()")
	}
}
