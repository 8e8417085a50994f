package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
)

func TestNamespaceCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.LookupNamespace(ctx, "ns1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	ns := model.Namespace{ID: "ns1", Status: model.NamespaceActive}
	require.NoError(t, s.PersistNamespace(ctx, ns))

	got, err := s.LookupNamespace(ctx, "ns1")
	require.NoError(t, err)
	assert.Equal(t, ns, *got)

	list, err := s.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteNamespace(ctx, "ns1"))
	_, err = s.LookupNamespace(ctx, "ns1")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestClusterSpecDueListing(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	due := model.ClusterSpec{
		NsID: "ns1", ClusterID: "c1", Active: true,
		NextOrchestrate: now.Add(-time.Minute),
	}
	notDue := model.ClusterSpec{
		NsID: "ns1", ClusterID: "c2", Active: true,
		NextOrchestrate: now.Add(time.Hour),
	}
	inactive := model.ClusterSpec{
		NsID: "ns1", ClusterID: "c3", Active: false,
		NextOrchestrate: now.Add(-time.Hour),
	}
	require.NoError(t, s.PersistClusterSpec(ctx, due))
	require.NoError(t, s.PersistClusterSpec(ctx, notDue))
	require.NoError(t, s.PersistClusterSpec(ctx, inactive))

	got, err := s.ListDueClusterSpecs(ctx, now.Unix())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c1", got[0].ClusterID)
}

func TestNActionTerminalGuard(t *testing.T) {
	ctx := context.Background()
	s := New()

	key := model.ActionKey{NsID: "ns1", ClusterID: "c1", ActionID: "a1"}
	a := model.NAction{
		NsID: key.NsID, ClusterID: key.ClusterID, NodeID: "n1", ActionID: key.ActionID,
		State: model.NActionState{Phase: model.NActionDone},
	}
	require.NoError(t, s.PersistNAction(ctx, a))

	// Attempting to move a terminal action to a different phase is rejected.
	a.State.Phase = model.NActionRunning
	err := s.PersistNAction(ctx, a)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))

	// Re-persisting the same terminal phase (idempotent re-write) is fine.
	a.State.Phase = model.NActionDone
	require.NoError(t, s.PersistNAction(ctx, a))

	got, err := s.LookupNAction(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.NActionDone, got.State.Phase)
}

func TestOActionTerminalGuard(t *testing.T) {
	ctx := context.Background()
	s := New()

	key := model.ActionKey{NsID: "ns1", ClusterID: "c1", ActionID: "o1"}
	a := model.OAction{
		NsID: key.NsID, ClusterID: key.ClusterID, ActionID: key.ActionID,
		State: model.OActionDone,
	}
	require.NoError(t, s.PersistOAction(ctx, a))

	a.State = model.OActionFailed
	err := s.PersistOAction(ctx, a)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPrecondition, apperr.KindOf(err))
}

func TestListUnfinishedActions(t *testing.T) {
	ctx := context.Background()
	s := New()
	cluster := model.ClusterKey{NsID: "ns1", ClusterID: "c1"}

	require.NoError(t, s.PersistNAction(ctx, model.NAction{
		NsID: "ns1", ClusterID: "c1", NodeID: "n1", ActionID: "a1",
		State: model.NActionState{Phase: model.NActionRunning},
	}))
	require.NoError(t, s.PersistNAction(ctx, model.NAction{
		NsID: "ns1", ClusterID: "c1", NodeID: "n1", ActionID: "a2",
		State: model.NActionState{Phase: model.NActionDone},
	}))

	unfinished, err := s.ListUnfinishedNActions(ctx, cluster)
	require.NoError(t, err)
	require.Len(t, unfinished, 1)
	assert.Equal(t, "a1", unfinished[0].ActionID)
}

func TestNodeAndStoreExtrasCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	key := model.NodeKey{NsID: "ns1", ClusterID: "c1", NodeID: "n1"}

	require.NoError(t, s.PersistNode(ctx, model.Node{NsID: "ns1", ClusterID: "c1", NodeID: "n1", NodeStatus: model.NodeHealthy}))
	got, err := s.LookupNode(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, model.NodeHealthy, got.NodeStatus)

	require.NoError(t, s.PersistStoreExtras(ctx, model.StoreExtras{NsID: "ns1", ClusterID: "c1", NodeID: "n1"}))
	_, err = s.LookupStoreExtras(ctx, key)
	require.NoError(t, err)

	require.NoError(t, s.DeleteNode(ctx, key))
	_, err = s.LookupNode(ctx, key)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestConvergeStateAndReportSingleton(t *testing.T) {
	ctx := context.Background()
	s := New()
	cluster := model.ClusterKey{NsID: "ns1", ClusterID: "c1"}

	_, err := s.LookupConvergeState(ctx, cluster)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, s.PersistConvergeState(ctx, model.ConvergeState{NsID: "ns1", ClusterID: "c1"}))
	_, err = s.LookupConvergeState(ctx, cluster)
	require.NoError(t, err)

	require.NoError(t, s.PersistOrchestrateReport(ctx, model.OrchestrateReport{NsID: "ns1", ClusterID: "c1", Success: true}))
	report, err := s.LookupOrchestrateReport(ctx, cluster)
	require.NoError(t, err)
	assert.True(t, report.Success)
}
