package clusterview

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicante-io/replicore/internal/model"
)

func sampleSpec() model.ClusterSpec {
	return model.ClusterSpec{NsID: "default", ClusterID: "c1", Active: true, Platform: "p1"}
}

func TestBuilderAssemblesView(t *testing.T) {
	b := NewBuilder(sampleSpec())

	_, err := b.Discovery(model.ClusterDiscovery{NsID: "default", ClusterID: "c1", UpdatedAt: time.Now()})
	require.NoError(t, err)

	_, err = b.Node(model.Node{NsID: "default", ClusterID: "c1", NodeID: "n1", NodeStatus: model.NodeHealthy})
	require.NoError(t, err)

	_, err = b.StoreExtras(model.StoreExtras{NsID: "default", ClusterID: "c1", NodeID: "n1"})
	require.NoError(t, err)

	_, err = b.OAction(model.OAction{NsID: "default", ClusterID: "c1", ActionID: "a1", State: model.OActionRunning})
	require.NoError(t, err)

	view := b.Finish()
	assert.Equal(t, "default", view.NsID)
	assert.Equal(t, "c1", view.ClusterID)
	assert.NotNil(t, view.Discovery)
	assert.Len(t, view.Nodes, 1)
	assert.Len(t, view.StoreExtras, 1)
	assert.Len(t, view.OActionsUnfinished, 1)
}

func TestBuilderRejectsScopeMismatch(t *testing.T) {
	b := NewBuilder(sampleSpec())
	_, err := b.Node(model.Node{NsID: "other", ClusterID: "c1", NodeID: "n1"})
	assert.Error(t, err)
}

func TestBuilderRejectsDuplicateNode(t *testing.T) {
	b := NewBuilder(sampleSpec())
	_, err := b.Node(model.Node{NsID: "default", ClusterID: "c1", NodeID: "n1"})
	require.NoError(t, err)
	_, err = b.Node(model.Node{NsID: "default", ClusterID: "c1", NodeID: "n1"})
	assert.Error(t, err)
}

func TestBuilderRejectsFinishedOAction(t *testing.T) {
	b := NewBuilder(sampleSpec())
	_, err := b.OAction(model.OAction{NsID: "default", ClusterID: "c1", ActionID: "a1", State: model.OActionDone})
	assert.Error(t, err)
}
