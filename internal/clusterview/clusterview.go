// Package clusterview implements spec.md §4.5: an immutable in-memory
// snapshot of a cluster assembled from a ClusterSpec, its discovery record,
// per-node records, store-extras, and unfinished orchestrator actions.
package clusterview

import (
	"fmt"

	"github.com/replicante-io/replicore/internal/model"
)

// ClusterView is the read-only result of a ClusterViewBuilder. All slices
// and maps are owned copies: callers may hold a ClusterView across
// suspension points without it changing underneath them.
type ClusterView struct {
	NsID      string
	ClusterID string

	Spec      model.ClusterSpec
	Discovery *model.ClusterDiscovery

	Nodes       map[string]model.Node
	StoreExtras map[string]model.StoreExtras

	OActionsUnfinished []model.OAction
}

// Builder incrementally assembles a ClusterView, rejecting any record whose
// scoped key does not match the spec it was created from.
type Builder struct {
	view ClusterView

	seenNodes   map[string]bool
	seenExtras  map[string]bool
	seenOAction map[string]bool
}

// NewBuilder starts building a view for spec, the cluster it identifies.
func NewBuilder(spec model.ClusterSpec) *Builder {
	return &Builder{
		view: ClusterView{
			NsID:        spec.NsID,
			ClusterID:   spec.ClusterID,
			Spec:        spec,
			Nodes:       make(map[string]model.Node),
			StoreExtras: make(map[string]model.StoreExtras),
		},
		seenNodes:   make(map[string]bool),
		seenExtras:  make(map[string]bool),
		seenOAction: make(map[string]bool),
	}
}

func (b *Builder) scopeMismatch(nsID, clusterID string) error {
	if nsID != b.view.NsID || clusterID != b.view.ClusterID {
		return fmt.Errorf("clusterview: record scope %s/%s does not match builder scope %s/%s",
			nsID, clusterID, b.view.NsID, b.view.ClusterID)
	}
	return nil
}

// Discovery sets the cluster's discovery record.
func (b *Builder) Discovery(d model.ClusterDiscovery) (*Builder, error) {
	if err := b.scopeMismatch(d.NsID, d.ClusterID); err != nil {
		return b, err
	}
	b.view.Discovery = &d
	return b, nil
}

// Node adds a node record, rejecting a duplicate node_id.
func (b *Builder) Node(n model.Node) (*Builder, error) {
	if err := b.scopeMismatch(n.NsID, n.ClusterID); err != nil {
		return b, err
	}
	if b.seenNodes[n.NodeID] {
		return b, fmt.Errorf("clusterview: duplicate node %s in cluster %s/%s", n.NodeID, n.NsID, n.ClusterID)
	}
	b.seenNodes[n.NodeID] = true
	b.view.Nodes[n.NodeID] = n
	return b, nil
}

// StoreExtras adds a store-extras record, rejecting a duplicate node_id.
func (b *Builder) StoreExtras(e model.StoreExtras) (*Builder, error) {
	if err := b.scopeMismatch(e.NsID, e.ClusterID); err != nil {
		return b, err
	}
	if b.seenExtras[e.NodeID] {
		return b, fmt.Errorf("clusterview: duplicate store-extras %s in cluster %s/%s", e.NodeID, e.NsID, e.ClusterID)
	}
	b.seenExtras[e.NodeID] = true
	b.view.StoreExtras[e.NodeID] = e
	return b, nil
}

// OAction adds an unfinished orchestrator action, rejecting a duplicate
// action_id and any action already in a terminal state.
func (b *Builder) OAction(a model.OAction) (*Builder, error) {
	if err := b.scopeMismatch(a.NsID, a.ClusterID); err != nil {
		return b, err
	}
	if a.State.IsTerminal() {
		return b, fmt.Errorf("clusterview: oaction %s is finished, cannot add to unfinished set", a.ActionID)
	}
	if b.seenOAction[a.ActionID] {
		return b, fmt.Errorf("clusterview: duplicate oaction %s in cluster %s/%s", a.ActionID, a.NsID, a.ClusterID)
	}
	b.seenOAction[a.ActionID] = true
	b.view.OActionsUnfinished = append(b.view.OActionsUnfinished, a)
	return b, nil
}

// Finish produces the immutable ClusterView.
func (b *Builder) Finish() ClusterView {
	view := b.view
	view.Nodes = make(map[string]model.Node, len(b.view.Nodes))
	for id, node := range b.view.Nodes {
		view.Nodes[id] = node
	}
	view.StoreExtras = make(map[string]model.StoreExtras, len(b.view.StoreExtras))
	for id, extras := range b.view.StoreExtras {
		view.StoreExtras[id] = extras
	}
	view.OActionsUnfinished = append([]model.OAction(nil), b.view.OActionsUnfinished...)
	return view
}
