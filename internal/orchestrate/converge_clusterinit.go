package orchestrate

import (
	"context"
	"sort"

	"github.com/replicante-io/replicore/internal/clusterview"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/sdk"
)

// stepIDClusterInit is the ConvergeState.Graces marker key for this step:
// its presence (any non-zero time) means the init action has already been
// requested, not an actual grace countdown.
const stepIDClusterInit = "cluster-init"

// clusterInitKind is the NAction kind requesting that a node initialise a
// brand new store cluster (join itself as the first member).
const clusterInitKind = "core.replicante.io/node/init"

// clusterInitStep provisions a first-node join action once a declared
// cluster has at least one healthy, unclaimed node and no init action has
// been requested yet (spec.md §4.8 step 4: "cluster-init (provision a
// first-node join action when appropriate)"). Grounded on spec.md's
// description; original_source's cluster_init.rs was not retrieved, so the
// "one init NAction per cluster, gated by declaration.approval=='granted'"
// policy below is this repo's own design decision (recorded in DESIGN.md).
type clusterInitStep struct{}

func (clusterInitStep) ID() string { return stepIDClusterInit }

func (s clusterInitStep) Converge(ctx context.Context, inj injector.Injector, view clusterview.ClusterView, state *model.ConvergeState) error {
	def := view.Spec.Declaration.Definition
	if def == nil || !view.Spec.Declaration.Active {
		return nil
	}
	if _, done := state.Graces[stepIDClusterInit]; done {
		return nil
	}
	if view.Spec.Declaration.Approval != "granted" {
		return nil
	}
	if len(view.Nodes) == 0 {
		return nil
	}

	existing, err := inj.Store.ListNActionsByCluster(ctx, view.Spec.Key())
	if err != nil {
		return err
	}
	for _, a := range existing {
		if a.Kind == clusterInitKind {
			state.Graces[stepIDClusterInit] = inj.SDK.Now()
			return nil
		}
	}

	ids := make([]string, 0, len(view.Nodes))
	for id, node := range view.Nodes {
		if node.NodeStatus == model.NodeHealthy {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	sort.Strings(ids)
	firstNodeID := ids[0]

	_, err = inj.SDK.NActionCreate(ctx, sdk.NActionSpec{
		NsID:      view.NsID,
		ClusterID: view.ClusterID,
		NodeID:    firstNodeID,
		Kind:      clusterInitKind,
		Args:      map[string]any{"cluster_id": view.ClusterID},
		Approved:  true,
	})
	if err != nil {
		return err
	}
	state.Graces[stepIDClusterInit] = inj.SDK.Now()
	return nil
}
