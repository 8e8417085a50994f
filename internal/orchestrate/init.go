package orchestrate

import (
	"context"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/clusterview"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
)

// initData is the state loaded before sync begins, grounded on
// original_source core-logic/task/orchestrate/src/init.rs's InitData::load.
type initData struct {
	Namespace      model.Namespace
	Spec           model.ClusterSpec
	Mode           model.OrchestrateMode
	ClusterCurrent clusterview.ClusterView
	Report         model.OrchestrateReport
}

// load fetches the namespace and cluster spec, validates they are
// orchestratable, assembles the "current" cluster view, and chooses the
// reconciliation mode (spec.md §4.8 step 2).
func load(ctx context.Context, inj injector.Injector, req ClusterRequest) (*initData, error) {
	ns, err := inj.Store.LookupNamespace(ctx, req.NsID)
	if err != nil {
		return nil, apperr.Infrastructure(err, "lookup namespace %q", req.NsID)
	}
	if ns == nil {
		return nil, apperr.NotFound("NamespaceNotFound", "namespace %q not found", req.NsID)
	}
	if ns.Status == model.NamespaceInactive {
		return nil, apperr.Precondition("NamespaceNotActive", "namespace %q is not active", req.NsID)
	}

	key := model.ClusterKey{NsID: req.NsID, ClusterID: req.ClusterID}
	spec, err := inj.Store.LookupClusterSpec(ctx, key)
	if err != nil {
		return nil, apperr.Infrastructure(err, "lookup clusterspec %s", key)
	}
	if spec == nil {
		return nil, apperr.NotFound("ClusterNotFound", "cluster %s not found", key)
	}
	if !spec.Active {
		return nil, apperr.Precondition("ClusterNotActive", "cluster %s is not active", key)
	}

	current, err := loadClusterView(ctx, inj, *spec)
	if err != nil {
		return nil, err
	}

	var mode model.OrchestrateMode
	switch ns.Status {
	case model.NamespaceDeleting, model.NamespaceDeleted:
		mode = model.ModeDelete
	case model.NamespaceObserved:
		mode = model.ModeObserve
	default:
		mode = model.ModeSync
	}

	report := model.OrchestrateReport{
		NsID:      ns.ID,
		ClusterID: spec.ClusterID,
		Mode:      mode,
		StartTime: inj.SDK.Now(),
	}

	return &initData{
		Namespace:      *ns,
		Spec:           *spec,
		Mode:           mode,
		ClusterCurrent: current,
		Report:         report,
	}, nil
}

// loadClusterView assembles a ClusterView straight from the store: the
// latest discovery record, all known nodes and store-extras, and every
// unfinished OAction for the cluster.
func loadClusterView(ctx context.Context, inj injector.Injector, spec model.ClusterSpec) (clusterview.ClusterView, error) {
	builder := clusterview.NewBuilder(spec)
	key := spec.Key()

	if disco, err := inj.Store.LookupClusterDiscovery(ctx, key); err != nil {
		return clusterview.ClusterView{}, apperr.Infrastructure(err, "lookup cluster discovery %s", key)
	} else if disco != nil {
		if _, err := builder.Discovery(*disco); err != nil {
			return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble cluster view")
		}
	}

	nodes, err := inj.Store.ListNodes(ctx, key)
	if err != nil {
		return clusterview.ClusterView{}, apperr.Infrastructure(err, "list nodes %s", key)
	}
	for _, n := range nodes {
		if _, err := builder.Node(n); err != nil {
			return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble cluster view")
		}
	}

	extras, err := inj.Store.ListStoreExtras(ctx, key)
	if err != nil {
		return clusterview.ClusterView{}, apperr.Infrastructure(err, "list store extras %s", key)
	}
	for _, e := range extras {
		if _, err := builder.StoreExtras(e); err != nil {
			return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble cluster view")
		}
	}

	oactions, err := inj.Store.ListUnfinishedOActions(ctx, key)
	if err != nil {
		return clusterview.ClusterView{}, apperr.Infrastructure(err, "list oactions %s", key)
	}
	for _, a := range oactions {
		if _, err := builder.OAction(a); err != nil {
			return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble cluster view")
		}
	}

	return builder.Finish(), nil
}
