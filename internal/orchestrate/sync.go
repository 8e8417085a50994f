package orchestrate

import (
	"context"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/clusterview"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
)

// sync fetches live agent state for every node in the latest discovery
// record and assembles the "new" cluster view, per spec.md §4.8 step 3.
// Grounded on original_source core-logic/task/orchestrate/src/sync/node.rs's
// process/unreachable/persist split.
func sync(ctx context.Context, inj injector.Injector, data *initData) (clusterview.ClusterView, error) {
	builder := clusterview.NewBuilder(data.Spec)

	if data.ClusterCurrent.Discovery != nil {
		if _, err := builder.Discovery(*data.ClusterCurrent.Discovery); err != nil {
			return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble new cluster view")
		}
	}

	// OActions are not mutated during sync; carry the freshest unfinished
	// set into the new view so action-progress (§4.7) sees any mutation
	// applied concurrently by request handlers during this cycle.
	oactions, err := inj.Store.ListUnfinishedOActions(ctx, data.Spec.Key())
	if err != nil {
		return clusterview.ClusterView{}, apperr.Infrastructure(err, "list oactions %s", data.Spec.Key())
	}
	for _, a := range oactions {
		if _, err := builder.OAction(a); err != nil {
			return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble new cluster view")
		}
	}

	if data.ClusterCurrent.Discovery == nil {
		return builder.Finish(), nil
	}

	for _, discovered := range data.ClusterCurrent.Discovery.Nodes {
		node, extras, reachable := fetchNode(ctx, inj, data.Spec, discovered)
		if reachable {
			data.Report.NodesSynced++
		} else {
			data.Report.NodesFailed++
		}

		if err := persistNode(ctx, inj, data, &builder, node); err != nil {
			return clusterview.ClusterView{}, err
		}
		if extras != nil {
			if _, err := builder.StoreExtras(*extras); err != nil {
				return clusterview.ClusterView{}, apperr.Infrastructure(err, "assemble new cluster view")
			}
			if err := inj.Store.PersistStoreExtras(ctx, *extras); err != nil {
				return clusterview.ClusterView{}, apperr.Infrastructure(err, "persist store extras %s", extras.Key())
			}
		}
	}

	return builder.Finish(), nil
}

// fetchNode calls info_node and, if the node is healthy, info_shards and
// info_store (spec.md §4.8 step 3). Remote errors are recovered locally: an
// unreachable node produces a details-less Unreachable record rather than
// aborting the cycle (spec.md §7).
func fetchNode(ctx context.Context, inj injector.Injector, spec model.ClusterSpec, discovered model.DiscoveredNode) (model.Node, *model.StoreExtras, bool) {
	node := model.Node{
		NsID:      spec.NsID,
		ClusterID: spec.ClusterID,
		NodeID:    discovered.NodeID,
	}

	client, err := inj.Agents.Open(discovered.AgentAddress)
	if err != nil {
		node.NodeStatus = model.NodeUnreachable
		return node, nil, false
	}

	info, err := client.InfoNode(ctx)
	if err != nil {
		node.NodeStatus = model.NodeUnreachable
		return node, nil, false
	}

	node.NodeStatus = info.NodeStatus
	details := info.Details()
	node.Details = &details

	if info.NodeStatus != model.NodeHealthy {
		return node, nil, true
	}

	var extras *model.StoreExtras
	shards, shardsErr := client.InfoShards(ctx)
	storeInfo, storeErr := client.InfoStore(ctx)
	if shardsErr != nil || storeErr != nil {
		node.NodeStatus = model.NodeIncomplete
	} else {
		extras = &model.StoreExtras{
			NsID:      spec.NsID,
			ClusterID: spec.ClusterID,
			NodeID:    discovered.NodeID,
			Shards:    shards,
			StoreInfo: storeInfo,
		}
	}

	return node, extras, true
}

// persistNode emits NODE_SYNC_NEW/NODE_SYNC_UPDATE only when the node
// record actually changed since the current view, then adds it to the new
// view and persists it (spec.md §4.8 step 3).
func persistNode(ctx context.Context, inj injector.Injector, data *initData, builder *clusterview.Builder, node model.Node) error {
	node.UpdatedAt = inj.SDK.Now()

	code := ""
	if current, ok := data.ClusterCurrent.Nodes[node.NodeID]; ok {
		if !current.Equal(node) {
			code = model.CodeNodeSyncUpdate
		}
	} else {
		code = model.CodeNodeSyncNew
	}

	if code != "" {
		if err := inj.SDK.EmitChange(ctx, node.ClusterID, code, map[string]any{"node": node}); err != nil {
			return apperr.Infrastructure(err, "emit %s", code)
		}
	}

	if _, err := builder.Node(node); err != nil {
		return apperr.Infrastructure(err, "assemble new cluster view")
	}
	if err := inj.Store.PersistNode(ctx, node); err != nil {
		return apperr.Infrastructure(err, "persist node %s", node.Key())
	}
	return nil
}
