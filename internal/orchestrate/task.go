// Package orchestrate implements the orchestrate task of spec.md §4.8: the
// per-cluster lock → init → sync → converge → progress-actions → report
// pipeline driven by the orchestrator scheduler (or a direct replictl
// request). Grounded throughout on original_source
// core-logic/task/orchestrate/src/*.rs, restructured into the Injector +
// plain-function style the rest of this module uses instead of a trait
// object per step.
package orchestrate

import (
	"context"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/clusterview"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/platformapi"
)

// Run executes one orchestration cycle for a cluster under its
// non-blocking lock (spec.md §4.8 step 1, §5 "one in-flight orchestrate
// task per cluster"). A lock already held by another process is not an
// error: the task exits quietly and the scheduler retries at the cluster's
// next interval (spec.md §7).
func Run(ctx context.Context, inj injector.Injector, req ClusterRequest) error {
	key := model.ClusterKey{NsID: req.NsID, ClusterID: req.ClusterID}
	lock := inj.Coordinator.NonBlockingLock(key.LockName())

	if err := lock.Acquire(ctx); err != nil {
		if apperr.KindOf(err) == apperr.KindConcurrency {
			return nil
		}
		return err
	}
	defer func() {
		_ = lock.Release(ctx)
	}()

	data, err := load(ctx, inj, req)
	if err != nil {
		return err
	}

	if err := inj.SDK.EmitChange(ctx, req.ClusterID, model.CodeOrchestrateStart, map[string]any{
		"ns_id": req.NsID, "cluster_id": req.ClusterID, "mode": data.Mode,
	}); err != nil {
		return apperr.Infrastructure(err, "emit %s", model.CodeOrchestrateStart)
	}

	runErr := runCycle(ctx, inj, data)

	if err := finish(ctx, inj, data, runErr); err != nil {
		return err
	}
	if err := inj.SDK.EmitChange(ctx, req.ClusterID, model.CodeOrchestrateFinish, map[string]any{
		"ns_id": req.NsID, "cluster_id": req.ClusterID, "success": runErr == nil,
	}); err != nil {
		return apperr.Infrastructure(err, "emit %s", model.CodeOrchestrateFinish)
	}

	return runErr
}

// runCycle performs sync, converge and action-progress in sequence,
// honouring the chosen mode: Delete mode skips straight to tearing down
// whatever the cluster view still has (spec.md §4.8 step 2's mode
// selection; original_source's delete handling is folded in here since no
// dedicated delete.rs survives in the retrieval pack).
func runCycle(ctx context.Context, inj injector.Injector, data *initData) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	newView, err := sync(ctx, inj, data)
	if err != nil {
		return err
	}

	if data.Mode == model.ModeDelete {
		return deleteCluster(ctx, inj, data, newView)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if data.Mode == model.ModeSync {
		if err := converge(ctx, inj, data, newView); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return progressActions(ctx, inj, data, newView)
}

// deleteCluster asks the cluster's Platform to deprovision every node still
// in the view (spec.md §4.8's Delete mode). It does nothing when the view
// has no nodes, the spec names no platform, or the platform record is
// missing. It removes no store records: the discovery, node, store-extras
// and ClusterSpec records are all left in place.
func deleteCluster(ctx context.Context, inj injector.Injector, data *initData, view clusterview.ClusterView) error {
	if len(view.Nodes) == 0 {
		return nil
	}

	platform := data.Spec.Platform
	if platform == "" {
		// Nothing provisioned it; nothing to deprovision.
		return nil
	}
	pRecord, err := inj.Store.LookupPlatform(ctx, model.NamespaceKey{NsID: data.Spec.NsID}, platform)
	if err != nil {
		return apperr.Infrastructure(err, "lookup platform %s/%s", data.Spec.NsID, platform)
	}
	if pRecord == nil {
		return nil
	}
	client, err := inj.Platforms.Open(pRecord.URL)
	if err != nil {
		return apperr.Infrastructure(err, "open platform %s/%s", data.Spec.NsID, platform)
	}

	nodeIDs := make([]string, 0, len(view.Nodes))
	for id := range view.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	return client.Deprovision(ctx, platformapi.NodeDeprovisionRequest{
		ClusterID: data.Spec.ClusterID,
		NodeIDs:   nodeIDs,
	})
}
