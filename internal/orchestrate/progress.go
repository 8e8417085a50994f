package orchestrate

import (
	"context"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/clusterview"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
)

// progressActions drives both action engines across the new view's
// unfinished actions (spec.md §4.8 step 5, combining the policies of §4.6
// and §4.7): node actions are scheduled/synced one at a time cluster-wide,
// then orchestrator actions are progressed under the §4.7 scheduling
// choice.
func progressActions(ctx context.Context, inj injector.Injector, data *initData, view clusterview.ClusterView) error {
	nactions, err := inj.Store.ListUnfinishedNActions(ctx, view.Spec.Key())
	if err != nil {
		return apperr.Infrastructure(err, "list unfinished nactions %s", view.Spec.Key())
	}

	agentAddr := map[string]string{}
	if view.Discovery != nil {
		for _, n := range view.Discovery.Nodes {
			agentAddr[n.NodeID] = n.AgentAddress
		}
	}

	nodeActionActive := false
	byNode := map[string][]model.NAction{}
	for _, a := range nactions {
		if a.State.Phase == model.NActionNew || a.State.Phase == model.NActionRunning {
			nodeActionActive = true
		}
		byNode[a.NodeID] = append(byNode[a.NodeID], a)
	}

	for nodeID, actions := range byNode {
		addr, ok := agentAddr[nodeID]
		if !ok {
			continue // node no longer discovered; leave actions as-is
		}
		client, err := inj.Agents.Open(addr)
		if err != nil {
			continue // unreachable node recovered locally, spec.md §7
		}

		for _, a := range actions {
			switch a.State.Phase {
			case model.NActionNew, model.NActionRunning:
				phase, err := inj.NActions.Sync(ctx, client, a)
				if err != nil {
					return err
				}
				if phase == model.NActionLost {
					data.Report.ActionsLost++
				} else if phase == model.NActionFailed {
					data.Report.ActionsFailed++
				}
			case model.NActionPendingSchedule:
				if nodeActionActive {
					continue
				}
				if err := inj.NActions.Schedule(ctx, client, a); err != nil {
					return err
				}
				nodeActionActive = true
				data.Report.ActionsScheduled++
			}
		}
		if err := inj.NActions.SyncFinished(ctx, client, actions); err != nil {
			return err
		}
	}

	choice, scheduled, failed, err := inj.OActions.Progress(ctx, view.OActionsUnfinished, nodeActionActive)
	if err != nil {
		return err
	}
	choice.NodeActionsBlocked = nodeActionActive
	data.Report.Scheduling = choice
	data.Report.ActionsScheduled += scheduled
	data.Report.ActionsFailed += failed

	return nil
}
