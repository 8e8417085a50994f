// Package naction implements the node-action phase machine of spec.md §4.6:
// approve/reject, scheduling onto an Agent, syncing in-flight actions, and
// reconciling finished actions. Grounded on spec.md §4.6 directly (no
// dedicated node-action SDK file survives in original_source; the shape
// mirrors core/sdk/src/oaction.rs's paired emit+persist style applied to
// NAction) and on original_source core/clients/agent/src/lib.rs for the
// Agent call vocabulary (action_schedule/action_lookup/actions_finished).
package naction

import (
	"context"

	"github.com/replicante-io/replicore/internal/agent"
	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/sdk"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// DefaultScheduleFailThreshold bounds how many consecutive action_schedule
// failures are tolerated before an NAction is given up on (spec.md §4.6 #2:
// "after exceeding a policy threshold transition to Failed").
const DefaultScheduleFailThreshold = 3

// Engine drives NAction transitions by calling out to a node's Agent and
// recording the result through the SDK facade.
type Engine struct {
	SDK                   *sdk.SDK
	ScheduleFailThreshold int
}

// NewEngine returns an Engine with the default schedule-fail threshold.
func NewEngine(s *sdk.SDK) *Engine {
	return &Engine{SDK: s, ScheduleFailThreshold: DefaultScheduleFailThreshold}
}

func (e *Engine) threshold() int {
	if e.ScheduleFailThreshold <= 0 {
		return DefaultScheduleFailThreshold
	}
	return e.ScheduleFailThreshold
}

// Approve moves a PendingApprove action to PendingSchedule.
func (e *Engine) Approve(ctx context.Context, action model.NAction) error {
	return e.SDK.NActionApprove(ctx, action)
}

// Reject cancels a PendingApprove action.
func (e *Engine) Reject(ctx context.Context, action model.NAction) error {
	return e.SDK.NActionReject(ctx, action)
}

// Schedule calls the Agent's action_schedule for a PendingSchedule action.
// On success the phase becomes New; on failure the schedule-fail counter is
// incremented and, once it exceeds the policy threshold, the action is
// failed terminally (spec.md §4.6 #2).
func (e *Engine) Schedule(ctx context.Context, client agent.Client, action model.NAction) error {
	if action.State.Phase != model.NActionPendingSchedule {
		return apperr.Precondition("NActionNotPendingSchedule",
			"naction %s is not pending schedule (phase=%s)", action.Key(), action.State.Phase)
	}

	err := client.ActionSchedule(ctx, agent.ActionExecutionRequest{
		ActionID: action.ActionID,
		Kind:     action.Kind,
		Args:     action.Args,
		Metadata: action.Metadata,
	})
	if err == nil {
		action.State = model.NActionState{Phase: model.NActionNew}
		action.ScheduleFailCount = 0
		now := e.SDK.Now()
		action.ScheduledTime = &now
		return e.persist(ctx, action, "")
	}

	action.ScheduleFailCount++
	if action.ScheduleFailCount <= e.threshold() {
		// Leave the phase alone; the orchestrate task retries scheduling
		// on the next cycle. Still persist to keep the counter durable.
		return e.persist(ctx, action, "")
	}

	action.State = model.NActionState{
		Phase: model.NActionFailed,
		Error: &model.ActionError{Message: err.Error(), Code: apperr.CodeOf(err)},
	}
	now := e.SDK.Now()
	action.FinishedTime = &now
	return e.persist(ctx, action, model.CodeNActionFinished)
}

// Sync looks up an in-flight action's current state on its Agent and
// reconciles the stored record, implementing the tie-break rule of §4.6:
// "the agent's terminal state wins; a non-terminal agent state cannot
// overwrite a stored terminal state" (a terminal stored record should never
// reach Sync, but the guard is defensive).
func (e *Engine) Sync(ctx context.Context, client agent.Client, action model.NAction) (model.NActionPhase, error) {
	if action.State.Phase.IsTerminal() {
		return action.State.Phase, nil
	}

	exec, err := client.ActionLookup(ctx, action.ActionID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return model.NActionLost, e.markLost(ctx, action)
		}
		// Remote errors beyond not-found are recovered by the caller
		// (spec.md §7): leave the action as-is for the next cycle.
		return action.State.Phase, nil
	}

	if !exec.State.Phase.IsTerminal() && action.State.Phase.IsTerminal() {
		return action.State.Phase, nil
	}

	changed := exec.State.Phase != action.State.Phase
	action.State = exec.State
	if exec.State.Phase.IsTerminal() {
		now := e.SDK.Now()
		action.FinishedTime = &now
		if changed {
			return action.State.Phase, e.persist(ctx, action, model.CodeNActionFinished)
		}
	}
	return action.State.Phase, e.persist(ctx, action, "")
}

func (e *Engine) markLost(ctx context.Context, action model.NAction) error {
	action.State = model.NActionState{Phase: model.NActionLost}
	now := e.SDK.Now()
	action.FinishedTime = &now
	return e.persist(ctx, action, model.CodeNActionLost)
}

// SyncFinished fetches the agent's actions_finished list once per
// reachable agent and persists any action the control plane still
// considers unfinished, emitting NACTION_FINISHED for each transition
// (spec.md §4.6 #4).
func (e *Engine) SyncFinished(ctx context.Context, client agent.Client, unfinished []model.NAction) error {
	finished, err := client.ActionsFinished(ctx)
	if err != nil {
		return nil // per-node remote errors are recovered locally
	}
	byID := make(map[string]agent.ActionExecution, len(finished))
	for _, f := range finished {
		byID[f.ActionID] = f
	}

	var firstErr error
	for _, action := range unfinished {
		exec, ok := byID[action.ActionID]
		if !ok || !exec.State.Phase.IsTerminal() {
			continue
		}
		action.State = exec.State
		now := e.SDK.Now()
		action.FinishedTime = &now
		if err := e.persist(ctx, action, model.CodeNActionFinished); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) persist(ctx context.Context, action model.NAction, eventCode string) error {
	metrics.RecordNActionTransition(action.Kind, string(action.State.Phase))
	if eventCode != "" {
		if err := e.SDK.EmitChange(ctx, action.ClusterID, eventCode, map[string]any{"naction": action}); err != nil {
			return apperr.Infrastructure(err, "emit %s", eventCode)
		}
	}
	if err := e.SDK.Store.PersistNAction(ctx, action); err != nil {
		return apperr.Infrastructure(err, "persist naction %s", action.Key())
	}
	return nil
}

