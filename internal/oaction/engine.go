package oaction

import (
	"context"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/sdk"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// Engine runs the scheduling policy and invokes registered handlers against
// a cluster's unfinished OActions, grounded on spec.md §4.7.
type Engine struct {
	Registry *Registry
	SDK      *sdk.SDK
}

// NewEngine returns an Engine bound to registry and sdk.
func NewEngine(registry *Registry, s *sdk.SDK) *Engine {
	return &Engine{Registry: registry, SDK: s}
}

// BuildSchedChoice computes this cycle's scheduling choice from the
// unfinished action set, per spec.md §4.7's three rules. "mode", for the
// ExclusiveWithinMode rule, is resolved to the action's kind: the spec
// leaves the grouping key unspecified (§9 open questions note only
// Exclusive/ExclusiveWithinMode exist), and kind is the natural grouping an
// operator would expect ("don't run two rolling-restarts at once").
func (e *Engine) BuildSchedChoice(unfinished []model.OAction, nodeActionsActive bool) model.SchedulingChoice {
	choice := model.SchedulingChoice{NodeActionsBlocked: nodeActionsActive}

	runningKindsExclusiveWithinMode := map[string]bool{}
	for _, a := range unfinished {
		if a.State != model.OActionRunning && a.State != model.OActionPendingSchedule {
			continue
		}
		entry, ok := e.Registry.Lookup(a.Kind)
		if !ok {
			continue
		}
		switch entry.ScheduleMode {
		case model.ScheduleExclusive:
			choice.OActionsBlocked = true
			choice.Reason = "exclusive oaction active"
		case model.ScheduleExclusiveWithinMode:
			if a.State == model.OActionRunning {
				runningKindsExclusiveWithinMode[a.Kind] = true
			}
		}
	}
	if !choice.OActionsBlocked && len(runningKindsExclusiveWithinMode) > 0 {
		// Record the first blocked mode for the report; the per-kind check
		// itself happens in Progress.
		for kind := range runningKindsExclusiveWithinMode {
			choice.BlockedMode = kind
			break
		}
	}
	return choice
}

func kindBlocked(choice model.SchedulingChoice, kind string, entry Entry, runningWithinMode map[string]bool) bool {
	if choice.OActionsBlocked {
		return true
	}
	if entry.ScheduleMode == model.ScheduleExclusiveWithinMode && runningWithinMode[kind] {
		return true
	}
	return false
}

// Progress advances every unfinished OAction one cycle: timing out overdue
// actions, invoking handlers for Running actions unconditionally, and
// starting PendingSchedule actions the schedule choice does not block
// (spec.md §4.7). It returns the choice computed for this cycle plus
// counts for the orchestrate report.
func (e *Engine) Progress(ctx context.Context, unfinished []model.OAction, nodeActionsActive bool) (model.SchedulingChoice, int, int, error) {
	choice := e.BuildSchedChoice(unfinished, nodeActionsActive)
	runningWithinMode := map[string]bool{}
	for _, a := range unfinished {
		if a.State == model.OActionRunning {
			if entry, ok := e.Registry.Lookup(a.Kind); ok && entry.ScheduleMode == model.ScheduleExclusiveWithinMode {
				runningWithinMode[a.Kind] = true
			}
		}
	}

	scheduled, failed := 0, 0
	now := e.SDK.Now()
	for _, action := range unfinished {
		if action.TimedOut(now) {
			if err := e.timeoutAction(ctx, action); err != nil {
				return choice, scheduled, failed, err
			}
			failed++
			continue
		}

		switch action.State {
		case model.OActionRunning:
			if err := e.invoke(ctx, action); err != nil {
				return choice, scheduled, failed, err
			}
		case model.OActionPendingSchedule:
			entry, ok := e.Registry.Lookup(action.Kind)
			if !ok {
				if err := e.failUnknownKind(ctx, action); err != nil {
					return choice, scheduled, failed, err
				}
				failed++
				continue
			}
			if kindBlocked(choice, action.Kind, entry, runningWithinMode) {
				continue
			}
			if action.ScheduledTS == nil {
				now := e.SDK.Now()
				action.ScheduledTS = &now
			}
			if action.Timeout == 0 {
				action.Timeout = entry.Timeout
			}
			if err := e.invoke(ctx, action); err != nil {
				return choice, scheduled, failed, err
			}
			scheduled++
		}
	}
	return choice, scheduled, failed, nil
}

// invoke calls the registered handler for action.Kind and applies the
// resulting OActionChanges, implementing the implicit-advance and
// error-to-Failed rules of spec.md §4.7.
func (e *Engine) invoke(ctx context.Context, action model.OAction) error {
	entry, ok := e.Registry.Lookup(action.Kind)
	if !ok {
		return e.failUnknownKind(ctx, action)
	}

	changes, err := entry.Handler.Invoke(ctx, action)
	if err != nil {
		action.State = model.OActionFailed
		action.StatePayloadError = &model.ActionError{Message: err.Error(), Code: apperr.CodeOf(err)}
		now := e.SDK.Now()
		action.FinishedTS = &now
		return e.persist(ctx, action, model.CodeOActionChanged)
	}

	prevState := action.State
	if changes.State != "" {
		action.State = changes.State
	}
	// Implicit advance: a PendingSchedule action the handler left alone (or
	// that it did not move out of PendingSchedule) becomes Running.
	if action.State == model.OActionPendingSchedule {
		action.State = model.OActionRunning
	}
	switch changes.PayloadField {
	case Update:
		action.StatePayload = changes.Payload
	case Remove:
		action.StatePayload = nil
	}
	switch changes.ErrorField {
	case Update:
		action.StatePayloadError = changes.Error
	case Remove:
		action.StatePayloadError = nil
	}
	if action.State.IsTerminal() && action.FinishedTS == nil {
		now := e.SDK.Now()
		action.FinishedTS = &now
	}

	if prevState == action.State && changes.PayloadField == Unchanged && changes.ErrorField == Unchanged {
		// No observable change; still persist to record scheduled_ts/timeout
		// updates from the caller, but skip the event (spec.md §3: events
		// accompany mutations, not no-ops).
		return e.persistSilent(ctx, action)
	}
	return e.persist(ctx, action, model.CodeOActionChanged)
}

func (e *Engine) failUnknownKind(ctx context.Context, action model.OAction) error {
	err := ErrUnknownKind(action.Kind)
	action.State = model.OActionFailed
	action.StatePayloadError = &model.ActionError{Message: err.Error(), Code: "UnknownKind"}
	now := e.SDK.Now()
	action.FinishedTS = &now
	return e.persist(ctx, action, model.CodeOActionChanged)
}

func (e *Engine) timeoutAction(ctx context.Context, action model.OAction) error {
	action.State = model.OActionFailed
	action.StatePayloadError = &model.ActionError{Message: "oaction timed out", Code: "Timeout"}
	now := e.SDK.Now()
	action.FinishedTS = &now
	return e.persist(ctx, action, model.CodeOActionChanged)
}

func (e *Engine) persist(ctx context.Context, action model.OAction, eventCode string) error {
	if err := e.SDK.EmitChange(ctx, action.ClusterID, eventCode, map[string]any{"oaction": action}); err != nil {
		return apperr.Infrastructure(err, "emit %s", eventCode)
	}
	return e.persistSilent(ctx, action)
}

func (e *Engine) persistSilent(ctx context.Context, action model.OAction) error {
	metrics.RecordOActionTransition(action.Kind, string(action.State))
	if err := e.SDK.Store.PersistOAction(ctx, action); err != nil {
		return apperr.Infrastructure(err, "persist oaction %s", action.Key())
	}
	return nil
}
