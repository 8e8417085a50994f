package orchestrate

import (
	"context"
	"time"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/clusterview"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/internal/model"
)

// convergeStep is one ordered step of the convergence pipeline (spec.md
// §4.8 step 4). Grounded on original_source
// core-logic/task/orchestrate/src/converge/mod.rs's `ConvergeStep` trait and
// its static ordered STEPS list.
type convergeStep interface {
	ID() string
	Converge(ctx context.Context, inj injector.Injector, view clusterview.ClusterView, state *model.ConvergeState) error
}

// steps is the ordered convergence pipeline. New steps are appended here,
// never reordered once deployed, since ConvergeState.Graces keys are
// step-scoped.
func steps() []convergeStep {
	return []convergeStep{
		scaleUpStep{},
		clusterInitStep{},
	}
}

// converge runs every step against the new cluster view, recording failures
// as report notes rather than aborting (spec.md §4.8 step 4: "Failures in a
// step are recorded as a note with step-id but do not abort subsequent
// steps"), then persists the updated ConvergeState once.
func converge(ctx context.Context, inj injector.Injector, data *initData, view clusterview.ClusterView) error {
	key := data.Spec.Key()
	existing, err := inj.Store.LookupConvergeState(ctx, key)
	if err != nil {
		return apperr.Infrastructure(err, "lookup converge state %s", key)
	}
	state := model.ConvergeState{NsID: key.NsID, ClusterID: key.ClusterID, Graces: map[string]time.Time{}}
	if existing != nil {
		state = *existing
		if state.Graces == nil {
			state.Graces = map[string]time.Time{}
		}
	}

	for _, step := range steps() {
		if err := step.Converge(ctx, inj, view, &state); err != nil {
			note := model.Note{
				Time:    inj.SDK.Now(),
				StepID:  step.ID(),
				Message: err.Error(),
			}
			data.Report.Notes = append(data.Report.Notes, note)
		}
	}

	state.UpdatedAt = inj.SDK.Now()
	if err := inj.Store.PersistConvergeState(ctx, state); err != nil {
		return apperr.Infrastructure(err, "persist converge state %s", key)
	}
	return nil
}
