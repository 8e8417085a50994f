package orchestrate

import (
	"context"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/injector"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// finish finalises and persists the orchestration report for this cycle
// (spec.md §4.8 step 6), recording the outcome without aborting: a report
// write failure is returned to the caller, but the report itself always
// reflects runErr, success or not.
func finish(ctx context.Context, inj injector.Injector, data *initData, runErr error) error {
	data.Report.Duration = inj.SDK.Now().Sub(data.Report.StartTime)
	data.Report.Success = runErr == nil
	if runErr != nil {
		layers := apperr.LayersOf(runErr)
		chain := make([]string, 0, len(layers)+1)
		for _, l := range layers {
			chain = append(chain, l.Message)
		}
		if len(chain) == 0 {
			chain = append(chain, runErr.Error())
		}
		data.Report.ErrorChain = chain
	}

	metrics.RecordOrchestrateRun(string(data.Report.Mode), data.Report.Success, data.Report.NodesSynced, data.Report.Duration)

	if err := inj.Store.PersistOrchestrateReport(ctx, data.Report); err != nil {
		return apperr.Infrastructure(err, "persist orchestrate report %s", data.Report.Key())
	}
	return nil
}
