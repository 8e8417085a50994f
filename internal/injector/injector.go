// Package injector implements spec.md §9's explicit design note: "the
// coordinator, store, event stream, and task queue are wrapped in an
// Injector value passed explicitly into every task body... avoid
// process-wide mutable singletons." Every long-running component (the
// orchestrate task, the schedulers, the discovery task) receives an
// Injector rather than reaching for package-level globals.
package injector

import (
	"github.com/replicante-io/replicore/internal/agent"
	"github.com/replicante-io/replicore/internal/coordinator"
	"github.com/replicante-io/replicore/internal/eventstream"
	"github.com/replicante-io/replicore/internal/naction"
	"github.com/replicante-io/replicore/internal/oaction"
	"github.com/replicante-io/replicore/internal/platformapi"
	"github.com/replicante-io/replicore/internal/sdk"
	"github.com/replicante-io/replicore/internal/store"
	"github.com/replicante-io/replicore/internal/taskqueue"
	"github.com/replicante-io/replicore/pkg/logger"
)

// Injector bundles every process-wide handle a task body needs. It is
// cheap to copy by value: every field is itself a handle or an interface.
type Injector struct {
	Store       store.Store
	Events      eventstream.Stream
	Coordinator coordinator.Coordinator
	Tasks       taskqueue.Queue

	SDK *sdk.SDK

	Agents    *agent.Registry
	Platforms *platformapi.Registry

	NActions *naction.Engine
	OActions *oaction.Engine

	Log *logger.Logger
}
