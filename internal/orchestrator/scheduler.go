// Package orchestrator implements the orchestrator scheduler of spec.md
// §4.10: a primary-only periodic loop that finds ClusterSpecs due for
// reconciliation and submits an orchestrate task for each, advancing
// next_orchestrate so a busy worker pool cannot pile up duplicate cycles.
// Grounded on the same _examples/r3e-network-service_layer scheduler
// shape as internal/discovery, and on original_source
// core/components/orchestrator_scheduler/src/logic.rs's doc comment
// (its body was stripped from the retrieval pack, but the
// search-then-advance-next_run policy it describes is identical to
// discovery's and is reused here for clusters).
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/replicante-io/replicore/internal/app/system"
	"github.com/replicante-io/replicore/internal/coordinator"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/taskqueue"
	"github.com/replicante-io/replicore/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// DefaultInterval is how often the scheduler polls for due cluster specs.
const DefaultInterval = 10 * time.Second

// Request is the taskqueue.QueueOrchestrateCluster payload.
type Request struct {
	NsID      string `json:"ns_id"`
	ClusterID string `json:"cluster_id"`
}

// DueSpecStore is the subset of store.Store the scheduler needs.
type DueSpecStore interface {
	ListDueClusterSpecs(ctx context.Context, now int64) ([]model.ClusterSpec, error)
	PersistClusterSpec(ctx context.Context, spec model.ClusterSpec) error
}

// Scheduler polls for ClusterSpecs whose next_orchestrate has elapsed and
// submits an orchestrate task for each, while this process holds the
// "orchestrator-scheduler" election.
type Scheduler struct {
	Store    DueSpecStore
	Tasks    taskqueue.Queue
	Election coordinator.Election
	Log      *logger.Logger
	Interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewScheduler returns a Scheduler with the default polling interval.
func NewScheduler(store DueSpecStore, tasks taskqueue.Queue, election coordinator.Election, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("orchestrator-scheduler")
	}
	return &Scheduler{Store: store, Tasks: tasks, Election: election, Log: log, Interval: DefaultInterval}
}

func (s *Scheduler) Name() string { return "orchestrator-scheduler" }

// Start joins the election and begins the polling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	if err := s.Election.Run(runCtx); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval())
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()

	s.Log.Info("orchestrator scheduler started")
	return nil
}

// Stop halts the polling loop.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.Log.Info("orchestrator scheduler stopped")
	return nil
}

func (s *Scheduler) interval() time.Duration {
	if s.Interval <= 0 {
		return DefaultInterval
	}
	return s.Interval
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.Election.Watch().IsPrimary() {
		return
	}

	now := time.Now()
	due, err := s.Store.ListDueClusterSpecs(ctx, now.Unix())
	if err != nil {
		s.Log.WithError(err).Warn("orchestrator scheduler: list due cluster specs failed")
		return
	}

	for _, spec := range due {
		if err := s.scheduleOne(ctx, spec, now); err != nil {
			s.Log.WithError(err).
				WithField("ns_id", spec.NsID).
				WithField("cluster_id", spec.ClusterID).
				Warn("orchestrator scheduler: schedule failed")
		}
	}
}

// scheduleOne submits the task then advances next_orchestrate, so a submit
// failure leaves the cluster due for retry on the next tick.
func (s *Scheduler) scheduleOne(ctx context.Context, spec model.ClusterSpec, now time.Time) error {
	s.Log.WithField("ns_id", spec.NsID).WithField("cluster_id", spec.ClusterID).Debug("scheduling pending orchestration")

	payload, err := json.Marshal(Request{NsID: spec.NsID, ClusterID: spec.ClusterID})
	if err != nil {
		return err
	}
	if err := s.Tasks.Submit(ctx, taskqueue.Submission{
		Queue:   taskqueue.QueueOrchestrateCluster,
		Payload: payload,
	}); err != nil {
		return err
	}

	spec.NextOrchestrate = now.Add(time.Duration(spec.Interval) * time.Second)
	return s.Store.PersistClusterSpec(ctx, spec)
}
