// Package discovery implements the discovery scheduler and task of
// spec.md §4.9: a primary-only ticker that finds due DiscoverySettings and
// submits discovery tasks, plus the task body that calls the configured
// Platform and persists the resulting ClusterDiscovery. Grounded on
// _examples/r3e-network-service_layer's
// internal/app/services/automation/scheduler.go ticker+system.Service
// shape and on original_source
// core/components/discovery/src/logic.rs's DiscoveryLogic.run/
// schedule_discovery split (find due records, update next_run before
// work lands, never re-derive the same schedule twice in one tick).
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/replicante-io/replicore/internal/app/system"
	"github.com/replicante-io/replicore/internal/coordinator"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/taskqueue"
	"github.com/replicante-io/replicore/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// DefaultInterval is how often the scheduler polls for due discoveries.
const DefaultInterval = 10 * time.Second

// Scheduler polls for DiscoverySettings whose next_run has elapsed and
// submits a discovery task for each, advancing next_run so a slow worker
// or a misconfigured interval cannot pile up duplicate work (spec.md §4.9).
// It only does so while this process holds the "discovery-scheduler"
// election.
type Scheduler struct {
	Store    DueSettingsStore
	Tasks    taskqueue.Queue
	Election coordinator.Election
	Log      *logger.Logger
	Interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// DueSettingsStore is the subset of store.Store the scheduler needs.
type DueSettingsStore interface {
	ListDueDiscoverySettings(ctx context.Context, now int64) ([]model.DiscoverySettings, error)
	PersistDiscoverySettings(ctx context.Context, d model.DiscoverySettings) error
}

// NewScheduler returns a Scheduler with the default polling interval.
func NewScheduler(store DueSettingsStore, tasks taskqueue.Queue, election coordinator.Election, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("discovery-scheduler")
	}
	return &Scheduler{Store: store, Tasks: tasks, Election: election, Log: log, Interval: DefaultInterval}
}

func (s *Scheduler) Name() string { return "discovery-scheduler" }

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

	s.Log.Info("discovery scheduler started")
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

	s.Log.Info("discovery scheduler stopped")
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
	due, err := s.Store.ListDueDiscoverySettings(ctx, now.Unix())
	if err != nil {
		s.Log.WithError(err).Warn("discovery scheduler: list due settings failed")
		return
	}

	for _, d := range due {
		if err := s.scheduleOne(ctx, d, now); err != nil {
			s.Log.WithError(err).
				WithField("ns_id", d.NsID).
				WithField("name", d.Name).
				Warn("discovery scheduler: schedule failed")
		}
	}
}

// scheduleOne submits the task then advances next_run, so a submit failure
// leaves the record due for retry on the next tick instead of silently
// skipping a cycle.
func (s *Scheduler) scheduleOne(ctx context.Context, d model.DiscoverySettings, now time.Time) error {
	s.Log.WithField("ns_id", d.NsID).WithField("name", d.Name).Debug("scheduling pending discovery")

	payload, err := encodeRequest(Request{NsID: d.NsID, Name: d.Name})
	if err != nil {
		return err
	}
	if err := s.Tasks.Submit(ctx, taskqueue.Submission{
		Queue:   taskqueue.QueueDiscoverPlatform,
		Payload: payload,
	}); err != nil {
		return err
	}

	d.NextRun = now.Add(d.Interval)
	return s.Store.PersistDiscoverySettings(ctx, d)
}
