// Package worker runs taskqueue subscriptions as background system.Service
// components, following the same Start/Stop/ticker-goroutine shape as
// _examples/r3e-network-service_layer's automation scheduler, but driven by
// Subscription.Next blocking receives instead of a ticker.
package worker

import (
	"context"
	"sync"

	"github.com/replicante-io/replicore/internal/app/system"
	"github.com/replicante-io/replicore/internal/taskqueue"
	"github.com/replicante-io/replicore/pkg/logger"
)

var _ system.Service = (*Worker)(nil)

// Handler processes one task's payload. A returned error fails the task
// (triggering taskqueue's retry/dead-letter policy); nil acknowledges it.
type Handler func(ctx context.Context, payload []byte) error

// Worker subscribes to a single queue and dispatches each delivered task to
// Handler, running up to Concurrency deliveries at once.
type Worker struct {
	Queue       string
	Tasks       taskqueue.Queue
	Handle      Handler
	Concurrency int
	Log         *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New returns a Worker bound to queue, dispatching through handle.
func New(queue string, tasks taskqueue.Queue, handle Handler, log *logger.Logger) *Worker {
	if log == nil {
		log = logger.NewDefault("worker-" + queue)
	}
	return &Worker{Queue: queue, Tasks: tasks, Handle: handle, Concurrency: 4, Log: log}
}

func (w *Worker) Name() string { return "worker-" + w.Queue }

func (w *Worker) concurrency() int {
	if w.Concurrency <= 0 {
		return 1
	}
	return w.Concurrency
}

// Start opens Concurrency subscriptions to Queue and begins dispatching.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.mu.Unlock()

	for i := 0; i < w.concurrency(); i++ {
		sub, err := w.Tasks.Subscribe(runCtx, w.Queue)
		if err != nil {
			cancel()
			return err
		}
		w.wg.Add(1)
		go w.loop(runCtx, sub)
	}

	w.Log.WithField("queue", w.Queue).Info("worker started")
	return nil
}

func (w *Worker) loop(ctx context.Context, sub taskqueue.Subscription) {
	defer w.wg.Done()
	defer sub.Close()

	for {
		task, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Log.WithError(err).WithField("queue", w.Queue).Warn("worker: receive failed")
			continue
		}

		if err := w.Handle(ctx, task.Payload); err != nil {
			w.Log.WithError(err).
				WithField("queue", w.Queue).
				WithField("task_id", task.ID).
				Warn("worker: task failed")
			if failErr := sub.Fail(ctx, task, err); failErr != nil {
				w.Log.WithError(failErr).Warn("worker: fail task failed")
			}
			continue
		}
		if err := sub.Done(ctx, task); err != nil {
			w.Log.WithError(err).WithField("task_id", task.ID).Warn("worker: ack task failed")
		}
	}
}

// Stop cancels every subscription's blocking receive and waits for the
// dispatch loops to exit.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	w.running = false
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.Log.WithField("queue", w.Queue).Info("worker stopped")
	return nil
}
