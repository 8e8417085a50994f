// Package taskqueue implements spec.md §4.3's durable, multi-queue work
// system: submit/subscribe/next/done with backend-enforced retry delay and
// a dead-letter collection once retries are exhausted.
package taskqueue

import (
	"context"
	"time"
)

// Queue names used by the core orchestration subsystem (spec.md §4.3).
const (
	QueueDiscoverPlatform  = "DiscoverPlatform"
	QueueOrchestrateCluster = "OrchestrateCluster"
)

// Submission is a single unit of work to enqueue.
type Submission struct {
	Queue        string
	Payload      []byte
	Trace        string
	Retries      int
	RetryTimeout time.Duration
	RunAs        string
}

// Task is a delivered unit of work; a receiver must call Subscription.Done once it
// has durably finished processing, or the task is redelivered after the
// backend's visibility timeout elapses.
type Task struct {
	ID      string
	Queue   string
	Payload []byte
	Trace   string
	RunAs   string
	Retries int
}

// Subscription is a worker's handle on one queue.
type Subscription interface {
	// Next blocks until a task is available on this subscription's queue,
	// or ctx is cancelled.
	Next(ctx context.Context) (*Task, error)

	// Done acknowledges successful processing of task, removing it from
	// the queue.
	Done(ctx context.Context, task *Task) error

	// Fail resubmits task with a decremented retry count after delay; once
	// retries reach zero the task moves to the queue's dead-letter
	// collection instead of being resubmitted.
	Fail(ctx context.Context, task *Task, cause error) error

	// Close stops this subscription, releasing backend resources.
	Close() error
}

// Queue is the process-wide handle used to submit work and to subscribe
// workers to a named queue (spec.md §5: process-wide singleton, internally
// thread-safe).
type Queue interface {
	// Submit enqueues sub, returning once the backend has durably accepted
	// it.
	Submit(ctx context.Context, sub Submission) error

	// Subscribe returns a worker subscription to queueName.
	Subscribe(ctx context.Context, queueName string) (Subscription, error)

	// Close releases the queue's backend resources.
	Close() error
}
