package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/replicante-io/replicore/internal/apperr"
)

// MemQueue is an in-process Queue for tests: no visibility timeout or
// delayed retry scheduling, just a per-queue FIFO channel and a dead-letter
// slice once retries are exhausted.
type MemQueue struct {
	mu        sync.Mutex
	queues    map[string]chan *Task
	deadLetter map[string][]*Task
	nextID    atomic.Int64
	closed    bool
}

var _ Queue = (*MemQueue)(nil)

// NewMemQueue returns a ready-to-use in-memory Queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{
		queues:     make(map[string]chan *Task),
		deadLetter: make(map[string][]*Task),
	}
}

func (q *MemQueue) chanFor(name string) chan *Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.queues[name]
	if !ok {
		ch = make(chan *Task, 1024)
		q.queues[name] = ch
	}
	return ch
}

func (q *MemQueue) Submit(ctx context.Context, sub Submission) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return apperr.Infrastructure(fmt.Errorf("queue closed"), "submitting to %s", sub.Queue)
	}
	q.mu.Unlock()

	id := q.nextID.Add(1)
	t := &Task{
		ID:      fmt.Sprintf("mem-%d", id),
		Queue:   sub.Queue,
		Payload: sub.Payload,
		Trace:   sub.Trace,
		RunAs:   sub.RunAs,
		Retries: sub.Retries,
	}

	select {
	case q.chanFor(sub.Queue) <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemQueue) Subscribe(ctx context.Context, queueName string) (Subscription, error) {
	return &memSubscription{q: q, queueName: queueName}, nil
}

// DeadLetter returns the tasks that exhausted their retries on queueName,
// for assertions in tests.
func (q *MemQueue) DeadLetter(queueName string) []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Task(nil), q.deadLetter[queueName]...)
}

func (q *MemQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

type memSubscription struct {
	q         *MemQueue
	queueName string
}

var _ Subscription = (*memSubscription)(nil)

func (s *memSubscription) Next(ctx context.Context) (*Task, error) {
	select {
	case t := <-s.q.chanFor(s.queueName):
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *memSubscription) Done(ctx context.Context, task *Task) error {
	return nil
}

func (s *memSubscription) Fail(ctx context.Context, task *Task, cause error) error {
	task.Retries--
	if task.Retries <= 0 {
		s.q.mu.Lock()
		s.q.deadLetter[s.queueName] = append(s.q.deadLetter[s.queueName], task)
		s.q.mu.Unlock()
		return nil
	}

	go func() {
		time.Sleep(time.Millisecond)
		select {
		case s.q.chanFor(s.queueName) <- task:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (s *memSubscription) Close() error {
	return nil
}
