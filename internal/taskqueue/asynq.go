package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/pkg/metrics"
)

// envelope is the actual asynq task payload: the caller's opaque payload
// plus the submission metadata asynq itself has no field for (run_as,
// trace, and the per-task retry delay consumed by retryDelay below).
type envelope struct {
	Payload      []byte        `json:"payload"`
	Trace        string        `json:"trace,omitempty"`
	RunAs        string        `json:"run_as,omitempty"`
	RetryTimeout time.Duration `json:"retry_timeout"`
}

// AsynqQueue is a Queue backed by hibiken/asynq: submit uses asynq.Client,
// each Subscribe spins up a dedicated asynq.Server restricted to tasks of
// that queue's type name. Exhausting retries lets asynq archive the task
// into its own dead-letter set rather than reimplementing one.
type AsynqQueue struct {
	redisOpt asynq.RedisConnOpt
	client   *asynq.Client
	inspector *asynq.Inspector

	mu   sync.Mutex
	subs []*asynqSubscription
}

var _ Queue = (*AsynqQueue)(nil)

// NewAsynqQueue connects to the Redis instance described by redisOpt.
func NewAsynqQueue(redisOpt asynq.RedisConnOpt) *AsynqQueue {
	return &AsynqQueue{
		redisOpt:  redisOpt,
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
	}
}

func (q *AsynqQueue) Submit(ctx context.Context, sub Submission) error {
	env := envelope{Payload: sub.Payload, Trace: sub.Trace, RunAs: sub.RunAs, RetryTimeout: sub.RetryTimeout}
	raw, err := json.Marshal(env)
	if err != nil {
		return apperr.Infrastructure(err, "encoding task envelope for queue %s", sub.Queue)
	}

	task := asynq.NewTask(sub.Queue, raw)
	opts := []asynq.Option{asynq.MaxRetry(sub.Retries), asynq.Queue(sub.Queue)}
	if sub.RetryTimeout > 0 {
		opts = append(opts, asynq.Timeout(24*time.Hour))
	}
	_, err = q.client.EnqueueContext(ctx, task, opts...)
	metrics.RecordTaskDispatched(sub.Queue, err)
	if err != nil {
		return apperr.Infrastructure(err, "submitting task to queue %s", sub.Queue)
	}
	return nil
}

func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	var env envelope
	if jsonErr := json.Unmarshal(task.Payload(), &env); jsonErr == nil && env.RetryTimeout > 0 {
		return env.RetryTimeout
	}
	return asynq.DefaultRetryDelayFunc(n, err, task)
}

func (q *AsynqQueue) Subscribe(ctx context.Context, queueName string) (Subscription, error) {
	server := asynq.NewServer(q.redisOpt, asynq.Config{
		Concurrency:    1,
		RetryDelayFunc: retryDelay,
		Queues:         map[string]int{queueName: 1},
	})

	sub := &asynqSubscription{
		queueName: queueName,
		server:    server,
		taskCh:    make(chan *Task),
		pending:   make(map[string]chan error),
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(queueName, sub.handle)

	if err := server.Start(mux); err != nil {
		return nil, apperr.Infrastructure(err, "starting worker for queue %s", queueName)
	}

	q.mu.Lock()
	q.subs = append(q.subs, sub)
	q.mu.Unlock()

	return sub, nil
}

func (q *AsynqQueue) Close() error {
	q.client.Close()
	q.inspector.Close()

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.subs {
		_ = s.Close()
	}
	return nil
}

// asynqSubscription bridges asynq's push-based handler model onto the
// pull-based Next/Done/Fail vocabulary: the handler hands the decoded task
// to Next over a channel and blocks until Done or Fail resolves it, then
// returns that resolution as its own result to asynq (nil acks, non-nil
// triggers asynq's own retry/archive bookkeeping).
type asynqSubscription struct {
	queueName string
	server    *asynq.Server
	taskCh    chan *Task

	mu      sync.Mutex
	pending map[string]chan error
}

var _ Subscription = (*asynqSubscription)(nil)

func (s *asynqSubscription) handle(ctx context.Context, at *asynq.Task) error {
	var env envelope
	if err := json.Unmarshal(at.Payload(), &env); err != nil {
		return apperr.Infrastructure(err, "decoding task envelope for queue %s", s.queueName)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	retried, _ := asynq.GetRetryCount(ctx)

	t := &Task{
		ID:      taskID,
		Queue:   s.queueName,
		Payload: env.Payload,
		Trace:   env.Trace,
		RunAs:   env.RunAs,
		Retries: retried,
	}

	result := make(chan error, 1)
	s.mu.Lock()
	s.pending[t.ID] = result
	s.mu.Unlock()

	select {
	case s.taskCh <- t:
	case <-ctx.Done():
		s.clearPending(t.ID)
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		s.clearPending(t.ID)
		return ctx.Err()
	}
}

func (s *asynqSubscription) clearPending(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *asynqSubscription) Next(ctx context.Context) (*Task, error) {
	select {
	case t := <-s.taskCh:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *asynqSubscription) resolve(task *Task, err error) error {
	s.mu.Lock()
	result, ok := s.pending[task.ID]
	delete(s.pending, task.ID)
	s.mu.Unlock()
	if !ok {
		return apperr.Precondition("TaskNotPending", "task %s on queue %s is not awaiting resolution", task.ID, s.queueName)
	}
	result <- err
	return nil
}

func (s *asynqSubscription) Done(ctx context.Context, task *Task) error {
	return s.resolve(task, nil)
}

func (s *asynqSubscription) Fail(ctx context.Context, task *Task, cause error) error {
	return s.resolve(task, cause)
}

func (s *asynqSubscription) Close() error {
	s.server.Shutdown()
	return nil
}
