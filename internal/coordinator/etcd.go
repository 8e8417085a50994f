package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/pkg/metrics"
)

const (
	electionPrefix = "/replicore/coordinator/election/"
	lockPrefix     = "/replicore/coordinator/lock/"
)

// EtcdCoordinator is a Coordinator backed by an etcd session, using
// go.etcd.io/etcd/client/v3/concurrency for both elections (campaign/
// resign on a single key prefix) and non-blocking locks (mutex TryLock).
type EtcdCoordinator struct {
	client  *clientv3.Client
	session *concurrency.Session
	nodeID  string
	ttl     time.Duration
}

var _ Coordinator = (*EtcdCoordinator)(nil)

// NewEtcdCoordinator opens a session against client with the given TTL
// (seconds); session loss after TTL elapses without a heartbeat is what
// makes held locks and elections reclaimable by other processes.
func NewEtcdCoordinator(client *clientv3.Client, nodeID string, ttlSeconds int) (*EtcdCoordinator, error) {
	session, err := concurrency.NewSession(client, concurrency.WithTTL(ttlSeconds))
	if err != nil {
		return nil, apperr.Infrastructure(err, "opening coordinator session")
	}
	return &EtcdCoordinator{
		client:  client,
		session: session,
		nodeID:  nodeID,
		ttl:     time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (c *EtcdCoordinator) NodeID() string { return c.nodeID }

func (c *EtcdCoordinator) HealthCheck(ctx context.Context) error {
	select {
	case <-c.session.Done():
		return apperr.Infrastructure(fmt.Errorf("coordinator session expired"), "coordinator health check")
	default:
	}
	_, err := c.client.Get(ctx, "health")
	if err != nil {
		return apperr.Infrastructure(err, "coordinator health check")
	}
	return nil
}

func (c *EtcdCoordinator) Close() error {
	return c.session.Close()
}

func (c *EtcdCoordinator) Election(name string) Election {
	return &etcdElection{
		coord:    c,
		election: concurrency.NewElection(c.session, electionPrefix+name),
		name:     name,
	}
}

func (c *EtcdCoordinator) NonBlockingLock(name string) Lock {
	return &etcdLock{
		coord: c,
		mutex: concurrency.NewMutex(c.session, lockPrefix+name),
		name:  name,
	}
}

func (c *EtcdCoordinator) Admin() Admin {
	return &etcdAdmin{client: c.client}
}

// etcdElection runs Campaign in a background goroutine and tracks the
// resulting Status atomically, so Watch().IsPrimary() is a lock-free read.
type etcdElection struct {
	coord    *EtcdCoordinator
	election *concurrency.Election
	name     string

	mu       sync.Mutex
	status   Status
	isPrimary atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ Election = (*etcdElection)(nil)

func (e *etcdElection) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.status = Status{State: InProgress}
	e.mu.Unlock()

	go e.campaign(runCtx)
	return nil
}

func (e *etcdElection) campaign(ctx context.Context) {
	defer close(e.done)

	if _, err := e.election.Leader(ctx); err == nil {
		e.setStatus(Status{State: Secondary})
	}
	if err := e.election.Campaign(ctx, e.coord.nodeID); err != nil {
		e.setStatus(Status{State: Terminated, Reason: err.Error()})
		return
	}
	e.setStatus(Status{State: Primary})

	select {
	case <-ctx.Done():
		e.setStatus(Status{State: Terminated, Reason: "stepped down"})
	case <-e.coord.session.Done():
		e.setStatus(Status{State: Terminated, Reason: "coordinator session lost"})
	}
}

func (e *etcdElection) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
	e.isPrimary.Store(s.State == Primary)
	metrics.RecordElectionPrimary(e.name, s.State == Primary)
}

func (e *etcdElection) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *etcdElection) StepDown(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	wasPrimary := e.status.State == Primary
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	if wasPrimary {
		if err := e.election.Resign(ctx); err != nil {
			return apperr.Infrastructure(err, "resigning election %s", e.name)
		}
	}
	cancel()
	return nil
}

func (e *etcdElection) Watch() Watch {
	return &etcdWatch{primary: &e.isPrimary}
}

func (e *etcdElection) Close() error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

type etcdWatch struct {
	primary *atomic.Bool
}

func (w *etcdWatch) IsPrimary() bool { return w.primary.Load() }

// etcdLock wraps a concurrency.Mutex, using its non-blocking TryLock for
// Acquire and the mutex's own key existence for Check.
type etcdLock struct {
	coord *EtcdCoordinator
	mutex *concurrency.Mutex
	name  string
}

var _ Lock = (*etcdLock)(nil)

func (l *etcdLock) Name() string { return l.name }

func (l *etcdLock) Acquire(ctx context.Context) error {
	err := l.mutex.TryLock(ctx)
	if err != nil {
		if err == concurrency.ErrLocked {
			return apperr.ErrAlreadyHeld
		}
		return apperr.Infrastructure(err, "acquiring lock %s", l.name)
	}
	metrics.RecordLockHeld(l.name, true)
	return nil
}

func (l *etcdLock) Check(ctx context.Context) (bool, error) {
	select {
	case <-l.coord.session.Done():
		return false, nil
	default:
	}
	if l.mutex.Key() == "" {
		return false, nil
	}
	resp, err := l.coord.client.Get(ctx, l.mutex.Key())
	if err != nil {
		return false, apperr.Infrastructure(err, "checking lock %s", l.name)
	}
	return len(resp.Kvs) == 1, nil
}

func (l *etcdLock) Release(ctx context.Context) error {
	if l.mutex.Key() == "" {
		return nil
	}
	if err := l.mutex.Unlock(ctx); err != nil {
		return apperr.Infrastructure(err, "releasing lock %s", l.name)
	}
	metrics.RecordLockHeld(l.name, false)
	return nil
}

// etcdAdmin lists and force-releases locks directly via the etcd KV API,
// since concurrency.Mutex exposes no cross-process enumeration.
type etcdAdmin struct {
	client *clientv3.Client
}

var _ Admin = (*etcdAdmin)(nil)

func (a *etcdAdmin) ListLocks(ctx context.Context) ([]HeldLock, error) {
	resp, err := a.client.Get(ctx, lockPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, apperr.Infrastructure(err, "listing held locks")
	}
	locks := make([]HeldLock, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		name := string(kv.Key)[len(lockPrefix):]
		owner := string(kv.Value)
		if idx := lastSlash(name); idx >= 0 {
			if owner == "" {
				owner = name[idx+1:]
			}
			name = name[:idx]
		}
		locks = append(locks, HeldLock{Name: name, Owner: owner})
	}
	return locks, nil
}

func (a *etcdAdmin) ForceRelease(ctx context.Context, name string) error {
	resp, err := a.client.Delete(ctx, lockPrefix+name, clientv3.WithPrefix())
	if err != nil {
		return apperr.Infrastructure(err, "force-releasing lock %s", name)
	}
	if resp.Deleted == 0 {
		return apperr.NotFound("LockNotHeld", "lock %q is not currently held", name)
	}
	return nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}
