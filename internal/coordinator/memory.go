package coordinator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/replicante-io/replicore/internal/apperr"
)

// MemCoordinator is an in-process Coordinator backed by a shared map, for
// tests and single-process deployments. Elections and locks created from
// distinct MemCoordinator instances pointing at the same *registry behave
// as if they shared a session, so tests can simulate multiple processes.
type MemCoordinator struct {
	nodeID   string
	registry *memRegistry
}

var _ Coordinator = (*MemCoordinator)(nil)

type memRegistry struct {
	mu        sync.Mutex
	elections map[string]*memElectionState
	locks     map[string]string // name -> owner nodeID
}

type memElectionState struct {
	primary string // nodeID of the current primary, "" if none
}

// NewMemCoordinator returns a standalone coordinator with its own registry.
func NewMemCoordinator(nodeID string) *MemCoordinator {
	return &MemCoordinator{
		nodeID: nodeID,
		registry: &memRegistry{
			elections: make(map[string]*memElectionState),
			locks:     make(map[string]string),
		},
	}
}

// Fork returns a second coordinator handle sharing this one's registry, as
// if a second process connected to the same backend.
func (c *MemCoordinator) Fork(nodeID string) *MemCoordinator {
	return &MemCoordinator{nodeID: nodeID, registry: c.registry}
}

func (c *MemCoordinator) NodeID() string { return c.nodeID }

func (c *MemCoordinator) HealthCheck(ctx context.Context) error { return nil }

func (c *MemCoordinator) Close() error { return nil }

func (c *MemCoordinator) Election(name string) Election {
	return &memElection{coord: c, name: name}
}

func (c *MemCoordinator) NonBlockingLock(name string) Lock {
	return &memLock{coord: c, name: name}
}

func (c *MemCoordinator) Admin() Admin {
	return &memAdmin{coord: c}
}

type memElection struct {
	coord *MemCoordinator
	name  string

	mu        sync.Mutex
	status    Status
	isPrimary atomic.Bool
}

var _ Election = (*memElection)(nil)

func (e *memElection) Run(ctx context.Context) error {
	r := e.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.elections[e.name]
	if !ok {
		state = &memElectionState{}
		r.elections[e.name] = state
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if state.primary == "" {
		state.primary = e.coord.nodeID
		e.status = Status{State: Primary}
		e.isPrimary.Store(true)
	} else if state.primary == e.coord.nodeID {
		e.status = Status{State: Primary}
		e.isPrimary.Store(true)
	} else {
		e.status = Status{State: Secondary}
		e.isPrimary.Store(false)
	}
	return nil
}

func (e *memElection) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *memElection) StepDown(ctx context.Context) error {
	r := e.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if state, ok := r.elections[e.name]; ok && state.primary == e.coord.nodeID {
		state.primary = ""
	}
	e.status = Status{State: NotCandidate}
	e.isPrimary.Store(false)
	return nil
}

func (e *memElection) Watch() Watch {
	return &memWatch{primary: &e.isPrimary}
}

func (e *memElection) Close() error {
	return nil
}

type memWatch struct {
	primary *atomic.Bool
}

func (w *memWatch) IsPrimary() bool { return w.primary.Load() }

type memLock struct {
	coord *MemCoordinator
	name  string
}

var _ Lock = (*memLock)(nil)

func (l *memLock) Name() string { return l.name }

func (l *memLock) Acquire(ctx context.Context) error {
	r := l.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, held := r.locks[l.name]; held && owner != l.coord.nodeID {
		return apperr.ErrAlreadyHeld
	}
	r.locks[l.name] = l.coord.nodeID
	return nil
}

func (l *memLock) Check(ctx context.Context) (bool, error) {
	r := l.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[l.name] == l.coord.nodeID, nil
}

func (l *memLock) Release(ctx context.Context) error {
	r := l.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[l.name] == l.coord.nodeID {
		delete(r.locks, l.name)
	}
	return nil
}

type memAdmin struct {
	coord *MemCoordinator
}

var _ Admin = (*memAdmin)(nil)

func (a *memAdmin) ListLocks(ctx context.Context) ([]HeldLock, error) {
	r := a.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	locks := make([]HeldLock, 0, len(r.locks))
	for name, owner := range r.locks {
		locks = append(locks, HeldLock{Name: name, Owner: owner})
	}
	return locks, nil
}

func (a *memAdmin) ForceRelease(ctx context.Context, name string) error {
	r := a.coord.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.locks[name]; !held {
		return apperr.NotFound("LockNotHeld", "lock %q is not currently held", name)
	}
	delete(r.locks, name)
	return nil
}
