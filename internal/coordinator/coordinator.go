// Package coordinator implements spec.md §4.1: distributed named elections,
// non-blocking named locks, and session liveness, as a process-wide handle
// passed explicitly to every component that needs them.
package coordinator

import "context"

// State is the lifecycle state of an Election instance.
type State string

const (
	NotCandidate State = "NOT_CANDIDATE"
	InProgress   State = "IN_PROGRESS"
	Primary      State = "PRIMARY"
	Secondary    State = "SECONDARY"
	Terminated   State = "TERMINATED"
)

// Status is the current state of an Election, with a Reason populated only
// when State is Terminated (connection lost, session expired, ...).
type Status struct {
	State  State
	Reason string
}

// IsCandidate reports whether this instance is Primary or Secondary.
func (s Status) IsCandidate() bool {
	return s.State == Primary || s.State == Secondary
}

// IsPrimary reports whether this instance currently holds the primary role.
func (s Status) IsPrimary() bool {
	return s.State == Primary
}

// Watch is a cheap, repeatedly-pollable view of an Election's primary-ness,
// for hot paths that cannot afford Election.Status()'s synchronization.
type Watch interface {
	IsPrimary() bool
}

// Election is a single named leader election: any number of instances Run
// to become a candidate; exactly one becomes Primary at a time, the rest
// are Secondary until the Primary steps down or its session is lost.
type Election interface {
	// Run enters the election as a candidate. It returns once campaigning
	// has started; it does not block until Primary is reached.
	Run(ctx context.Context) error

	// Status returns the current election state.
	Status() Status

	// StepDown relinquishes the primary role, if held, and leaves the
	// election. A no-op if not currently a candidate.
	StepDown(ctx context.Context) error

	// Watch returns a cheap, concurrency-safe primary-ness view.
	Watch() Watch

	// Close releases the election's session resources without resigning
	// gracefully (equivalent to an ungraceful process exit).
	Close() error
}

// Lock is a non-blocking named lock: Acquire either succeeds immediately or
// fails with apperr.ErrAlreadyHeld. Check reports whether the caller still
// holds it (it may not, across a lost session).
type Lock interface {
	Name() string

	// Acquire attempts to take the lock without blocking. It returns
	// apperr.ErrAlreadyHeld if another process holds it.
	Acquire(ctx context.Context) error

	// Check reports whether this instance still holds the lock.
	Check(ctx context.Context) (bool, error)

	// Release gives up the lock. Idempotent: releasing a lock not held by
	// this instance is not an error.
	Release(ctx context.Context) error
}

// HeldLock describes a currently-held lock for the admin listing API.
type HeldLock struct {
	Name  string
	Owner string
}

// Admin enumerates and force-releases locks across all processes, for
// operational recovery from a stuck or crashed holder.
type Admin interface {
	ListLocks(ctx context.Context) ([]HeldLock, error)
	ForceRelease(ctx context.Context, name string) error
}

// Coordinator is the process-wide handle: cheaply-cloneable, internally
// thread-safe, creating Elections and Locks scoped to a single backend
// session whose liveness is reported by HealthCheck.
type Coordinator interface {
	// NodeID identifies this process to the coordinator backend.
	NodeID() string

	// Election returns a handle to the named election. Calling it twice
	// with the same name on the same Coordinator returns independent
	// candidacies sharing the coordinator's session.
	Election(name string) Election

	// NonBlockingLock returns a handle to the named lock.
	NonBlockingLock(name string) Lock

	// HealthCheck reports whether the underlying session is alive.
	HealthCheck(ctx context.Context) error

	// Admin returns the lock administration surface.
	Admin() Admin

	// Close releases the coordinator's session and all elections/locks
	// derived from it.
	Close() error
}
