// Package oaction implements the cluster-wide orchestrator-action engine of
// spec.md §4.7: a kind registry of handlers with per-kind timeout and
// scheduling mode, and the scheduling-policy engine the orchestrate task
// runs each cycle. Grounded on original_source legacy/core/orchestrator_action/http
// (the registry-entry/handler split and the HTTP generic kind) and
// core/interface/orchestrator_action/src/traits.rs (the invoke contract),
// adapted to Go's capability-based dispatch per spec.md §9's design note.
package oaction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/replicante-io/replicore/internal/model"
)

// ChangeField distinguishes "leave as-is" from "set to this value" and
// "clear" for the optional Payload/Error fields of OActionChanges (spec.md
// §4.7: "payload?: Update|Remove|Unchanged").
type ChangeField int

const (
	Unchanged ChangeField = iota
	Update
	Remove
)

// OActionChanges is a handler's requested mutation to an OAction's state,
// payload, and error (spec.md §4.7 "Handler contract").
type OActionChanges struct {
	State        model.OActionState `json:"state"`
	Payload      map[string]any     `json:"state_payload,omitempty"`
	PayloadField ChangeField        `json:"-"`
	Error        *model.ActionError `json:"state_payload_error,omitempty"`
	ErrorField   ChangeField        `json:"-"`
}

// Handler implements a single OAction kind. Implementations must be
// idempotent with respect to (action_id, state): the orchestrate task may
// invoke the same logical step multiple times after a crash (spec.md §4.7).
type Handler interface {
	Invoke(ctx context.Context, action model.OAction) (OActionChanges, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, action model.OAction) (OActionChanges, error)

func (f HandlerFunc) Invoke(ctx context.Context, action model.OAction) (OActionChanges, error) {
	return f(ctx, action)
}

// Entry is a registered kind's handler plus its scheduling metadata.
type Entry struct {
	Kind         string
	Handler      Handler
	Timeout      time.Duration
	ScheduleMode model.ScheduleMode
	Summary      string
}

// Registry is a kind -> Entry mapping built once at startup and shared by
// cheap clone (spec.md §9: "model as a mapping kind -> (metadata, handler)
// built once at startup").
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register binds entry.Kind to entry. Re-registering the same kind
// overwrites the previous entry.
func (r *Registry) Register(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Kind] = entry
}

// Lookup returns the entry for kind, if registered.
func (r *Registry) Lookup(kind string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	return e, ok
}

// ErrUnknownKind is returned (wrapped with the offending kind) when an
// OAction names a kind not present in the registry (spec.md §8: "An OAction
// kind not in the registry fails the action with an 'unknown kind' error
// and marks it Failed").
func ErrUnknownKind(kind string) error {
	return fmt.Errorf("oaction: unknown kind %q", kind)
}
