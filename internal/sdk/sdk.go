// Package sdk is the single supported way request handlers, converge steps,
// and orchestrator-action handlers mutate action and cluster-spec records.
// Grounded on original_source core/sdk/src/oaction.rs: every mutating method
// is a paired emit-then-persist call (spec.md §7 "Event-then-persist is the
// canonical write order"), generalized from OAction-only to also cover
// NAction and ClusterSpec/Namespace/Platform apply flows per spec.md §9's
// design note ("a single SDK facade... the facade is the only supported way
// to mutate action records from request handlers").
package sdk

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/replicante-io/replicore/internal/apperr"
	"github.com/replicante-io/replicore/internal/eventstream"
	"github.com/replicante-io/replicore/internal/model"
	"github.com/replicante-io/replicore/internal/store"
)

// Clock is injected so tests can control CreatedAt/CreatedTime stamps.
type Clock func() time.Time

// SDK is the process-wide facade wrapping the store and event stream with
// the paired-write contract. It holds no other state and is cheap to clone
// by value (Store and Events are already process-wide handles, spec.md §5).
type SDK struct {
	Store  store.Store
	Events eventstream.Stream
	Now    Clock
}

// New returns an SDK bound to the given store and event stream. now
// defaults to time.Now when nil.
func New(st store.Store, events eventstream.Stream, now Clock) *SDK {
	if now == nil {
		now = time.Now
	}
	return &SDK{Store: st, Events: events, Now: now}
}

func (s *SDK) emit(ctx context.Context, streamKey, code string, payload map[string]any) error {
	return s.EmitChange(ctx, streamKey, code, payload)
}

// EmitChange appends a change event, stamped with the SDK's clock. Exported
// so the action engines (internal/naction, internal/oaction) and the
// orchestrate task can emit events outside of the create/approve/cancel
// helpers below while still going through the one clock/ack-level policy.
func (s *SDK) EmitChange(ctx context.Context, streamKey, code string, payload map[string]any) error {
	event := model.Event{
		Stream:    model.StreamChange,
		StreamKey: streamKey,
		Code:      code,
		Time:      s.Now(),
		Payload:   payload,
	}
	return s.Events.Emit(ctx, event, model.AckAll)
}

// --- Namespace ---

// ApplyNamespace upserts a Namespace, enforcing the status-transition
// invariants of spec.md §3 before emitting APPLY_NAMESPACE and persisting.
func (s *SDK) ApplyNamespace(ctx context.Context, ns model.Namespace) error {
	existing, err := s.Store.LookupNamespace(ctx, ns.ID)
	if err != nil {
		return apperr.Infrastructure(err, "lookup namespace %q", ns.ID)
	}
	now := s.Now()
	if existing == nil {
		ns.CreatedAt = now
	} else {
		if !existing.Status.CanTransitionTo(ns.Status) {
			return apperr.Precondition("NamespaceTransitionInvalid",
				"namespace %q cannot transition from %s to %s", ns.ID, existing.Status, ns.Status)
		}
		ns.CreatedAt = existing.CreatedAt
	}
	ns.UpdatedAt = now

	if err := s.emit(ctx, ns.ID, model.CodeApplyNamespace, map[string]any{"namespace": ns}); err != nil {
		return apperr.Infrastructure(err, "emit APPLY_NAMESPACE")
	}
	if err := s.Store.PersistNamespace(ctx, ns); err != nil {
		return apperr.Infrastructure(err, "persist namespace %q", ns.ID)
	}
	return nil
}

// DeleteNamespace requests deletion by transitioning to Deleting (spec.md
// §3: "deleted by transitioning to Deleting then Deleted").
func (s *SDK) DeleteNamespace(ctx context.Context, id string) error {
	existing, err := s.Store.LookupNamespace(ctx, id)
	if err != nil {
		return apperr.Infrastructure(err, "lookup namespace %q", id)
	}
	if existing == nil {
		return apperr.NotFound("NamespaceNotFound", "namespace %q not found", id)
	}
	ns := *existing
	ns.Status = model.NamespaceDeleting
	return s.ApplyNamespace(ctx, ns)
}

// --- Platform ---

// ApplyPlatform upserts a Platform record.
func (s *SDK) ApplyPlatform(ctx context.Context, p model.Platform) error {
	now := s.Now()
	existing, err := s.Store.LookupPlatform(ctx, model.NamespaceKey{NsID: p.NsID}, p.Name)
	if err != nil {
		return apperr.Infrastructure(err, "lookup platform %s/%s", p.NsID, p.Name)
	}
	if existing != nil {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	if err := s.emit(ctx, p.NsID, model.CodeApplyPlatform, map[string]any{"platform": p}); err != nil {
		return apperr.Infrastructure(err, "emit APPLY_PLATFORM")
	}
	if err := s.Store.PersistPlatform(ctx, p); err != nil {
		return apperr.Infrastructure(err, "persist platform %s/%s", p.NsID, p.Name)
	}
	return nil
}

// --- DiscoverySettings ---

// ApplyDiscoverySettings upserts a DiscoverySettings record.
func (s *SDK) ApplyDiscoverySettings(ctx context.Context, d model.DiscoverySettings) error {
	if err := s.emit(ctx, d.NsID, model.CodeApplyDiscoverySettings, map[string]any{"discovery_settings": d}); err != nil {
		return apperr.Infrastructure(err, "emit APPLY_DISCOVERY_SETTINGS")
	}
	if err := s.Store.PersistDiscoverySettings(ctx, d); err != nil {
		return apperr.Infrastructure(err, "persist discovery settings %s/%s", d.NsID, d.Name)
	}
	return nil
}

// --- ClusterSpec ---

// ApplyClusterSpec upserts a ClusterSpec, validating the declaration
// invariant (platform required when definition is set, spec.md §3) before
// emitting APPLY_CLUSTER_SPEC and persisting.
func (s *SDK) ApplyClusterSpec(ctx context.Context, spec model.ClusterSpec) error {
	if err := spec.Validate(); err != nil {
		return apperr.Validation(err.Error())
	}
	now := s.Now()
	existing, err := s.Store.LookupClusterSpec(ctx, spec.Key())
	if err != nil {
		return apperr.Infrastructure(err, "lookup clusterspec %s", spec.Key())
	}
	if existing != nil {
		spec.CreatedAt = existing.CreatedAt
		if spec.NextOrchestrate.IsZero() {
			spec.NextOrchestrate = existing.NextOrchestrate
		}
	} else {
		spec.CreatedAt = now
		if spec.NextOrchestrate.IsZero() {
			spec.NextOrchestrate = now
		}
	}
	spec.UpdatedAt = now

	// spec.md §3 invariant: "Every ClusterSpec mutation has a matching
	// APPLY_CLUSTER_SPEC event whose time <= store write time" -- emit
	// first, using the same `now` that is about to be persisted.
	if err := s.emit(ctx, spec.ClusterID, model.CodeApplyClusterSpec, map[string]any{"cluster_spec": spec}); err != nil {
		return apperr.Infrastructure(err, "emit APPLY_CLUSTER_SPEC")
	}
	if err := s.Store.PersistClusterSpec(ctx, spec); err != nil {
		return apperr.Infrastructure(err, "persist clusterspec %s", spec.Key())
	}
	return nil
}

// --- NAction ---

// NActionSpec is the user-facing request to create a node action.
type NActionSpec struct {
	NsID      string
	ClusterID string
	NodeID    string
	ActionID  *uuid.UUID
	Kind      string
	Args      map[string]any
	Metadata  map[string]any
	Approved  bool
}

// NActionCreate creates a new NAction record, defaulting to PendingApprove
// unless Approved is set (in which case it starts at PendingSchedule).
func (s *SDK) NActionCreate(ctx context.Context, spec NActionSpec) (model.ActionKey, error) {
	actionID := uuid.New()
	if spec.ActionID != nil {
		actionID = *spec.ActionID
		key := model.ActionKey{NsID: spec.NsID, ClusterID: spec.ClusterID, ActionID: actionID.String()}
		existing, err := s.Store.LookupNAction(ctx, key)
		if err != nil {
			return model.ActionKey{}, apperr.Infrastructure(err, "lookup naction %s", key)
		}
		if existing != nil {
			return model.ActionKey{}, apperr.Precondition("NActionExists", "naction %s already exists", key)
		}
	}

	phase := model.NActionPendingApprove
	if spec.Approved {
		phase = model.NActionPendingSchedule
	}
	action := model.NAction{
		NsID:        spec.NsID,
		ClusterID:   spec.ClusterID,
		NodeID:      spec.NodeID,
		ActionID:    actionID.String(),
		Kind:        spec.Kind,
		Args:        spec.Args,
		Metadata:    spec.Metadata,
		CreatedTime: s.Now(),
		State:       model.NActionState{Phase: phase},
	}

	if err := s.emit(ctx, action.ClusterID, model.CodeOActionCreate, map[string]any{"naction": action}); err != nil {
		return model.ActionKey{}, apperr.Infrastructure(err, "emit naction create event")
	}
	if err := s.Store.PersistNAction(ctx, action); err != nil {
		return model.ActionKey{}, apperr.Infrastructure(err, "persist naction %s", action.Key())
	}
	return action.Key(), nil
}

// NActionApprove moves a PendingApprove NAction to PendingSchedule (spec.md
// §4.6 #1).
func (s *SDK) NActionApprove(ctx context.Context, action model.NAction) error {
	if action.State.Phase != model.NActionPendingApprove {
		return apperr.Precondition("NActionNotPendingApprove",
			"naction %s is not pending approval (phase=%s)", action.Key(), action.State.Phase)
	}
	action.State.Phase = model.NActionPendingSchedule
	if err := s.emit(ctx, action.ClusterID, model.CodeNActionApprove, map[string]any{"naction": action}); err != nil {
		return apperr.Infrastructure(err, "emit NACTION_APPROVE")
	}
	if err := s.Store.PersistNAction(ctx, action); err != nil {
		return apperr.Infrastructure(err, "persist naction %s", action.Key())
	}
	return nil
}

// NActionReject cancels a PendingApprove NAction (spec.md §4.6 #1).
func (s *SDK) NActionReject(ctx context.Context, action model.NAction) error {
	action.State.Phase = model.NActionCancelled
	now := s.Now()
	action.FinishedTime = &now
	if err := s.emit(ctx, action.ClusterID, model.CodeNActionFinished, map[string]any{"naction": action}); err != nil {
		return apperr.Infrastructure(err, "emit naction reject event")
	}
	if err := s.Store.PersistNAction(ctx, action); err != nil {
		return apperr.Infrastructure(err, "persist naction %s", action.Key())
	}
	return nil
}

// --- OAction ---

// OActionSpec is the user-facing request to create a cluster-wide action.
type OActionSpec struct {
	NsID      string
	ClusterID string
	ActionID  *uuid.UUID
	Kind      string
	Args      map[string]any
	Metadata  map[string]any
	Timeout   time.Duration
	Approved  bool
}

// OActionCreate creates a new OAction record, grounded on original_source
// core/sdk/src/oaction.rs's oaction_create: reject a caller-supplied
// action_id that already exists; the action starts PendingApprove unless
// spec.Approved is set, in which case it starts PendingSchedule.
func (s *SDK) OActionCreate(ctx context.Context, spec OActionSpec) (model.ActionKey, error) {
	actionID := uuid.New()
	if spec.ActionID != nil {
		actionID = *spec.ActionID
		key := model.ActionKey{NsID: spec.NsID, ClusterID: spec.ClusterID, ActionID: actionID.String()}
		existing, err := s.Store.LookupOAction(ctx, key)
		if err != nil {
			return model.ActionKey{}, apperr.Infrastructure(err, "lookup oaction %s", key)
		}
		if existing != nil {
			return model.ActionKey{}, apperr.Precondition("OActionExists", "oaction %s already exists", key)
		}
	}

	state := model.OActionPendingApprove
	if spec.Approved {
		state = model.OActionPendingSchedule
	}
	action := model.OAction{
		NsID:      spec.NsID,
		ClusterID: spec.ClusterID,
		ActionID:  actionID.String(),
		Kind:      spec.Kind,
		Args:      spec.Args,
		Metadata:  spec.Metadata,
		CreatedTS: s.Now(),
		Timeout:   spec.Timeout,
		State:     state,
	}

	if err := s.emit(ctx, action.ClusterID, model.CodeOActionCreate, map[string]any{"oaction": action}); err != nil {
		return model.ActionKey{}, apperr.Infrastructure(err, "emit OACTION_CREATE")
	}
	if err := s.Store.PersistOAction(ctx, action); err != nil {
		return model.ActionKey{}, apperr.Infrastructure(err, "persist oaction %s", action.Key())
	}
	return action.Key(), nil
}

// OActionApprove moves a PendingApprove OAction to PendingSchedule
// (original_source core/sdk/src/oaction.rs oaction_approve).
func (s *SDK) OActionApprove(ctx context.Context, action model.OAction) error {
	if action.State != model.OActionPendingApprove {
		return apperr.Precondition("OActionNotPendingApprove",
			"oaction %s is not pending approval (state=%s)", action.Key(), action.State)
	}
	action.State = model.OActionPendingSchedule
	if err := s.emit(ctx, action.ClusterID, model.CodeOActionApprove, map[string]any{"oaction": action}); err != nil {
		return apperr.Infrastructure(err, "emit OACTION_APPROVE")
	}
	if err := s.Store.PersistOAction(ctx, action); err != nil {
		return apperr.Infrastructure(err, "persist oaction %s", action.Key())
	}
	return nil
}

// OActionCancel finishes an OAction as Cancelled regardless of its current
// non-terminal state (original_source oaction_cancel/oaction_reject).
func (s *SDK) OActionCancel(ctx context.Context, action model.OAction) error {
	if action.State.IsTerminal() {
		return apperr.Precondition("OActionFinished", "oaction %s is already finished", action.Key())
	}
	action.State = model.OActionCancelled
	now := s.Now()
	action.FinishedTS = &now
	if err := s.emit(ctx, action.ClusterID, model.CodeOActionCancel, map[string]any{"oaction": action}); err != nil {
		return apperr.Infrastructure(err, "emit OACTION_CANCEL")
	}
	if err := s.Store.PersistOAction(ctx, action); err != nil {
		return apperr.Infrastructure(err, "persist oaction %s", action.Key())
	}
	return nil
}
