package model

import "time"

// NamespaceStatus is the lifecycle status of a Namespace (spec.md §3).
type NamespaceStatus string

const (
	NamespaceActive   NamespaceStatus = "Active"
	NamespaceInactive NamespaceStatus = "Inactive"
	NamespaceObserved NamespaceStatus = "Observed"
	NamespaceDeleting NamespaceStatus = "Deleting"
	NamespaceDeleted  NamespaceStatus = "Deleted"
)

// CanTransitionTo enforces the namespace lifecycle invariants: Deleted is
// terminal, and Deleting may only advance to Deleted (never sideways back
// to Active/Inactive/Observed).
func (s NamespaceStatus) CanTransitionTo(next NamespaceStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case NamespaceDeleted:
		return false
	case NamespaceDeleting:
		return next == NamespaceDeleted
	default:
		return true
	}
}

// TransportConfig optionally configures HTTPS transport for a namespace's
// agents/platforms.
type TransportConfig struct {
	HTTPS    bool   `json:"https,omitempty"`
	CABundle string `json:"ca_bundle,omitempty"`
}

// Namespace is a top-level scoping unit owning clusters and platforms.
type Namespace struct {
	ID        string           `json:"id"`
	Status    NamespaceStatus  `json:"status"`
	Transport *TransportConfig `json:"transport,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (n Namespace) Key() NamespaceKey { return NamespaceKey{NsID: n.ID} }
