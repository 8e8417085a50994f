package model

import "time"

// NodeGroup is one declared group of nodes within a cluster definition
// (e.g. "a declarative node group list", spec.md §3).
type NodeGroup struct {
	Name      string            `json:"name"`
	Count     int               `json:"count"`
	Attrs     map[string]string `json:"attributes,omitempty"`
	StoreKind string            `json:"store_kind,omitempty"`
}

// ClusterDefinition is the declarative node group list that must match
// the owning cluster_id; requires a platform (enforced by ClusterSpec.Validate).
type ClusterDefinition struct {
	ClusterID string      `json:"cluster_id"`
	Groups    []NodeGroup `json:"groups"`
}

// Declaration is the desired-state portion of a ClusterSpec.
type Declaration struct {
	Active     bool               `json:"active"`
	Approval   string             `json:"approval"`
	Definition *ClusterDefinition `json:"definition,omitempty"`
	GraceUp    int                `json:"grace_up"`
}

// ClusterSpec declares how a cluster should be observed/managed.
type ClusterSpec struct {
	NsID        string      `json:"ns_id"`
	ClusterID   string      `json:"cluster_id"`
	Active      bool        `json:"active"`
	Interval    int         `json:"interval"` // seconds
	Platform    string      `json:"platform,omitempty"`
	Declaration Declaration `json:"declaration"`

	NextOrchestrate time.Time `json:"next_orchestrate"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (c ClusterSpec) Key() ClusterKey { return ClusterKey{NsID: c.NsID, ClusterID: c.ClusterID} }

// Validate enforces the §3 invariant: a definition requires a platform.
func (c ClusterSpec) Validate() error {
	if c.Declaration.Definition != nil && c.Platform == "" {
		return ErrPlatformRequired
	}
	if c.Declaration.Definition != nil && c.Declaration.Definition.ClusterID != c.ClusterID {
		return ErrDefinitionClusterMismatch
	}
	return nil
}

// DiscoveredNode is one node found by platform discovery.
type DiscoveredNode struct {
	NodeID       string `json:"node_id"`
	AgentAddress string `json:"agent_address"`
}

// ClusterDiscovery is the single latest discovery record for a cluster.
type ClusterDiscovery struct {
	NsID      string           `json:"ns_id"`
	ClusterID string           `json:"cluster_id"`
	Nodes     []DiscoveredNode `json:"nodes"`
	UpdatedAt time.Time        `json:"updated_at"`
}

func (d ClusterDiscovery) Key() ClusterKey { return ClusterKey{NsID: d.NsID, ClusterID: d.ClusterID} }
