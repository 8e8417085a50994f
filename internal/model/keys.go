// Package model holds the Replicante data model: scoped entity keys, the
// persisted record types from spec.md §3, and the small enums whose
// transitions carry invariants (namespace status, action phases).
package model

import "fmt"

// NamespaceKey identifies a Namespace.
type NamespaceKey struct {
	NsID string
}

func (k NamespaceKey) String() string { return k.NsID }

// ClusterKey identifies a cluster within a namespace.
type ClusterKey struct {
	NsID      string
	ClusterID string
}

func (k ClusterKey) String() string { return fmt.Sprintf("%s/%s", k.NsID, k.ClusterID) }

// StreamKey returns the event-stream partition key for cluster-scoped
// change events: the cluster id, per spec.md §3 ("stream_key is the
// enclosing ns_id, or cluster_id for cluster-scoped entities").
func (k ClusterKey) StreamKey() string { return k.ClusterID }

// NodeKey identifies a node within a cluster.
type NodeKey struct {
	NsID      string
	ClusterID string
	NodeID    string
}

func (k NodeKey) String() string { return fmt.Sprintf("%s/%s/%s", k.NsID, k.ClusterID, k.NodeID) }

func (k NodeKey) Cluster() ClusterKey { return ClusterKey{NsID: k.NsID, ClusterID: k.ClusterID} }

// ActionKey identifies an NAction or OAction. (ns_id, cluster_id, action_id)
// is unique across both families per spec.md §3 invariants.
type ActionKey struct {
	NsID      string
	ClusterID string
	ActionID  string
}

func (k ActionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.NsID, k.ClusterID, k.ActionID)
}

func (k ActionKey) Cluster() ClusterKey { return ClusterKey{NsID: k.NsID, ClusterID: k.ClusterID} }

// LockName returns the coordinator lock name guarding orchestration for
// this cluster: "cluster/{ns}/{cluster_id}" per spec.md §4.8 step 1.
func (k ClusterKey) LockName() string { return fmt.Sprintf("cluster/%s/%s", k.NsID, k.ClusterID) }
