package model

import "time"

// NodeStatus reflects the last observed health of a node's Agent/store.
type NodeStatus string

const (
	NodeHealthy     NodeStatus = "Healthy"
	NodeUnreachable NodeStatus = "Unreachable"
	NodeIncomplete  NodeStatus = "Incomplete"
)

// NodeDetails is populated only when the Agent answered info_node.
type NodeDetails struct {
	AgentVersion string            `json:"agent_version"`
	StoreID      string            `json:"store_id"`
	StoreVersion string            `json:"store_version"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Node is the control plane's record of one cluster member.
type Node struct {
	NsID       string       `json:"ns_id"`
	ClusterID  string       `json:"cluster_id"`
	NodeID     string       `json:"node_id"`
	NodeStatus NodeStatus   `json:"node_status"`
	Details    *NodeDetails `json:"details,omitempty"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (n Node) Key() NodeKey {
	return NodeKey{NsID: n.NsID, ClusterID: n.ClusterID, NodeID: n.NodeID}
}

// Equal reports whether two node records carry the same observable state,
// used by the orchestrate task's sync step to decide NODE_SYNC_UPDATE vs
// no-op (spec.md §4.8 step 3).
func (n Node) Equal(other Node) bool {
	if n.NodeStatus != other.NodeStatus {
		return false
	}
	if (n.Details == nil) != (other.Details == nil) {
		return false
	}
	if n.Details == nil {
		return true
	}
	a, b := *n.Details, *other.Details
	if a.AgentVersion != b.AgentVersion || a.StoreID != b.StoreID || a.StoreVersion != b.StoreVersion {
		return false
	}
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for k, v := range a.Attributes {
		if b.Attributes[k] != v {
			return false
		}
	}
	return true
}

// StoreExtras holds data only available when the node's store process is
// healthy (shard layout, store-specific metrics, ...).
type StoreExtras struct {
	NsID      string                 `json:"ns_id"`
	ClusterID string                 `json:"cluster_id"`
	NodeID    string                 `json:"node_id"`
	Shards    map[string]interface{} `json:"shards,omitempty"`
	StoreInfo map[string]interface{} `json:"store_info,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (s StoreExtras) Key() NodeKey {
	return NodeKey{NsID: s.NsID, ClusterID: s.ClusterID, NodeID: s.NodeID}
}
