// Package orchestrate implements the per-cluster reconciliation task of
// spec.md §4.8: acquire the cluster lock, load state, sync live agent
// state, converge declared vs observed state, progress in-flight actions,
// and persist a report. Grounded on original_source
// core-logic/task/orchestrate/src/{init.rs,sync/node.rs,converge/mod.rs}.
package orchestrate

import "encoding/json"

// ClusterRequest is the OrchestrateCluster task payload (spec.md §4.3: "Both
// are serialisable JSON payloads carrying scoped keys only").
type ClusterRequest struct {
	NsID      string `json:"ns_id"`
	ClusterID string `json:"cluster_id"`
}

// DecodeRequest decodes an OrchestrateCluster task payload.
func DecodeRequest(payload []byte) (ClusterRequest, error) {
	var req ClusterRequest
	err := json.Unmarshal(payload, &req)
	return req, err
}
