package model

import "time"

// EventStreamName selects which of the two independent streams an event
// belongs to (spec.md §4.2).
type EventStreamName string

const (
	StreamAudit  EventStreamName = "audit"
	StreamChange EventStreamName = "change"
)

// Well-known change event codes emitted by the orchestration subsystem.
const (
	CodeApplyNamespace      = "APPLY_NAMESPACE"
	CodeApplyClusterSpec    = "APPLY_CLUSTER_SPEC"
	CodeApplyPlatform       = "APPLY_PLATFORM"
	CodeApplyDiscoverySettings = "APPLY_DISCOVERY_SETTINGS"
	CodeClusterDiscoveryUpdated = "CLUSTER_DISCOVERY_UPDATED"
	CodeNodeSyncNew         = "NODE_SYNC_NEW"
	CodeNodeSyncUpdate      = "NODE_SYNC_UPDATE"
	CodeNActionApprove      = "NACTION_APPROVE"
	CodeNActionFinished     = "NACTION_FINISHED"
	CodeNActionLost         = "NACTION_LOST"
	CodeOActionCreate       = "OACTION_CREATE"
	CodeOActionApprove      = "OACTION_APPROVE"
	CodeOActionCancel       = "OACTION_CANCEL"
	CodeOActionChanged      = "OACTION_CHANGED"
	CodeOrchestrateStart    = "ORCHESTRATE_START"
	CodeOrchestrateFinish   = "ORCHESTRATE_FINISH"
)

// Event is a single entry in either the audit or change stream.
type Event struct {
	Stream    EventStreamName `json:"stream"`
	StreamKey string          `json:"stream_key"`
	Code      string          `json:"code"`
	Time      time.Time       `json:"time"`
	Payload   map[string]any  `json:"payload,omitempty"`

	Sequence int64 `json:"sequence,omitempty"`
}

// AckLevel configures how durably an emit() must land before returning,
// per spec.md §4.2.
type AckLevel string

const (
	AckAll        AckLevel = "all"
	AckLeaderOnly AckLevel = "leader_only"
	AckNone       AckLevel = "none"
)
