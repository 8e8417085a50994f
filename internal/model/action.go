package model

import "time"

// NActionPhase is the node-action state machine from spec.md §4.6.
type NActionPhase string

const (
	NActionPendingApprove NActionPhase = "PendingApprove"
	NActionPendingSchedule NActionPhase = "PendingSchedule"
	NActionNew           NActionPhase = "New"
	NActionRunning       NActionPhase = "Running"
	NActionDone          NActionPhase = "Done"
	NActionFailed        NActionPhase = "Failed"
	NActionCancelled     NActionPhase = "Cancelled"
	NActionLost          NActionPhase = "Lost"
)

// IsTerminal reports whether the phase never transitions again (spec.md §8:
// "no subsequent persist returns it to a non-terminal state").
func (p NActionPhase) IsTerminal() bool {
	switch p {
	case NActionDone, NActionFailed, NActionCancelled, NActionLost:
		return true
	default:
		return false
	}
}

// NActionState carries the current phase plus an optional result payload
// or error recorded against it.
type NActionState struct {
	Phase   NActionPhase    `json:"phase"`
	Payload map[string]any  `json:"payload,omitempty"`
	Error   *ActionError    `json:"error,omitempty"`
}

// ActionError is the terminal-failure payload shared by NAction and OAction.
type ActionError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NAction is a node-local maintenance action tracked by the control plane
// but executed by a single node's Agent.
type NAction struct {
	NsID          string         `json:"ns_id"`
	ClusterID     string         `json:"cluster_id"`
	NodeID        string         `json:"node_id"`
	ActionID      string         `json:"action_id"`
	Kind          string         `json:"kind"`
	Args          map[string]any `json:"args,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedTime   time.Time      `json:"created_time"`
	ScheduledTime *time.Time     `json:"scheduled_time,omitempty"`
	FinishedTime  *time.Time     `json:"finished_time,omitempty"`
	State         NActionState   `json:"state"`

	ScheduleFailCount int `json:"schedule_fail_count"`
}

func (a NAction) Key() ActionKey {
	return ActionKey{NsID: a.NsID, ClusterID: a.ClusterID, ActionID: a.ActionID}
}

func (a NAction) NodeKey() NodeKey {
	return NodeKey{NsID: a.NsID, ClusterID: a.ClusterID, NodeID: a.NodeID}
}

// OActionState is the cluster-wide action state machine from spec.md §4.7.
type OActionState string

const (
	OActionPendingApprove  OActionState = "PendingApprove"
	OActionPendingSchedule OActionState = "PendingSchedule"
	OActionRunning         OActionState = "Running"
	OActionDone            OActionState = "Done"
	OActionFailed          OActionState = "Failed"
	OActionCancelled       OActionState = "Cancelled"
)

func (s OActionState) IsTerminal() bool {
	switch s {
	case OActionDone, OActionFailed, OActionCancelled:
		return true
	default:
		return false
	}
}

// ScheduleMode governs how an OAction kind interacts with concurrently
// running OActions (spec.md §4.7).
type ScheduleMode string

const (
	ScheduleExclusive           ScheduleMode = "Exclusive"
	ScheduleExclusiveWithinMode ScheduleMode = "ExclusiveWithinMode"
)

// OAction is a cluster-scoped maintenance action.
type OAction struct {
	NsID          string         `json:"ns_id"`
	ClusterID     string         `json:"cluster_id"`
	ActionID      string         `json:"action_id"`
	Kind          string         `json:"kind"`
	Args          map[string]any `json:"args,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedTS     time.Time      `json:"created_ts"`
	ScheduledTS   *time.Time     `json:"scheduled_ts,omitempty"`
	FinishedTS    *time.Time     `json:"finished_ts,omitempty"`
	Timeout       time.Duration  `json:"timeout"`
	State         OActionState   `json:"state"`
	StatePayload  map[string]any `json:"state_payload,omitempty"`
	StatePayloadError *ActionError `json:"state_payload_error,omitempty"`
}

func (a OAction) Key() ActionKey {
	return ActionKey{NsID: a.NsID, ClusterID: a.ClusterID, ActionID: a.ActionID}
}

func (a OAction) ClusterKey() ClusterKey { return ClusterKey{NsID: a.NsID, ClusterID: a.ClusterID} }

// TimedOut reports whether a Running/PendingSchedule action has exceeded
// its per-kind timeout (spec.md §4.7 "Timeout").
func (a OAction) TimedOut(now time.Time) bool {
	if a.State.IsTerminal() || a.ScheduledTS == nil || a.Timeout <= 0 {
		return false
	}
	return now.Sub(*a.ScheduledTS) > a.Timeout
}
