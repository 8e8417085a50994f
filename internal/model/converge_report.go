package model

import "time"

// ConvergeState is memory for otherwise-stateless convergence steps,
// keyed by step id (spec.md §3).
type ConvergeState struct {
	NsID      string               `json:"ns_id"`
	ClusterID string               `json:"cluster_id"`
	Graces    map[string]time.Time `json:"graces"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (s ConvergeState) Key() ClusterKey { return ClusterKey{NsID: s.NsID, ClusterID: s.ClusterID} }

// GraceStart returns the recorded grace-period start for a step, if any.
func (s ConvergeState) GraceStart(stepID string) (time.Time, bool) {
	t, ok := s.Graces[stepID]
	return t, ok
}

// WithGrace returns a copy of the state with the given step's grace start
// set (or cleared, if zero).
func (s ConvergeState) WithGrace(stepID string, start time.Time) ConvergeState {
	out := s
	graces := make(map[string]time.Time, len(s.Graces)+1)
	for k, v := range s.Graces {
		graces[k] = v
	}
	if start.IsZero() {
		delete(graces, stepID)
	} else {
		graces[stepID] = start
	}
	out.Graces = graces
	return out
}

// OrchestrateMode is the reconciliation mode chosen at init time.
type OrchestrateMode string

const (
	ModeSync    OrchestrateMode = "sync"
	ModeObserve OrchestrateMode = "observe"
	ModeDelete  OrchestrateMode = "delete"
)

// Note is a single timestamped remark attached to an OrchestrateReport,
// typically recording a non-fatal converge-step failure.
type Note struct {
	Time    time.Time `json:"time"`
	StepID  string    `json:"step_id,omitempty"`
	Message string    `json:"message"`
}

// SchedulingChoice records why the action-progress phase did or didn't
// start new actions this cycle (spec.md §4.7 SchedChoice).
type SchedulingChoice struct {
	NodeActionsBlocked bool   `json:"node_actions_blocked,omitempty"`
	OActionsBlocked    bool   `json:"oactions_blocked,omitempty"`
	BlockedMode        string `json:"blocked_mode,omitempty"`
	Reason             string `json:"reason,omitempty"`
}

// OrchestrateReport is the single-latest-per-cluster document describing
// the last orchestration run.
type OrchestrateReport struct {
	NsID      string          `json:"ns_id"`
	ClusterID string          `json:"cluster_id"`
	Mode      OrchestrateMode `json:"mode"`
	StartTime time.Time       `json:"start_time"`
	Duration  time.Duration   `json:"duration"`

	Success   bool   `json:"success"`
	ErrorChain []string `json:"error_chain,omitempty"`

	NodesSynced    int `json:"nodes_synced"`
	NodesFailed    int `json:"nodes_failed"`
	ActionsScheduled int `json:"actions_scheduled"`
	ActionsFailed    int `json:"actions_failed"`
	ActionsLost      int `json:"actions_lost"`

	Scheduling SchedulingChoice `json:"scheduling"`
	Notes      []Note           `json:"notes,omitempty"`
}

func (r OrchestrateReport) Key() ClusterKey { return ClusterKey{NsID: r.NsID, ClusterID: r.ClusterID} }
