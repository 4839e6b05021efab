package analysis

import "time"

// PhaseMode defines how a phase schedules its participants.
type PhaseMode string

const (
	ModeSequential PhaseMode = "sequential"
	ModeParallel   PhaseMode = "parallel"
)

// PhaseStatus represents the lifecycle state of a single phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseError     PhaseStatus = "error"
)

// TerminationReason records which rule ended a conversation phase. A
// cooperative stop is recorded as ReasonCancelled so an interrupted phase
// stays distinguishable from one that genuinely finished.
type TerminationReason string

const (
	ReasonKeyword   TerminationReason = "keyword"
	ReasonMaxTurns  TerminationReason = "max_turns"
	ReasonTimeout   TerminationReason = "timeout"
	ReasonCancelled TerminationReason = "cancelled"
)

// PhaseRecord captures one executed (or skipped) stage of the analysis plan.
// Once a phase reaches a terminal status only that status is recorded;
// the rest of the record is immutable.
type PhaseRecord struct {
	Name         string            `json:"name"`
	Mode         PhaseMode         `json:"mode"`
	Participants []string          `json:"participants"`
	Status       PhaseStatus       `json:"status"`
	Reason       TerminationReason `json:"termination_reason,omitempty"`

	// DegradedBranches lists parallel branches that failed while at least
	// one sibling succeeded. Non-empty only on a completed parallel phase.
	DegradedBranches []string `json:"degraded_branches,omitempty"`

	// Simulated marks a phase whose output came from stand-in workers
	// rather than a real analysis backend.
	Simulated bool `json:"simulated,omitempty"`

	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (p PhaseRecord) clone() PhaseRecord {
	out := p
	out.Participants = append([]string(nil), p.Participants...)
	out.DegradedBranches = append([]string(nil), p.DegradedBranches...)
	if p.StartedAt != nil {
		t := *p.StartedAt
		out.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
