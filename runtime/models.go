package runtime

import "time"

// ExecutionStatus is the lifecycle of a whole run. Transitions are monotonic:
// PENDING -> RUNNING -> COMPLETED or FAILED, never reopened.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// ExecutionTrigger records how a run was started.
type ExecutionTrigger string

const (
	TriggerManual    ExecutionTrigger = "MANUAL"
	TriggerScheduled ExecutionTrigger = "SCHEDULED"
	TriggerCron      ExecutionTrigger = "CRON"
)

// PhaseStatus is the lifecycle of a single persisted phase row. Rows left in
// CREATED or PENDING after a failed run mark phases that were never reached.
type PhaseStatus string

const (
	PhaseCreated   PhaseStatus = "CREATED"
	PhasePending   PhaseStatus = "PENDING"
	PhaseRunning   PhaseStatus = "RUNNING"
	PhaseCompleted PhaseStatus = "COMPLETED"
	PhaseFailed    PhaseStatus = "FAILED"
)

// WorkflowStatus is the publication state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowDraft     WorkflowStatus = "DRAFT"
	WorkflowPublished WorkflowStatus = "PUBLISHED"
)

// Workflow is a stored workflow definition plus its last-run mirror fields.
type Workflow struct {
	ID            string
	UserID        string
	Name          string
	Status        WorkflowStatus
	Definition    string
	ExecutionPlan string // compiled plan frozen at publish time
	CreditsCost   int
	Cron          string
	LastRunID     string
	LastRunStatus ExecutionStatus
	LastRunAt     *time.Time
	NextRunAt     *time.Time
}

// Execution is one run of a workflow, created once per run request.
type Execution struct {
	ID              string
	WorkflowID      string
	UserID          string
	Status          ExecutionStatus
	Trigger         ExecutionTrigger
	Definition      string // graph snapshot frozen for this run
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreditsConsumed int
	Phases          []*ExecutionPhase
}

// ExecutionPhase is the persisted record of one plan node within a run.
// Inputs and Outputs hold JSON-serialized name/value maps once known.
type ExecutionPhase struct {
	ID              string
	ExecutionID     string
	UserID          string
	Number          int
	Name            string
	Node            string // serialized Node
	Status          PhaseStatus
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Inputs          string
	Outputs         string
	CreditsConsumed int
}

// LogEntry is one collected log line, flushed when its phase finalizes.
type LogEntry struct {
	ID        string
	PhaseID   string
	Message   string
	Level     LogLevel
	Timestamp time.Time
}

// Credential is an encrypted stored secret owned by a user.
type Credential struct {
	ID     string
	UserID string
	Name   string
	Value  string // symmetric ciphertext, "ivhex:cipherhex"
}
