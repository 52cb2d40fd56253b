package runtime

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the durable persistence the runtime depends on. Implementations
// live under store/; the runtime only needs these operations and their field
// semantics, not the storage technology.
type Store interface {
	CreateWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, wf *Workflow) error

	// MarkWorkflowRunStarted mirrors last-run pointers onto the workflow and
	// sets the next scheduled run when one is supplied.
	MarkWorkflowRunStarted(ctx context.Context, workflowID, executionID string, at time.Time, nextRunAt *time.Time) error

	// UpdateWorkflowLastRunStatus updates lastRunStatus only while lastRunId
	// still points at executionID. A newer run owning the pointer makes this
	// a no-op, which is how an older run's finish avoids clobbering it.
	UpdateWorkflowLastRunStatus(ctx context.Context, workflowID, executionID string, status ExecutionStatus) error

	// CreateExecution persists the execution together with its phase rows.
	CreateExecution(ctx context.Context, ex *Execution) error
	// GetExecution loads an execution with its phase rows in phase order.
	GetExecution(ctx context.Context, id string) (*Execution, error)

	MarkExecutionStarted(ctx context.Context, id string, at time.Time) error
	MarkExecutionFinished(ctx context.Context, id string, status ExecutionStatus, at time.Time, creditsConsumed int) error

	// MarkPhasesPending flips every phase row of an execution to PENDING.
	MarkPhasesPending(ctx context.Context, executionID string) error
	MarkPhaseStarted(ctx context.Context, phaseID string, at time.Time, inputs string) error
	MarkPhaseFinished(ctx context.Context, phaseID string, status PhaseStatus, at time.Time, outputs string, creditsConsumed int) error

	// AppendLogs bulk-inserts the collected log entries of one phase.
	AppendLogs(ctx context.Context, phaseID string, entries []LogEntry) error
	GetPhaseLogs(ctx context.Context, phaseID string) ([]LogEntry, error)

	GetCredential(ctx context.Context, userID, id string) (*Credential, error)
	CreateCredential(ctx context.Context, c *Credential) error
}

// CreditLedger is the atomic decrement-if-sufficient balance operation. It is
// the one resource genuinely shared across concurrent executions of a user;
// all mutation goes through TryDecrement, never read-then-write.
type CreditLedger interface {
	// TryDecrement subtracts amount from the user's balance if the balance
	// covers it, reporting whether the decrement happened. Fails closed.
	TryDecrement(ctx context.Context, userID string, amount int) (bool, error)
	Balance(ctx context.Context, userID string) (int, error)
}
