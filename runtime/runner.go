package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// ExecutorFunc performs one task's effect given its resolved inputs. A nil
// return is success; a returned error (or a panic, which the dispatcher
// recovers) fails the phase with the message logged to the phase collector.
type ExecutorFunc func(ctx context.Context, env *ExecutionEnvironment) error

// ExecutorRegistry maps every task type to its executor. It is the runtime
// twin of the Catalog map; both are keyed by the same closed TaskType set.
type ExecutorRegistry map[TaskType]ExecutorFunc

// Runner executes persisted workflow executions phase by phase. One Execute
// call owns one execution; phases run strictly sequentially, each awaited to
// completion before the next starts. The Runner itself holds no per-run
// state, so distinct executions may run concurrently on the same Runner.
type Runner struct {
	l         *slog.Logger
	store     Store
	ledger    CreditLedger
	executors ExecutorRegistry
}

func NewRunner(l *slog.Logger, store Store, ledger CreditLedger, executors ExecutorRegistry) *Runner {
	return &Runner{
		l:         l,
		store:     store,
		ledger:    ledger,
		executors: executors,
	}
}

type phaseResult struct {
	success         bool
	creditsConsumed int
}

// Execute runs a persisted execution whose phase rows were created up-front
// by the trigger layer, in phase order. The first failing phase stops the
// loop; later phases are never dispatched. Calling Execute twice concurrently
// for the same execution id is unsafe and is the caller's job to prevent.
func (r *Runner) Execute(ctx context.Context, executionID string, nextRunAt *time.Time) error {
	execution, err := r.store.GetExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("error loading execution %s: %w", executionID, err)
	}

	def, err := ParseFlowDefinition(execution.Definition)
	if err != nil {
		return fmt.Errorf("error parsing definition of execution %s: %w", executionID, err)
	}

	environment := NewEnvironment()
	defer func() {
		if cerr := environment.Cleanup(); cerr != nil {
			r.l.Error("environment cleanup failed",
				"execution", executionID,
				"error", cerr.Error())
		}
	}()

	now := time.Now()
	if err := r.store.MarkExecutionStarted(ctx, executionID, now); err != nil {
		return fmt.Errorf("error starting execution %s: %w", executionID, err)
	}
	if err := r.store.MarkWorkflowRunStarted(ctx, execution.WorkflowID, executionID, now, nextRunAt); err != nil {
		return fmt.Errorf("error updating workflow %s: %w", execution.WorkflowID, err)
	}
	if err := r.store.MarkPhasesPending(ctx, executionID); err != nil {
		return fmt.Errorf("error initializing phases of execution %s: %w", executionID, err)
	}

	failed := false
	creditsConsumed := 0
	for _, phase := range execution.Phases {
		result, err := r.executePhase(ctx, phase, environment, def.Edges, execution.UserID)
		if err != nil {
			return fmt.Errorf("error executing phase %s: %w", phase.ID, err)
		}
		creditsConsumed += result.creditsConsumed
		if !result.success {
			failed = true
			break
		}
	}

	status := ExecutionCompleted
	if failed {
		status = ExecutionFailed
	}
	if err := r.store.MarkExecutionFinished(ctx, executionID, status, time.Now(), creditsConsumed); err != nil {
		return fmt.Errorf("error finalizing execution %s: %w", executionID, err)
	}

	// Guarded mirror of the final status onto the workflow. If a newer run
	// already owns the last-run pointer this is a benign race; the error is
	// absorbed so it can never fail a finished execution.
	_ = r.store.UpdateWorkflowLastRunStatus(ctx, execution.WorkflowID, executionID, status)

	r.l.Info("execution finished",
		"execution", executionID,
		"status", string(status),
		"credits", creditsConsumed)
	return nil
}

// executePhase runs one phase row to its final state. The returned error is
// reserved for persistence failures; task failures come back as
// result.success == false with the cause in the phase logs.
func (r *Runner) executePhase(ctx context.Context, phase *ExecutionPhase, environment *Environment, edges []Edge, userID string) (phaseResult, error) {
	var node Node
	if err := json.Unmarshal([]byte(phase.Node), &node); err != nil {
		return phaseResult{}, fmt.Errorf("error unmarshalling node of phase %s: %w", phase.ID, err)
	}

	collector := NewLogCollector()
	execEnv := NewExecutionEnvironment(node.ID, userID, environment, collector)
	r.resolveInputs(node, execEnv, edges)

	inputs, err := json.Marshal(execEnv.inputs())
	if err != nil {
		return phaseResult{}, fmt.Errorf("error marshalling inputs of phase %s: %w", phase.ID, err)
	}
	if err := r.store.MarkPhaseStarted(ctx, phase.ID, time.Now(), string(inputs)); err != nil {
		return phaseResult{}, fmt.Errorf("error starting phase %s: %w", phase.ID, err)
	}

	definition := GetTaskDefinition(node.Type)

	result := phaseResult{}
	decremented, err := r.ledger.TryDecrement(ctx, userID, definition.Credits)
	if err != nil {
		// Fail closed: a ledger error gates the phase the same way an
		// insufficient balance does.
		collector.Error(fmt.Sprintf("credit check failed: %v", err))
	} else if !decremented {
		collector.Error("Insufficient credits")
	} else {
		result.creditsConsumed = definition.Credits
		result.success = r.dispatch(ctx, node, execEnv, collector)
	}

	return result, r.finalizePhase(ctx, phase.ID, execEnv, collector, result)
}

// resolveInputs fills the environment's input map for a node: static editor
// values win, otherwise the edge targeting the input supplies the upstream
// output. Browser-handle params pass through the shared environment instead
// of the string map and are skipped here.
func (r *Runner) resolveInputs(node Node, execEnv *ExecutionEnvironment, edges []Edge) {
	definition := GetTaskDefinition(node.Type)
	for _, input := range definition.Inputs {
		if input.Type == ParamBrowserInstance {
			continue
		}
		if v := node.StaticInputs[input.Name]; v != "" {
			execEnv.SetInput(input.Name, v)
			continue
		}

		var incoming *Edge
		for i := range edges {
			if edges[i].Target == node.ID && edges[i].TargetInput == input.Name {
				incoming = &edges[i]
			}
		}
		if incoming == nil {
			// Compile-time validation already enforced required inputs;
			// record the absence anyway so a failed phase is diagnosable.
			collectorMissingInput(execEnv.Log, input.Name)
			continue
		}

		value, ok := execEnv.env.Output(incoming.Source, incoming.SourceOutput)
		if !ok {
			collectorMissingInput(execEnv.Log, input.Name)
			continue
		}
		execEnv.SetInput(input.Name, value)
	}
}

func collectorMissingInput(log *LogCollector, name string) {
	log.Error(fmt.Sprintf("value not found for input %q", name))
}

// dispatch looks up and invokes the task executor, converting panics and
// returned errors into a logged phase failure.
func (r *Runner) dispatch(ctx context.Context, node Node, execEnv *ExecutionEnvironment, collector *LogCollector) (success bool) {
	fn, ok := r.executors[node.Type]
	if !ok {
		collector.Error(fmt.Sprintf("executor not found for task type %s", node.Type))
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			collector.Error(fmt.Sprintf("executor panicked: %v", rec))
			success = false
		}
	}()

	if err := fn(ctx, execEnv); err != nil {
		collector.Error(err.Error())
		return false
	}
	return true
}

func (r *Runner) finalizePhase(ctx context.Context, phaseID string, execEnv *ExecutionEnvironment, collector *LogCollector, result phaseResult) error {
	status := PhaseCompleted
	if !result.success {
		status = PhaseFailed
	}

	outputs, err := json.Marshal(execEnv.outputs())
	if err != nil {
		return fmt.Errorf("error marshalling outputs of phase %s: %w", phaseID, err)
	}
	if err := r.store.MarkPhaseFinished(ctx, phaseID, status, time.Now(), string(outputs), result.creditsConsumed); err != nil {
		return fmt.Errorf("error finalizing phase %s: %w", phaseID, err)
	}
	if err := r.store.AppendLogs(ctx, phaseID, collector.All()); err != nil {
		return fmt.Errorf("error persisting logs of phase %s: %w", phaseID, err)
	}
	return nil
}
