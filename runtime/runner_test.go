package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"flowforge/runtime"
	"flowforge/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chainDefinition(t *testing.T) *runtime.FlowDefinition {
	t.Helper()
	return &runtime.FlowDefinition{
		Nodes: []runtime.Node{
			{ID: "launch", Type: runtime.TaskLaunchBrowser, StaticInputs: map[string]string{"Website Url": "https://example.com"}},
			{ID: "html", Type: runtime.TaskPageToHTML, StaticInputs: map[string]string{}},
			{ID: "extract", Type: runtime.TaskExtractTextFromElement, StaticInputs: map[string]string{"Selector": "h1"}},
		},
		Edges: []runtime.Edge{
			{Source: "launch", SourceOutput: "Web page", Target: "html", TargetInput: "Web page"},
			{Source: "html", SourceOutput: "HTML", Target: "extract", TargetInput: "Html"},
		},
	}
}

// seedExecution persists a workflow and a pending execution with one CREATED
// phase row per plan node, the same layout the HTTP layer creates.
func seedExecution(t *testing.T, store *memory.Store, def *runtime.FlowDefinition, userID string) *runtime.Execution {
	t.Helper()

	raw, err := def.Serialize()
	if err != nil {
		t.Fatalf("serializing definition: %v", err)
	}
	plan, planErr := runtime.CompilePlan(def.Nodes, def.Edges)
	if planErr != nil {
		t.Fatalf("compiling plan: %v", planErr)
	}

	wf := &runtime.Workflow{ID: "wf-1", UserID: userID, Name: "test", Status: runtime.WorkflowDraft, Definition: raw}
	if err := store.CreateWorkflow(context.Background(), wf); err != nil {
		t.Fatalf("creating workflow: %v", err)
	}

	execution := &runtime.Execution{
		WorkflowID: wf.ID,
		UserID:     userID,
		Status:     runtime.ExecutionPending,
		Trigger:    runtime.TriggerManual,
		Definition: raw,
	}
	for _, phase := range plan.Phases {
		for _, node := range phase.Nodes {
			serialized, err := json.Marshal(node)
			if err != nil {
				t.Fatalf("marshalling node: %v", err)
			}
			execution.Phases = append(execution.Phases, &runtime.ExecutionPhase{
				UserID: userID,
				Number: phase.Number,
				Name:   runtime.GetTaskDefinition(node.Type).Label,
				Node:   string(serialized),
				Status: runtime.PhaseCreated,
			})
		}
	}
	if err := store.CreateExecution(context.Background(), execution); err != nil {
		t.Fatalf("creating execution: %v", err)
	}
	return execution
}

func phaseLogMessages(t *testing.T, store *memory.Store, phaseID string) []string {
	t.Helper()
	logs, err := store.GetPhaseLogs(context.Background(), phaseID)
	if err != nil {
		t.Fatalf("loading phase logs: %v", err)
	}
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Message)
	}
	return out
}

func TestRunnerExecutesChainAndSettlesCredits(t *testing.T) {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance("user-1", 100)

	var extractGot string
	registry := runtime.ExecutorRegistry{
		runtime.TaskLaunchBrowser: func(_ context.Context, env *runtime.ExecutionEnvironment) error {
			env.Log.Info("Browser started successfully")
			return nil
		},
		runtime.TaskPageToHTML: func(_ context.Context, env *runtime.ExecutionEnvironment) error {
			env.SetOutput("HTML", "<h1>hello</h1>")
			return nil
		},
		runtime.TaskExtractTextFromElement: func(_ context.Context, env *runtime.ExecutionEnvironment) error {
			extractGot = env.GetInput("Html")
			env.SetOutput("Extracted text", "hello")
			return nil
		},
	}

	execution := seedExecution(t, store, chainDefinition(t), "user-1")
	runner := runtime.NewRunner(testLogger(), store, ledger, registry)
	if err := runner.Execute(context.Background(), execution.ID, nil); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}

	// Upstream output must arrive as the downstream phase's input.
	if extractGot != "<h1>hello</h1>" {
		t.Errorf("expected extract phase to receive upstream html, got %q", extractGot)
	}

	ex, err := store.GetExecution(context.Background(), execution.ID)
	if err != nil {
		t.Fatalf("loading execution: %v", err)
	}
	if ex.Status != runtime.ExecutionCompleted {
		t.Errorf("expected execution status COMPLETED, got %s", ex.Status)
	}
	if ex.CreditsConsumed != 9 {
		t.Errorf("expected 9 credits consumed, got %d", ex.CreditsConsumed)
	}
	if ex.StartedAt == nil || ex.CompletedAt == nil {
		t.Error("expected execution timestamps to be set")
	}
	for _, p := range ex.Phases {
		if p.Status != runtime.PhaseCompleted {
			t.Errorf("expected phase %d COMPLETED, got %s", p.Number, p.Status)
		}
	}

	balance, _ := ledger.Balance(context.Background(), "user-1")
	if balance != 91 {
		t.Errorf("expected balance 91 after run, got %d", balance)
	}

	wf, err := store.GetWorkflow(context.Background(), execution.WorkflowID)
	if err != nil {
		t.Fatalf("loading workflow: %v", err)
	}
	if wf.LastRunID != execution.ID {
		t.Errorf("expected last run id %s, got %s", execution.ID, wf.LastRunID)
	}
	if wf.LastRunStatus != runtime.ExecutionCompleted {
		t.Errorf("expected last run status COMPLETED, got %s", wf.LastRunStatus)
	}
	if wf.LastRunAt == nil {
		t.Error("expected last run timestamp to be set")
	}
}

func TestRunnerStopsAtFirstFailedPhase(t *testing.T) {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance("user-1", 100)

	extractCalled := false
	registry := runtime.ExecutorRegistry{
		runtime.TaskLaunchBrowser: func(_ context.Context, _ *runtime.ExecutionEnvironment) error {
			return nil
		},
		runtime.TaskPageToHTML: func(_ context.Context, _ *runtime.ExecutionEnvironment) error {
			return errors.New("page crashed")
		},
		runtime.TaskExtractTextFromElement: func(_ context.Context, _ *runtime.ExecutionEnvironment) error {
			extractCalled = true
			return nil
		},
	}

	execution := seedExecution(t, store, chainDefinition(t), "user-1")
	runner := runtime.NewRunner(testLogger(), store, ledger, registry)
	if err := runner.Execute(context.Background(), execution.ID, nil); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}

	if extractCalled {
		t.Error("expected downstream executor to never run after a failure")
	}

	ex, _ := store.GetExecution(context.Background(), execution.ID)
	if ex.Status != runtime.ExecutionFailed {
		t.Errorf("expected execution status FAILED, got %s", ex.Status)
	}
	// Both the launch and the failed phase consumed credits; the unreached
	// phase consumed none.
	if ex.CreditsConsumed != 7 {
		t.Errorf("expected 7 credits consumed, got %d", ex.CreditsConsumed)
	}

	wantStatuses := []runtime.PhaseStatus{runtime.PhaseCompleted, runtime.PhaseFailed, runtime.PhasePending}
	for i, p := range ex.Phases {
		if p.Status != wantStatuses[i] {
			t.Errorf("expected phase %d status %s, got %s", p.Number, wantStatuses[i], p.Status)
		}
	}

	messages := phaseLogMessages(t, store, ex.Phases[1].ID)
	if len(messages) == 0 || messages[len(messages)-1] != "page crashed" {
		t.Errorf("expected executor error in phase logs, got %v", messages)
	}

	wf, _ := store.GetWorkflow(context.Background(), execution.WorkflowID)
	if wf.LastRunStatus != runtime.ExecutionFailed {
		t.Errorf("expected last run status FAILED, got %s", wf.LastRunStatus)
	}
}

func TestRunnerGatesPhaseOnCredits(t *testing.T) {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance("user-1", 3)

	launched := false
	registry := runtime.ExecutorRegistry{
		runtime.TaskLaunchBrowser: func(_ context.Context, _ *runtime.ExecutionEnvironment) error {
			launched = true
			return nil
		},
	}

	execution := seedExecution(t, store, chainDefinition(t), "user-1")
	runner := runtime.NewRunner(testLogger(), store, ledger, registry)
	if err := runner.Execute(context.Background(), execution.ID, nil); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}

	if launched {
		t.Error("expected executor to never run when credits are insufficient")
	}

	ex, _ := store.GetExecution(context.Background(), execution.ID)
	if ex.Status != runtime.ExecutionFailed {
		t.Errorf("expected execution status FAILED, got %s", ex.Status)
	}
	if ex.CreditsConsumed != 0 {
		t.Errorf("expected no credits consumed, got %d", ex.CreditsConsumed)
	}
	if ex.Phases[0].Status != runtime.PhaseFailed {
		t.Errorf("expected first phase FAILED, got %s", ex.Phases[0].Status)
	}
	if ex.Phases[0].CreditsConsumed != 0 {
		t.Errorf("expected first phase to consume no credits, got %d", ex.Phases[0].CreditsConsumed)
	}

	messages := phaseLogMessages(t, store, ex.Phases[0].ID)
	found := false
	for _, m := range messages {
		if m == "Insufficient credits" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected insufficient credits log, got %v", messages)
	}

	// The untouched balance stays available for the next run.
	balance, _ := ledger.Balance(context.Background(), "user-1")
	if balance != 3 {
		t.Errorf("expected balance 3, got %d", balance)
	}
}

func TestRunnerRecoversExecutorPanic(t *testing.T) {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance("user-1", 100)

	registry := runtime.ExecutorRegistry{
		runtime.TaskLaunchBrowser: func(_ context.Context, _ *runtime.ExecutionEnvironment) error {
			panic("boom")
		},
	}

	execution := seedExecution(t, store, chainDefinition(t), "user-1")
	runner := runtime.NewRunner(testLogger(), store, ledger, registry)
	if err := runner.Execute(context.Background(), execution.ID, nil); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}

	ex, _ := store.GetExecution(context.Background(), execution.ID)
	if ex.Status != runtime.ExecutionFailed {
		t.Errorf("expected execution status FAILED, got %s", ex.Status)
	}
	// The credit was spent before the executor ran.
	if ex.CreditsConsumed != 5 {
		t.Errorf("expected 5 credits consumed, got %d", ex.CreditsConsumed)
	}

	messages := phaseLogMessages(t, store, ex.Phases[0].ID)
	found := false
	for _, m := range messages {
		if strings.Contains(m, "executor panicked") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected panic to be logged, got %v", messages)
	}
}

func TestRunnerPersistsPhaseInputsAndOutputs(t *testing.T) {
	store := memory.NewStore()
	ledger := memory.NewLedger()
	ledger.SetBalance("user-1", 100)

	registry := runtime.ExecutorRegistry{
		runtime.TaskLaunchBrowser: func(_ context.Context, _ *runtime.ExecutionEnvironment) error {
			return nil
		},
		runtime.TaskPageToHTML: func(_ context.Context, env *runtime.ExecutionEnvironment) error {
			env.SetOutput("HTML", "<p>x</p>")
			return nil
		},
		runtime.TaskExtractTextFromElement: func(_ context.Context, env *runtime.ExecutionEnvironment) error {
			env.SetOutput("Extracted text", "x")
			return nil
		},
	}

	execution := seedExecution(t, store, chainDefinition(t), "user-1")
	runner := runtime.NewRunner(testLogger(), store, ledger, registry)
	if err := runner.Execute(context.Background(), execution.ID, nil); err != nil {
		t.Fatalf("unexpected execute error: %v", err)
	}

	ex, _ := store.GetExecution(context.Background(), execution.ID)

	var launchInputs map[string]string
	if err := json.Unmarshal([]byte(ex.Phases[0].Inputs), &launchInputs); err != nil {
		t.Fatalf("unmarshalling phase inputs: %v", err)
	}
	if launchInputs["Website Url"] != "https://example.com" {
		t.Errorf("expected static input to be persisted, got %v", launchInputs)
	}

	var extractInputs map[string]string
	if err := json.Unmarshal([]byte(ex.Phases[2].Inputs), &extractInputs); err != nil {
		t.Fatalf("unmarshalling phase inputs: %v", err)
	}
	if extractInputs["Html"] != "<p>x</p>" || extractInputs["Selector"] != "h1" {
		t.Errorf("expected resolved inputs to be persisted, got %v", extractInputs)
	}

	var extractOutputs map[string]string
	if err := json.Unmarshal([]byte(ex.Phases[2].Outputs), &extractOutputs); err != nil {
		t.Fatalf("unmarshalling phase outputs: %v", err)
	}
	if extractOutputs["Extracted text"] != "x" {
		t.Errorf("expected outputs to be persisted, got %v", extractOutputs)
	}

	for _, p := range ex.Phases {
		if p.StartedAt == nil || p.CompletedAt == nil {
			t.Errorf("expected phase %d timestamps to be set", p.Number)
		}
	}
}
