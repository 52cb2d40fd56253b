package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flowforge/runtime"
)

// buildExecution lays out the rows the runtime expects: one execution in
// PENDING and one phase row per plan node in CREATED, created up-front in
// phase order.
func buildExecution(wf *runtime.Workflow, uid, definition string, plan *runtime.ExecutionPlan, trigger runtime.ExecutionTrigger) *runtime.Execution {
	execution := &runtime.Execution{
		ID:         uuid.New().String(),
		WorkflowID: wf.ID,
		UserID:     uid,
		Status:     runtime.ExecutionPending,
		Trigger:    trigger,
		Definition: definition,
	}
	for _, phase := range plan.Phases {
		for _, node := range phase.Nodes {
			serialized, _ := json.Marshal(node)
			execution.Phases = append(execution.Phases, &runtime.ExecutionPhase{
				ID:          uuid.New().String(),
				ExecutionID: execution.ID,
				UserID:      uid,
				Number:      phase.Number,
				Name:        runtime.GetTaskDefinition(node.Type).Label,
				Node:        string(serialized),
				Status:      runtime.PhaseCreated,
			})
		}
	}
	return execution
}

func serializePlan(plan *runtime.ExecutionPlan) string {
	b, _ := json.Marshal(plan)
	return string(b)
}

// contextWithoutCancel detaches the background run from the request context
// so finishing the HTTP response does not cancel the execution.
func contextWithoutCancel(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func executionView(ex *runtime.Execution) gin.H {
	phases := make([]gin.H, 0, len(ex.Phases))
	for _, p := range ex.Phases {
		phases = append(phases, gin.H{
			"id":              p.ID,
			"number":          p.Number,
			"name":            p.Name,
			"status":          p.Status,
			"creditsConsumed": p.CreditsConsumed,
			"startedAt":       timeView(p.StartedAt),
			"completedAt":     timeView(p.CompletedAt),
		})
	}
	return gin.H{
		"id":              ex.ID,
		"workflowId":      ex.WorkflowID,
		"status":          ex.Status,
		"trigger":         ex.Trigger,
		"creditsConsumed": ex.CreditsConsumed,
		"startedAt":       timeView(ex.StartedAt),
		"completedAt":     timeView(ex.CompletedAt),
		"phases":          phases,
	}
}

func phaseView(p *runtime.ExecutionPhase, logs []runtime.LogEntry) gin.H {
	logViews := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		logViews = append(logViews, gin.H{
			"message":   l.Message,
			"level":     l.Level,
			"timestamp": l.Timestamp,
		})
	}
	var inputs, outputs any
	if p.Inputs != "" {
		_ = json.Unmarshal([]byte(p.Inputs), &inputs)
	}
	if p.Outputs != "" {
		_ = json.Unmarshal([]byte(p.Outputs), &outputs)
	}
	return gin.H{
		"id":              p.ID,
		"number":          p.Number,
		"name":            p.Name,
		"status":          p.Status,
		"inputs":          inputs,
		"outputs":         outputs,
		"creditsConsumed": p.CreditsConsumed,
		"startedAt":       timeView(p.StartedAt),
		"completedAt":     timeView(p.CompletedAt),
		"logs":            logViews,
	}
}

func timeView(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t
}
