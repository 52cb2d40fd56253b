// Package server is the HTTP trigger layer around the engine: it compiles
// plans, creates execution and phase rows up-front, and hands the run to the
// runtime in a goroutine. Authentication is out of scope; the owning user is
// taken from the X-User-Id header.
package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flowforge/runtime"
	"flowforge/secrets"
)

type Server struct {
	l      *slog.Logger
	store  runtime.Store
	ledger runtime.CreditLedger
	runner *runtime.Runner
	cipher *secrets.Cipher
}

func New(l *slog.Logger, store runtime.Store, ledger runtime.CreditLedger, runner *runtime.Runner, cipher *secrets.Cipher) *Server {
	return &Server{l: l, store: store, ledger: ledger, runner: runner, cipher: cipher}
}

// Routes registers all endpoints on the engine.
func (s *Server) Routes(g *gin.Engine) {
	api := g.Group("/api")
	api.POST("/workflows", s.createWorkflow)
	api.POST("/workflows/:id/publish", s.publishWorkflow)
	api.POST("/workflows/:id/unpublish", s.unpublishWorkflow)
	api.PUT("/workflows/:id/cron", s.updateCron)
	api.POST("/workflows/:id/run", s.runWorkflow)
	api.GET("/executions/:id", s.getExecution)
	api.GET("/executions/:id/phases/:phaseId", s.getPhase)
	api.POST("/credentials", s.createCredential)
	api.GET("/balance", s.getBalance)
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-User-Id")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing X-User-Id header"})
		return "", false
	}
	return id, true
}

type createWorkflowRequest struct {
	Name       string `json:"name" binding:"required"`
	Definition string `json:"definition"`
}

func (s *Server) createWorkflow(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	wf := &runtime.Workflow{
		ID:         uuid.New().String(),
		UserID:     uid,
		Name:       req.Name,
		Status:     runtime.WorkflowDraft,
		Definition: req.Definition,
	}
	if err := s.store.CreateWorkflow(c.Request.Context(), wf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": wf.ID})
}

type publishRequest struct {
	Definition string `json:"definition" binding:"required"`
}

// publishWorkflow compiles the definition, freezes the plan and the credit
// cost on the workflow, and flips it to PUBLISHED. Compile errors block
// publication.
func (s *Server) publishWorkflow(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	wf, ok := s.loadOwnedWorkflow(c, uid)
	if !ok {
		return
	}
	def, err := runtime.ParseFlowDefinition(req.Definition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	plan, planErr := runtime.CompilePlan(def.Nodes, def.Edges)
	if planErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": planErr.Kind, "invalidElements": planErr.Invalid})
		return
	}

	wf.Status = runtime.WorkflowPublished
	wf.Definition = req.Definition
	wf.ExecutionPlan = serializePlan(plan)
	wf.CreditsCost = runtime.WorkflowCost(def.Nodes)
	if err := s.store.UpdateWorkflow(c.Request.Context(), wf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"creditsCost": wf.CreditsCost})
}

func (s *Server) unpublishWorkflow(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	wf, ok := s.loadOwnedWorkflow(c, uid)
	if !ok {
		return
	}
	wf.Status = runtime.WorkflowDraft
	wf.ExecutionPlan = ""
	wf.CreditsCost = 0
	if err := s.store.UpdateWorkflow(c.Request.Context(), wf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type cronRequest struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"nextRunAt"`
}

func (s *Server) updateCron(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req cronRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	wf, ok := s.loadOwnedWorkflow(c, uid)
	if !ok {
		return
	}
	wf.Cron = req.Cron
	wf.NextRunAt = req.NextRunAt
	if err := s.store.UpdateWorkflow(c.Request.Context(), wf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type runRequest struct {
	Definition string                   `json:"definition"`
	Trigger    runtime.ExecutionTrigger `json:"trigger"`
	NextRunAt  *time.Time               `json:"nextRunAt"`
}

// runWorkflow creates the execution and its phase rows, then starts the
// runtime in the background and returns the execution id. Published
// workflows run their frozen plan; drafts are compiled from the submitted
// definition.
func (s *Server) runWorkflow(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	wf, ok := s.loadOwnedWorkflow(c, uid)
	if !ok {
		return
	}

	definition := req.Definition
	if wf.Status == runtime.WorkflowPublished {
		definition = wf.Definition
	} else if definition == "" {
		definition = wf.Definition
	}
	if definition == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "flow definition is not defined"})
		return
	}

	def, err := runtime.ParseFlowDefinition(definition)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	plan, planErr := runtime.CompilePlan(def.Nodes, def.Edges)
	if planErr != nil {
		// No execution row is created for an invalid graph.
		c.JSON(http.StatusBadRequest, gin.H{"error": planErr.Kind, "invalidElements": planErr.Invalid})
		return
	}

	trigger := req.Trigger
	if trigger == "" {
		trigger = runtime.TriggerManual
	}

	execution := buildExecution(wf, uid, definition, plan, trigger)
	if err := s.store.CreateExecution(c.Request.Context(), execution); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	go func() {
		if err := s.runner.Execute(contextWithoutCancel(c), execution.ID, req.NextRunAt); err != nil {
			s.l.Error("execution failed",
				"execution", execution.ID,
				"workflow", wf.ID,
				"error", err.Error())
		}
	}()

	c.JSON(http.StatusCreated, gin.H{"executionId": execution.ID})
}

func (s *Server) getExecution(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ex, err := s.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil || ex.UserID != uid {
		c.JSON(http.StatusNotFound, gin.H{"message": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, executionView(ex))
}

func (s *Server) getPhase(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	ex, err := s.store.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil || ex.UserID != uid {
		c.JSON(http.StatusNotFound, gin.H{"message": "execution not found"})
		return
	}
	phaseID := c.Param("phaseId")
	for _, p := range ex.Phases {
		if p.ID != phaseID {
			continue
		}
		logs, err := s.store.GetPhaseLogs(c.Request.Context(), phaseID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, phaseView(p, logs))
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "phase not found"})
}

type credentialRequest struct {
	Name  string `json:"name" binding:"required"`
	Value string `json:"value" binding:"required"`
}

func (s *Server) createCredential(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	encrypted, err := s.cipher.Encrypt(req.Value)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	cred := &runtime.Credential{
		ID:     uuid.New().String(),
		UserID: uid,
		Name:   req.Name,
		Value:  encrypted,
	}
	if err := s.store.CreateCredential(c.Request.Context(), cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": cred.ID})
}

func (s *Server) getBalance(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	credits, err := s.ledger.Balance(c.Request.Context(), uid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}

func (s *Server) loadOwnedWorkflow(c *gin.Context, uid string) (*runtime.Workflow, bool) {
	wf, err := s.store.GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, runtime.ErrNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"message": "workflow not found"})
		return nil, false
	}
	if wf.UserID != uid {
		c.JSON(http.StatusNotFound, gin.H{"message": "workflow not found"})
		return nil, false
	}
	return wf, true
}
