// Package memory provides an in-process Store and CreditLedger, used by the
// test suite and for running the engine without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"flowforge/runtime"
)

type Store struct {
	mu          sync.Mutex
	workflows   map[string]*runtime.Workflow
	executions  map[string]*runtime.Execution
	phases      map[string]*runtime.ExecutionPhase
	logs        map[string][]runtime.LogEntry
	credentials map[string]*runtime.Credential
}

func NewStore() *Store {
	return &Store{
		workflows:   make(map[string]*runtime.Workflow),
		executions:  make(map[string]*runtime.Execution),
		phases:      make(map[string]*runtime.ExecutionPhase),
		logs:        make(map[string][]runtime.LogEntry),
		credentials: make(map[string]*runtime.Credential),
	}
}

var _ runtime.Store = (*Store)(nil)

func (s *Store) CreateWorkflow(_ context.Context, wf *runtime.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (*runtime.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, runtime.ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

func (s *Store) UpdateWorkflow(_ context.Context, wf *runtime.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[wf.ID]; !ok {
		return runtime.ErrNotFound
	}
	cp := *wf
	s.workflows[wf.ID] = &cp
	return nil
}

func (s *Store) MarkWorkflowRunStarted(_ context.Context, workflowID, executionID string, at time.Time, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return runtime.ErrNotFound
	}
	wf.LastRunID = executionID
	wf.LastRunStatus = runtime.ExecutionRunning
	wf.LastRunAt = &at
	if nextRunAt != nil {
		wf.NextRunAt = nextRunAt
	}
	return nil
}

func (s *Store) UpdateWorkflowLastRunStatus(_ context.Context, workflowID, executionID string, status runtime.ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return runtime.ErrNotFound
	}
	if wf.LastRunID != executionID {
		// A newer run owns the pointer; leave it alone.
		return nil
	}
	wf.LastRunStatus = status
	return nil
}

func (s *Store) CreateExecution(_ context.Context, ex *runtime.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	cp := *ex
	cp.Phases = nil
	for _, p := range ex.Phases {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.ExecutionID = ex.ID
		pcp := *p
		s.phases[p.ID] = &pcp
	}
	s.executions[ex.ID] = &cp
	return nil
}

func (s *Store) GetExecution(_ context.Context, id string) (*runtime.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.executions[id]
	if !ok {
		return nil, runtime.ErrNotFound
	}
	cp := *ex
	for _, p := range s.phases {
		if p.ExecutionID == id {
			pcp := *p
			cp.Phases = append(cp.Phases, &pcp)
		}
	}
	sort.Slice(cp.Phases, func(i, j int) bool {
		if cp.Phases[i].Number != cp.Phases[j].Number {
			return cp.Phases[i].Number < cp.Phases[j].Number
		}
		return cp.Phases[i].ID < cp.Phases[j].ID
	})
	return &cp, nil
}

func (s *Store) MarkExecutionStarted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.executions[id]
	if !ok {
		return runtime.ErrNotFound
	}
	ex.Status = runtime.ExecutionRunning
	ex.StartedAt = &at
	return nil
}

func (s *Store) MarkExecutionFinished(_ context.Context, id string, status runtime.ExecutionStatus, at time.Time, creditsConsumed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.executions[id]
	if !ok {
		return runtime.ErrNotFound
	}
	ex.Status = status
	ex.CompletedAt = &at
	ex.CreditsConsumed = creditsConsumed
	return nil
}

func (s *Store) MarkPhasesPending(_ context.Context, executionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.phases {
		if p.ExecutionID == executionID {
			p.Status = runtime.PhasePending
		}
	}
	return nil
}

func (s *Store) MarkPhaseStarted(_ context.Context, phaseID string, at time.Time, inputs string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.phases[phaseID]
	if !ok {
		return runtime.ErrNotFound
	}
	p.Status = runtime.PhaseRunning
	p.StartedAt = &at
	p.Inputs = inputs
	return nil
}

func (s *Store) MarkPhaseFinished(_ context.Context, phaseID string, status runtime.PhaseStatus, at time.Time, outputs string, creditsConsumed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.phases[phaseID]
	if !ok {
		return runtime.ErrNotFound
	}
	p.Status = status
	p.CompletedAt = &at
	p.Outputs = outputs
	p.CreditsConsumed = creditsConsumed
	return nil
}

func (s *Store) AppendLogs(_ context.Context, phaseID string, entries []runtime.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		e.ID = uuid.New().String()
		e.PhaseID = phaseID
		s.logs[phaseID] = append(s.logs[phaseID], e)
	}
	return nil
}

func (s *Store) GetPhaseLogs(_ context.Context, phaseID string) ([]runtime.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]runtime.LogEntry, len(s.logs[phaseID]))
	copy(out, s.logs[phaseID])
	return out, nil
}

func (s *Store) CreateCredential(_ context.Context, c *runtime.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	cp := *c
	s.credentials[c.ID] = &cp
	return nil
}

func (s *Store) GetCredential(_ context.Context, userID, id string) (*runtime.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[id]
	if !ok || c.UserID != userID {
		return nil, runtime.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Ledger is an in-memory CreditLedger. The mutex makes TryDecrement atomic
// across concurrent executions, mirroring the conditional UPDATE the
// Postgres ledger issues.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]int)}
}

var _ runtime.CreditLedger = (*Ledger)(nil)

// SetBalance seeds a user balance.
func (l *Ledger) SetBalance(userID string, credits int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = credits
}

func (l *Ledger) Balance(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *Ledger) TryDecrement(_ context.Context, userID string, amount int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return false, nil
	}
	l.balances[userID] -= amount
	return true, nil
}
