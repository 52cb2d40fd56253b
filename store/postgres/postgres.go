// Package postgres implements the runtime Store and CreditLedger on
// PostgreSQL via database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"flowforge/runtime"
)

// Config holds the connection pool settings.
type Config struct {
	ConnectionString  string `yaml:"connection_string" validate:"dsn"`
	MaxOpenConns      int    `yaml:"max_open_conns" default:"10" validate:"gte=1,lte=100"`
	MaxIdleConns      int    `yaml:"max_idle_conns" default:"5" validate:"gte=0,lte=50"`
	ConnMaxLifetimeMs int    `yaml:"conn_max_lifetime_ms" default:"300000" validate:"gte=0"`
}

type Store struct {
	db *sql.DB
}

var _ runtime.Store = (*Store)(nil)

// Open connects the pool and verifies the connection.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMs) * time.Millisecond)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("postgres: failed to ping: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("postgres: migration failed: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	name             TEXT NOT NULL,
	status           TEXT NOT NULL,
	definition       TEXT NOT NULL DEFAULT '',
	execution_plan   TEXT NOT NULL DEFAULT '',
	credits_cost     INT  NOT NULL DEFAULT 0,
	cron             TEXT NOT NULL DEFAULT '',
	last_run_id      TEXT NOT NULL DEFAULT '',
	last_run_status  TEXT NOT NULL DEFAULT '',
	last_run_at      TIMESTAMPTZ,
	next_run_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS executions (
	id               TEXT PRIMARY KEY,
	workflow_id      TEXT NOT NULL REFERENCES workflows(id),
	user_id          TEXT NOT NULL,
	status           TEXT NOT NULL,
	trigger          TEXT NOT NULL,
	definition       TEXT NOT NULL,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	credits_consumed INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS execution_phases (
	id               TEXT PRIMARY KEY,
	execution_id     TEXT NOT NULL REFERENCES executions(id),
	user_id          TEXT NOT NULL,
	number           INT  NOT NULL,
	name             TEXT NOT NULL,
	node             TEXT NOT NULL,
	status           TEXT NOT NULL,
	started_at       TIMESTAMPTZ,
	completed_at     TIMESTAMPTZ,
	inputs           TEXT NOT NULL DEFAULT '',
	outputs          TEXT NOT NULL DEFAULT '',
	credits_consumed INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS execution_logs (
	id        TEXT PRIMARY KEY,
	phase_id  TEXT NOT NULL REFERENCES execution_phases(id),
	message   TEXT NOT NULL,
	level     TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS credentials (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name    TEXT NOT NULL,
	value   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_balances (
	user_id TEXT PRIMARY KEY,
	credits INT NOT NULL DEFAULT 0
);
`

func (s *Store) CreateWorkflow(ctx context.Context, wf *runtime.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, user_id, name, status, definition, execution_plan, credits_cost, cron)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		wf.ID, wf.UserID, wf.Name, wf.Status, wf.Definition, wf.ExecutionPlan, wf.CreditsCost, wf.Cron)
	return err
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*runtime.Workflow, error) {
	var wf runtime.Workflow
	var lastRunAt, nextRunAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, status, definition, execution_plan, credits_cost, cron,
		        last_run_id, last_run_status, last_run_at, next_run_at
		 FROM workflows WHERE id = $1`, id).
		Scan(&wf.ID, &wf.UserID, &wf.Name, &wf.Status, &wf.Definition, &wf.ExecutionPlan,
			&wf.CreditsCost, &wf.Cron, &wf.LastRunID, &wf.LastRunStatus, &lastRunAt, &nextRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runtime.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		wf.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		wf.NextRunAt = &nextRunAt.Time
	}
	return &wf, nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, wf *runtime.Workflow) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET name=$2, status=$3, definition=$4, execution_plan=$5, credits_cost=$6, cron=$7
		 WHERE id=$1`,
		wf.ID, wf.Name, wf.Status, wf.Definition, wf.ExecutionPlan, wf.CreditsCost, wf.Cron)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkWorkflowRunStarted(ctx context.Context, workflowID, executionID string, at time.Time, nextRunAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows
		 SET last_run_id=$2, last_run_status=$3, last_run_at=$4,
		     next_run_at=COALESCE($5, next_run_at)
		 WHERE id=$1`,
		workflowID, executionID, runtime.ExecutionRunning, at, nullableTime(nextRunAt))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) UpdateWorkflowLastRunStatus(ctx context.Context, workflowID, executionID string, status runtime.ExecutionStatus) error {
	// Guarded update: only while this execution still owns the pointer.
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET last_run_status=$3 WHERE id=$1 AND last_run_id=$2`,
		workflowID, executionID, status)
	return err
}

func (s *Store) CreateExecution(ctx context.Context, ex *runtime.Execution) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, user_id, status, trigger, definition, credits_consumed)
		 VALUES ($1, $2, $3, $4, $5, $6, 0)`,
		ex.ID, ex.WorkflowID, ex.UserID, ex.Status, ex.Trigger, ex.Definition)
	if err != nil {
		return err
	}
	for _, p := range ex.Phases {
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		p.ExecutionID = ex.ID
		_, err = tx.ExecContext(ctx,
			`INSERT INTO execution_phases (id, execution_id, user_id, number, name, node, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, p.ExecutionID, p.UserID, p.Number, p.Name, p.Node, p.Status)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetExecution(ctx context.Context, id string) (*runtime.Execution, error) {
	var ex runtime.Execution
	var startedAt, completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, user_id, status, trigger, definition, started_at, completed_at, credits_consumed
		 FROM executions WHERE id = $1`, id).
		Scan(&ex.ID, &ex.WorkflowID, &ex.UserID, &ex.Status, &ex.Trigger, &ex.Definition,
			&startedAt, &completedAt, &ex.CreditsConsumed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runtime.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if startedAt.Valid {
		ex.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		ex.CompletedAt = &completedAt.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, user_id, number, name, node, status, started_at, completed_at, inputs, outputs, credits_consumed
		 FROM execution_phases WHERE execution_id = $1 ORDER BY number, id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p runtime.ExecutionPhase
		var pStarted, pCompleted sql.NullTime
		if err := rows.Scan(&p.ID, &p.ExecutionID, &p.UserID, &p.Number, &p.Name, &p.Node,
			&p.Status, &pStarted, &pCompleted, &p.Inputs, &p.Outputs, &p.CreditsConsumed); err != nil {
			return nil, err
		}
		if pStarted.Valid {
			p.StartedAt = &pStarted.Time
		}
		if pCompleted.Valid {
			p.CompletedAt = &pCompleted.Time
		}
		ex.Phases = append(ex.Phases, &p)
	}
	return &ex, rows.Err()
}

func (s *Store) MarkExecutionStarted(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status=$2, started_at=$3 WHERE id=$1`,
		id, runtime.ExecutionRunning, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkExecutionFinished(ctx context.Context, id string, status runtime.ExecutionStatus, at time.Time, creditsConsumed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status=$2, completed_at=$3, credits_consumed=$4 WHERE id=$1`,
		id, status, at, creditsConsumed)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkPhasesPending(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE execution_phases SET status=$2 WHERE execution_id=$1`,
		executionID, runtime.PhasePending)
	return err
}

func (s *Store) MarkPhaseStarted(ctx context.Context, phaseID string, at time.Time, inputs string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_phases SET status=$2, started_at=$3, inputs=$4 WHERE id=$1`,
		phaseID, runtime.PhaseRunning, at, inputs)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) MarkPhaseFinished(ctx context.Context, phaseID string, status runtime.PhaseStatus, at time.Time, outputs string, creditsConsumed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_phases SET status=$2, completed_at=$3, outputs=$4, credits_consumed=$5 WHERE id=$1`,
		phaseID, status, at, outputs, creditsConsumed)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) AppendLogs(ctx context.Context, phaseID string, entries []runtime.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range entries {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO execution_logs (id, phase_id, message, level, timestamp)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New().String(), phaseID, e.Message, e.Level, e.Timestamp)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) GetPhaseLogs(ctx context.Context, phaseID string) ([]runtime.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phase_id, message, level, timestamp
		 FROM execution_logs WHERE phase_id = $1 ORDER BY timestamp, id`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []runtime.LogEntry
	for rows.Next() {
		var e runtime.LogEntry
		if err := rows.Scan(&e.ID, &e.PhaseID, &e.Message, &e.Level, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateCredential(ctx context.Context, c *runtime.Credential) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credentials (id, user_id, name, value) VALUES ($1, $2, $3, $4)`,
		c.ID, c.UserID, c.Name, c.Value)
	return err
}

func (s *Store) GetCredential(ctx context.Context, userID, id string) (*runtime.Credential, error) {
	var c runtime.Credential
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, value FROM credentials WHERE id = $1 AND user_id = $2`,
		id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, runtime.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Ledger implements the atomic conditional decrement on user_balances.
type Ledger struct {
	db *sql.DB
}

func NewLedger(s *Store) *Ledger { return &Ledger{db: s.db} }

var _ runtime.CreditLedger = (*Ledger)(nil)

func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var credits int
	err := l.db.QueryRowContext(ctx,
		`SELECT credits FROM user_balances WHERE user_id = $1`, userID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return credits, err
}

// TryDecrement is a single conditional UPDATE, so concurrent executions can
// never drive a balance negative through a read-then-write race.
func (l *Ledger) TryDecrement(ctx context.Context, userID string, amount int) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`UPDATE user_balances SET credits = credits - $2 WHERE user_id = $1 AND credits >= $2`,
		userID, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return runtime.ErrNotFound
	}
	return nil
}
