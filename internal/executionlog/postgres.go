package executionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/atworkflow/engine/internal/runtime"
)

// PostgresStore is the durable Execution Log, backed by a single
// executions table holding the results slice as a JSONB column.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an already-open *sqlx.DB.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the executions table, applied by migrations run
// outside this package.
const Schema = `
CREATE TABLE IF NOT EXISTS executions (
	execution_id     TEXT PRIMARY KEY,
	workflow_id      TEXT NOT NULL,
	workflow_version INTEGER NOT NULL,
	state            TEXT NOT NULL,
	results          JSONB NOT NULL DEFAULT '[]',
	started_at       TIMESTAMPTZ NOT NULL,
	completed_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_executions_workflow_id ON executions (workflow_id);
CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions (started_at DESC);
`

type executionRow struct {
	ExecutionID     string         `db:"execution_id"`
	WorkflowID      string         `db:"workflow_id"`
	WorkflowVersion int            `db:"workflow_version"`
	State           string         `db:"state"`
	Results         []byte         `db:"results"`
	StartedAt       time.Time      `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
}

func (row executionRow) toLog() (*Log, error) {
	var results []runtime.NodeExecutionResult
	if len(row.Results) > 0 {
		if err := json.Unmarshal(row.Results, &results); err != nil {
			return nil, err
		}
	}
	log := &Log{
		ExecutionID:     row.ExecutionID,
		WorkflowID:      row.WorkflowID,
		WorkflowVersion: row.WorkflowVersion,
		State:           State(row.State),
		Results:         results,
		StartedAt:       row.StartedAt,
	}
	if row.CompletedAt.Valid {
		log.CompletedAt = &row.CompletedAt.Time
	}
	return log, nil
}

func (s *PostgresStore) LogStart(executionID, workflowID string, version int) error {
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, workflow_id, workflow_version, state, results, started_at)
		VALUES ($1, $2, $3, $4, '[]', now())
		ON CONFLICT (execution_id) DO NOTHING
	`, executionID, workflowID, version, StateRunning)
	return err
}

func (s *PostgresStore) LogNode(executionID string, result runtime.NodeExecutionResult) error {
	ctx := context.Background()
	blob, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE executions SET results = results || $2::jsonb WHERE execution_id = $1
	`, executionID, fmt.Sprintf("[%s]", blob))
	return err
}

func (s *PostgresStore) LogEnd(executionID string, state State) error {
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `
		UPDATE executions SET state = $2, completed_at = now() WHERE execution_id = $1
	`, executionID, state)
	return err
}

func (s *PostgresStore) Get(executionID string) (*Log, error) {
	ctx := context.Background()
	var row executionRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM executions WHERE execution_id = $1`, executionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toLog()
}

func (s *PostgresStore) Query(q Query) ([]*Log, error) {
	ctx := context.Background()

	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.WorkflowID != "" {
		conditions = append(conditions, "workflow_id = "+arg(q.WorkflowID))
	}
	if q.State != "" {
		conditions = append(conditions, "state = "+arg(q.State))
	}
	if q.StartedAtFrom != nil {
		conditions = append(conditions, "started_at >= "+arg(*q.StartedAtFrom))
	}
	if q.StartedAtTo != nil {
		conditions = append(conditions, "started_at <= "+arg(*q.StartedAtTo))
	}

	query := "SELECT * FROM executions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d", q.effectiveLimit())

	var rows []executionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	logs := make([]*Log, 0, len(rows))
	for _, row := range rows {
		log, err := row.toLog()
		if err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, nil
}
