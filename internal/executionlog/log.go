// Package executionlog is the Execution Log: an append-only record of every
// node result produced during an invocation, queryable by workflow and
// time range.
package executionlog

import (
	"time"

	"github.com/atworkflow/engine/internal/runtime"
)

// State is an execution's terminal or in-flight status.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateTimeout   State = "timeout"
)

// Log is one invocation's full record.
type Log struct {
	ExecutionID     string                       `json:"execution_id"`
	WorkflowID      string                       `json:"workflow_id"`
	WorkflowVersion int                          `json:"workflow_version"`
	State           State                        `json:"state"`
	Results         []runtime.NodeExecutionResult `json:"results"`
	StartedAt       time.Time                     `json:"started_at"`
	CompletedAt     *time.Time                    `json:"completed_at,omitempty"`
}

// Query filters Execution Log entries. Zero-valued fields are unfiltered.
type Query struct {
	WorkflowID    string
	State         State
	StartedAtFrom *time.Time
	StartedAtTo   *time.Time
	Limit         int
}

const maxQueryLimit = 1000

func (q Query) effectiveLimit() int {
	if q.Limit <= 0 || q.Limit > maxQueryLimit {
		return maxQueryLimit
	}
	return q.Limit
}

// Store is the Execution Log contract. Every operation is total and
// idempotent on execution_id.
type Store interface {
	LogStart(executionID, workflowID string, version int) error
	LogNode(executionID string, result runtime.NodeExecutionResult) error
	LogEnd(executionID string, state State) error
	Get(executionID string) (*Log, error)
	Query(q Query) ([]*Log, error)
}
