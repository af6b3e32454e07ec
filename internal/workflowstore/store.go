// Package workflowstore persists workflow descriptions. Descriptions are
// versioned documents: saving never overwrites an earlier version, and the
// scheduler enumerates stored descriptions by trigger type.
package workflowstore

import (
	"errors"

	"github.com/atworkflow/engine/internal/workflow"
)

var ErrNotFound = errors.New("workflow_not_found")

// Store is the workflow repository contract; both the in-memory and
// Postgres-backed implementations satisfy it identically.
type Store interface {
	Save(desc workflow.Description) error
	Get(id string, version int) (*workflow.Description, error)
	Latest(id string) (*workflow.Description, error)
	ListByTriggerType(triggerType string) ([]workflow.Description, error)
}
