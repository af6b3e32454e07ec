// Package workflow holds the WorkflowDescription data model: the
// user-authored, JSON-serializable input to the Compiler.
package workflow

import "time"

// Metadata identifies a WorkflowDescription.
type Metadata struct {
	ID          string    `json:"id" validate:"required,uuid"`
	Version     int       `json:"version" validate:"required,min=1"`
	Name        string    `json:"name" validate:"required,min=1,max=255"`
	Description string    `json:"description,omitempty"`
	Author      string    `json:"author,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Environment string    `json:"environment,omitempty"`
}

// Position is the UI canvas position of a node; carried through untouched
// since the builder UI is out of scope but still needs a round-trip shape.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RetryPolicy overrides a node's catalog-default retry behavior.
type RetryPolicy struct {
	MaxAttempts      int      `json:"max_attempts" validate:"min=1"`
	InitialDelayMs   int64    `json:"initial_delay_ms" validate:"min=0"`
	BackoffMultiplier float64 `json:"backoff_multiplier" validate:"min=1"`
	MaxDelayMs       int64    `json:"max_delay_ms" validate:"min=0"`
	RetryableErrors  []string `json:"retryable_errors,omitempty"`
}

// Node is one step in a workflow.
type Node struct {
	ID          string                 `json:"id" validate:"required"`
	Type        string                 `json:"type" validate:"required"`
	Label       string                 `json:"label,omitempty"`
	Config      map[string]interface{} `json:"config,omitempty"`
	RetryPolicy *RetryPolicy           `json:"retry_policy,omitempty"`
	TimeoutMs   *int64                 `json:"timeout_ms,omitempty"`
	Disabled    bool                   `json:"disabled,omitempty"`
	Position    *Position              `json:"position,omitempty"`
}

// Edge connects a source node's output handle to a target node's input.
type Edge struct {
	ID           string `json:"id" validate:"required"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
	Condition    string `json:"condition,omitempty"`
	Label        string `json:"label,omitempty"`
}

// Description is the full, user-authored workflow: the Compiler's input.
type Description struct {
	Metadata Metadata `json:"metadata" validate:"required"`
	Trigger  Node     `json:"trigger" validate:"required"`
	Nodes    []Node   `json:"nodes" validate:"required,dive"`
	Edges    []Edge   `json:"edges" validate:"dive"`
}

// TriggerTypes is the set of node types allowed to be the workflow's trigger.
var TriggerTypes = map[string]bool{
	"sms_received":       true,
	"ussd_session_start": true,
	"incoming_call":      true,
	"payment_callback":   true,
	"scheduled":          true,
	"http_webhook":       true,
}
