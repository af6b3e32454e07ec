// Package compiler turns a workflow.Description into an ExecutionGraph: a
// validated, topologically ordered structure the Execution Engine can run
// directly, with no further reference back to the catalog.
package compiler

import "github.com/atworkflow/engine/internal/workflow"

// ExecutionNode is one compiled step, carrying everything the Engine needs
// without consulting the catalog again.
type ExecutionNode struct {
	ID              string
	Type            string
	Label           string
	Config          map[string]interface{}
	RetryPolicy     *workflow.RetryPolicy
	TimeoutMs       int64
	Disabled        bool
	RequiresSession bool
	EndsSession     bool
	// Ordinal is this node's position in the topological execution order.
	Ordinal int

	Incoming []EdgeRef
	Outgoing []EdgeRef
}

// EdgeRef is one connection between two compiled nodes.
type EdgeRef struct {
	EdgeID       string
	From         string
	To           string
	SourceHandle string
	TargetHandle string
	Condition    string
}

// ExecutionGraph is the Compiler's output.
type ExecutionGraph struct {
	WorkflowID      string
	WorkflowVersion int
	TriggerNodeID   string

	Nodes map[string]*ExecutionNode
	// Order is the topological execution order: every predecessor precedes
	// every successor.
	Order []string

	RequiresSession bool
	HasSessionEnd   bool
	MaxDepth        int
}
