// Package runtime holds the data shapes shared by the catalog, dispatcher,
// and engine packages, so none of those three needs to import another to get
// at a type it passes but does not own.
package runtime

import "time"

// ErrorType is the retry-eligibility classification of a NodeError.
type ErrorType string

const (
	ErrorTypeTransient  ErrorType = "transient"
	ErrorTypePermanent  ErrorType = "permanent"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeValidation ErrorType = "validation"
)

// NodeError is the structured error value every handler and the engine use
// in place of a thrown exception.
type NodeError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Type    ErrorType              `json:"type"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *NodeError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Retryable reports whether errors of this type are retry-eligible by
// default (a node's retry policy may still narrow this by error code).
func (e *NodeError) Retryable() bool {
	return e != nil && (e.Type == ErrorTypeTransient || e.Type == ErrorTypeRateLimit)
}

// NewError builds a NodeError, defaulting Details to nil.
func NewError(code, message string, t ErrorType) *NodeError {
	return &NodeError{Code: code, Message: message, Type: t}
}

// NodeStatus is the outcome of one attempt to execute a node.
type NodeStatus string

const (
	NodeStatusSuccess NodeStatus = "success"
	NodeStatusError   NodeStatus = "error"
	NodeStatusSkipped NodeStatus = "skipped"
	NodeStatusTimeout NodeStatus = "timeout"
)

// NodeExecutionResult is recorded once per attempt per node.
type NodeExecutionResult struct {
	NodeID     string                 `json:"node_id"`
	Status     NodeStatus             `json:"status"`
	Output     map[string]interface{} `json:"output,omitempty"`
	OutputKey  string                 `json:"output_key,omitempty"` // the handle the handler selected, e.g. "success", "true"
	Err        *NodeError             `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
	ExecutedAt time.Time              `json:"executed_at"`
	Attempt    int                    `json:"attempt"`
	Reason     string                 `json:"reason,omitempty"` // e.g. "unselected_branch" for skipped nodes
}

// SessionHandle is the subset of SessionRecord the engine and handlers need;
// it avoids a dependency cycle between runtime and the session package.
type SessionHandle struct {
	SessionID  string
	Channel    string
	Subscriber string
	Data       map[string]interface{}
	Active     bool
}

// ExecutionContext is the per-invocation mutable state threaded through the
// engine. It is owned exclusively by the engine for the lifetime of one
// invocation and is never shared across invocations.
type ExecutionContext struct {
	ExecutionID     string
	WorkflowID      string
	WorkflowVersion int
	TriggerPayload  map[string]interface{}
	Session         *SessionHandle
	Variables       map[string]interface{}
	StartedAt       time.Time
}

// HandlerInput is what the Dispatcher passes to a handler: the node's
// resolved configuration and the assembled input for this invocation.
type HandlerInput struct {
	NodeID string
	Config map[string]interface{}
	Input  map[string]interface{}
}

// HandlerOutput is what a handler returns to the engine: the chosen output
// handle (e.g. "success", "true", a switch case label) and the payload to
// merge into context variables when that handle is selected.
type HandlerOutput struct {
	Handle string
	Output map[string]interface{}
	Err    *NodeError
}
