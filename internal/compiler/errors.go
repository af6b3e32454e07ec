package compiler

import "fmt"

// Code identifies which compiler stage produced an error, matching the
// failure codes named for the pipeline.
type Code string

const (
	CodeSchemaValidation      Code = "schema_validation_error"
	CodeUnknownNodeType       Code = "unknown_node_type"
	CodeNodeConfigValidation  Code = "node_config_validation_error"
	CodeCycleDetected         Code = "cycle_detected"
	CodeUnreachableNode       Code = "unreachable_node"
	CodeTriggerHasIncoming    Code = "trigger_has_incoming_edges"
	CodeInvalidNodeConnection Code = "invalid_node_connection"
	CodeUSSDMissingEnd        Code = "ussd_missing_session_end"
	CodeDuplicateNodeID       Code = "duplicate_node_id"
)

// Error is one compile-time failure.
type Error struct {
	Code   Code
	NodeID string
	Detail string
}

func (e Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %q: %s", e.Code, e.NodeID, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// WarningCode identifies a non-fatal compiler observation.
type WarningCode string

const (
	WarningDeadEndNode WarningCode = "dead_end_node"
)

// Warning is a non-fatal compiler observation.
type Warning struct {
	Code   WarningCode
	NodeID string
	Detail string
}
