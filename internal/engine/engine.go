// Package engine is the Execution Engine: it walks a compiled
// ExecutionGraph in topological order, dispatching each node through the
// Action Dispatcher, handling retries, conditional routing, merge
// rendezvous, and session lifecycle.
package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/atworkflow/engine/internal/catalog"
	"github.com/atworkflow/engine/internal/compiler"
	"github.com/atworkflow/engine/internal/dispatcher"
	"github.com/atworkflow/engine/internal/executionlog"
	"github.com/atworkflow/engine/internal/metrics"
	"github.com/atworkflow/engine/internal/render"
	"github.com/atworkflow/engine/internal/runtime"
	"github.com/atworkflow/engine/internal/session"
)

// State is the terminal (or in-flight) status of one invocation.
type State string

const (
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Options configures one invocation.
type Options struct {
	MaxExecutionMs int64
	EnableRetries  bool
	Resumable      bool
}

func (o Options) maxExecutionDuration() time.Duration {
	ms := o.MaxExecutionMs
	if ms <= 0 {
		ms = 300_000
	}
	return time.Duration(ms) * time.Millisecond
}

// ExecutionResult is what Execute returns. Output is the final variable
// map: the trigger payload overlaid with every successful node's output.
type ExecutionResult struct {
	ExecutionID string
	State       State
	Results     []runtime.NodeExecutionResult
	Output      map[string]interface{}
	Err         *runtime.NodeError
}

// Engine ties the catalog, dispatcher, session store, and execution log
// together to run compiled graphs.
type Engine struct {
	catalog    *catalog.Catalog
	dispatcher *dispatcher.Registry
	sessions   session.Store
	log        executionlog.Store
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New builds an Engine. log and m may be nil to skip logging/metrics.
func New(cat *catalog.Catalog, reg *dispatcher.Registry, sessions session.Store, log executionlog.Store, m *metrics.Metrics) *Engine {
	return &Engine{catalog: cat, dispatcher: reg, sessions: sessions, log: log, metrics: m, now: time.Now}
}

// nodeState tracks what happened to one node during this invocation, used
// for gating downstream nodes and for merge-node input assembly.
type nodeState struct {
	executed  bool
	skipped   bool
	succeeded bool
	handle    string
	output    map[string]interface{}
}

// Execute runs graph to completion, failure, or cancellation.
func (e *Engine) Execute(ctx context.Context, graph *compiler.ExecutionGraph, triggerPayload map[string]interface{}, sess *runtime.SessionHandle, opts Options) (*ExecutionResult, error) {
	if graph.RequiresSession && sess == nil {
		return nil, fmt.Errorf("workflow requires an active session but none was supplied")
	}

	executionID := uuid.NewString()
	startedAt := e.now()
	deadline := startedAt.Add(opts.maxExecutionDuration())

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	variables := make(map[string]interface{}, len(triggerPayload))
	for k, v := range triggerPayload {
		variables[k] = v
	}

	execCtx := &runtime.ExecutionContext{
		ExecutionID: executionID, WorkflowID: graph.WorkflowID, WorkflowVersion: graph.WorkflowVersion,
		TriggerPayload: triggerPayload, Session: sess, Variables: variables, StartedAt: startedAt,
	}

	if e.log != nil {
		_ = e.log.LogStart(executionID, graph.WorkflowID, graph.WorkflowVersion)
	}

	states := make(map[string]*nodeState, len(graph.Nodes))
	suppressed := make(map[string]bool) // edge id -> suppressed

	var results []runtime.NodeExecutionResult
	var firstErr *runtime.NodeError
	finalState := StateCompleted
	timedOut := false

	for _, nodeID := range graph.Order {
		if nodeID == graph.TriggerNodeID {
			continue
		}

		select {
		case <-ctx.Done():
			finalState, timedOut = e.terminalStateFor(ctx), ctx.Err() == context.DeadlineExceeded
			goto done
		default:
		}

		node := graph.Nodes[nodeID]
		st := &nodeState{}
		states[nodeID] = st

		// 1. Gating.
		if node.Disabled {
			st.executed, st.skipped = true, true
			result := skippedResult(nodeID, "node_disabled")
			results = append(results, result)
			e.logNode(executionID, result)
			continue
		}
		if len(node.Incoming) > 0 && allSuppressed(node.Incoming, suppressed) {
			st.executed, st.skipped = true, true
			// An unselected node can't feed its successors either, so its
			// outgoing edges are suppressed too and the skip cascades.
			for _, e2 := range node.Outgoing {
				suppressed[e2.EdgeID] = true
			}
			result := skippedResult(nodeID, "unselected_branch")
			results = append(results, result)
			e.logNode(executionID, result)
			continue
		}

		// 2. Input assembly.
		input := e.assembleInput(node, states, suppressed, variables, execCtx.Session)

		// 3. Timeout.
		nodeDeadline := deadline
		if node.TimeoutMs > 0 {
			candidate := e.now().Add(time.Duration(node.TimeoutMs) * time.Millisecond)
			if candidate.Before(nodeDeadline) {
				nodeDeadline = candidate
			}
		}
		nodeCtx, nodeCancel := context.WithDeadline(ctx, nodeDeadline)

		// 4-5. Execute via Dispatcher, with retry — except merge, which the
		// Engine itself coordinates (see executeMerge).
		var attempts []runtime.NodeExecutionResult
		var out runtime.HandlerOutput
		if node.Type == "merge" {
			attempts, out = e.executeMerge(node, states)
		} else {
			attempts, out = e.executeWithRetry(nodeCtx, node, execCtx, input, opts)
		}
		nodeCancel()

		// 6. Record: one NodeExecutionResult per attempt.
		st.executed = true
		result := attempts[len(attempts)-1]
		for _, r := range attempts {
			results = append(results, r)
			e.logNode(executionID, r)
			if e.metrics != nil {
				e.metrics.RecordNodeExecution(node.Type, float64(r.DurationMs)/1000)
			}
		}

		if result.Status == runtime.NodeStatusSuccess {
			st.succeeded = true
			st.handle = result.OutputKey
			st.output = result.Output
			// 7. Propagate.
			for k, v := range result.Output {
				variables[k] = v
			}
			variables["node_"+nodeID] = result.Output
		} else if node.Type == "retry" {
			// A retry node's own retry_policy is exhausted here: routing to
			// max_retries is the node's designed outcome, not a failure of
			// the invocation.
			st.succeeded = true
			st.handle = "max_retries"
			st.output = input
			out.Handle = "max_retries"
			for k, v := range input {
				variables[k] = v
			}
			variables["node_"+nodeID] = input
		} else if handle, ok := errorBranch(node); ok {
			// An unrecovered error with a fallback branch is handled, not
			// fatal: route the structured error down the error edge.
			st.succeeded = true
			st.handle = handle
			st.output = errorOutput(result.Err)
			out.Handle = handle
			variables["node_"+nodeID] = st.output
		} else if firstErr == nil && result.Err != nil {
			firstErr = result.Err
			finalState = StateFailed
		}

		// 8. Conditional routing.
		if out.Handle != "" {
			for _, e2 := range node.Outgoing {
				if e2.SourceHandle != "" && e2.SourceHandle != out.Handle {
					suppressed[e2.EdgeID] = true
				}
			}
		}

		// An unrecovered failure with no fallback branch aborts the walk;
		// the result carries the error and the partial node results.
		if finalState == StateFailed {
			// The failure may be the invocation deadline surfacing through
			// the in-flight node.
			timedOut = ctx.Err() == context.DeadlineExceeded || !e.now().Before(deadline)
			break
		}

		// 9. Session termination.
		if node.EndsSession && st.succeeded {
			break
		}

		// 10. Invocation deadline.
		select {
		case <-ctx.Done():
			finalState, timedOut = e.terminalStateFor(ctx), ctx.Err() == context.DeadlineExceeded
			goto done
		default:
		}
	}

done:
	if timedOut {
		finalState = StateFailed
		// A deadline_exceeded recorded on the way down was this same
		// invocation deadline surfacing through the in-flight node.
		if firstErr == nil || firstErr.Code == "deadline_exceeded" {
			firstErr = runtime.NewError("execution_timeout", "invocation exceeded max_execution_ms", runtime.ErrorTypeTransient)
		}
	}
	if e.log != nil {
		logState := executionlog.StateCompleted
		switch {
		case timedOut:
			logState = executionlog.StateTimeout
		case finalState == StateFailed:
			logState = executionlog.StateFailed
		case finalState == StateCancelled:
			logState = executionlog.StateCancelled
		}
		_ = e.log.LogEnd(executionID, logState)
	}
	if e.metrics != nil {
		e.metrics.RecordWorkflowExecution(string(finalState))
	}

	return &ExecutionResult{ExecutionID: executionID, State: finalState, Results: results, Output: variables, Err: firstErr}, nil
}

// errorBranch reports whether node declares a fallback edge for failed
// executions, returning the handle name to route down.
func errorBranch(node *compiler.ExecutionNode) (string, bool) {
	for _, e := range node.Outgoing {
		if e.SourceHandle == "error" {
			return "error", true
		}
	}
	return "", false
}

func errorOutput(err *runtime.NodeError) map[string]interface{} {
	if err == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"error": map[string]interface{}{
			"code":    err.Code,
			"message": err.Message,
			"type":    string(err.Type),
		},
	}
}

func (e *Engine) terminalStateFor(ctx context.Context) State {
	if ctx.Err() == context.DeadlineExceeded {
		return StateFailed
	}
	return StateCancelled
}

func (e *Engine) logNode(executionID string, result runtime.NodeExecutionResult) {
	if e.log != nil {
		_ = e.log.LogNode(executionID, result)
	}
}

func allSuppressed(incoming []compiler.EdgeRef, suppressed map[string]bool) bool {
	for _, e := range incoming {
		if !suppressed[e.EdgeID] {
			return false
		}
	}
	return true
}

// assembleInput merges the output of every non-suppressed, successfully
// produced predecessor, then composes the node scope (render.Scope):
// context variables underneath so triggers and prior outputs stay
// addressable, the merged predecessor output on top so the node sees what
// its incoming edges actually carried, and the well-known "session" scope
// last. Because nodes execute in topological order, every predecessor of
// node (including every predecessor of a multi-input merge node) has
// already run by the time node is reached, so no separate buffering step
// is needed for merge rendezvous.
func (e *Engine) assembleInput(node *compiler.ExecutionNode, states map[string]*nodeState, suppressed map[string]bool, variables map[string]interface{}, sess *runtime.SessionHandle) map[string]interface{} {
	predecessorOutput := make(map[string]interface{})

	for _, edge := range node.Incoming {
		if suppressed[edge.EdgeID] {
			continue
		}
		st, ok := states[edge.From]
		if !ok || !st.succeeded {
			continue
		}
		for k, v := range st.output {
			predecessorOutput[k] = v
		}
	}

	return render.Scope(predecessorOutput, variables, sessionScope(sess))
}

// sessionScope builds the "session" well-known key that templates like
// "{{session.data.step}}" resolve against. Returns nil when no session is
// attached to this invocation.
func sessionScope(sess *runtime.SessionHandle) map[string]interface{} {
	if sess == nil {
		return nil
	}
	return map[string]interface{}{
		"session": map[string]interface{}{
			"session_id": sess.SessionID,
			"channel":    sess.Channel,
			"subscriber": sess.Subscriber,
			"data":       sess.Data,
			"active":     sess.Active,
		},
	}
}

// executeMerge coordinates a merge node's join directly, rather than
// through the dispatcher: combining the raw per-edge outputs a strategy
// needs isn't expressible through the flattened scope executeWithRetry's
// handlers receive. Because nodes run strictly in topological order, every
// predecessor (gating already required at least one non-suppressed) has
// already executed by the time the node is reached, so no buffering beyond
// the existing nodeState map is needed.
func (e *Engine) executeMerge(node *compiler.ExecutionNode, states map[string]*nodeState) ([]runtime.NodeExecutionResult, runtime.HandlerOutput) {
	strategy, _ := node.Config["strategy"].(string)

	var outputs []map[string]interface{}
	for _, edge := range node.Incoming {
		st, ok := states[edge.From]
		if !ok || !st.succeeded {
			continue
		}
		outputs = append(outputs, st.output)
	}

	var combined map[string]interface{}
	switch strategy {
	case "first":
		combined = firstOrEmpty(outputs)
	case "last":
		combined = firstOrEmpty(reverseOf(outputs))
	case "all":
		list := make([]interface{}, len(outputs))
		for i, o := range outputs {
			list[i] = o
		}
		combined = map[string]interface{}{"results": list}
	default: // "merge": later predecessors overwrite earlier ones on key collision
		combined = make(map[string]interface{})
		for _, o := range outputs {
			for k, v := range o {
				combined[k] = v
			}
		}
	}

	result := runtime.NodeExecutionResult{
		NodeID: node.ID, Status: runtime.NodeStatusSuccess, Output: combined, OutputKey: "out",
		ExecutedAt: time.Now(), Attempt: 0,
	}
	return []runtime.NodeExecutionResult{result}, runtime.HandlerOutput{Handle: "out", Output: combined}
}

func firstOrEmpty(outputs []map[string]interface{}) map[string]interface{} {
	if len(outputs) == 0 {
		return map[string]interface{}{}
	}
	return outputs[0]
}

func reverseOf(outputs []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, len(outputs))
	for i, o := range outputs {
		out[len(outputs)-1-i] = o
	}
	return out
}

func skippedResult(nodeID, reason string) runtime.NodeExecutionResult {
	return runtime.NodeExecutionResult{
		NodeID: nodeID, Status: runtime.NodeStatusSkipped, Reason: reason, ExecutedAt: time.Now(),
	}
}

// executeWithRetry dispatches node, retrying per its effective retry
// policy when the error is retryable, the caller enabled retries, and
// attempts remain. Every attempt is recorded as its own
// NodeExecutionResult, 0-indexed, so callers can see the full retry
// history rather than just the outcome of the last try.
func (e *Engine) executeWithRetry(ctx context.Context, node *compiler.ExecutionNode, execCtx *runtime.ExecutionContext, input map[string]interface{}, opts Options) ([]runtime.NodeExecutionResult, runtime.HandlerOutput) {
	policy := e.effectivePolicy(node)
	var results []runtime.NodeExecutionResult

	for attempt := 0; ; attempt++ {
		start := time.Now()
		out, dispatchErr := e.dispatcher.Dispatch(ctx, node.Type, execCtx, runtime.HandlerInput{NodeID: node.ID, Config: node.Config, Input: input})
		duration := time.Since(start).Milliseconds()

		if dispatchErr != nil {
			out.Err = runtime.NewError("node_execution_error", dispatchErr.Error(), runtime.ErrorTypePermanent)
		}

		if ctx.Err() == context.DeadlineExceeded && out.Err == nil {
			out.Err = runtime.NewError("deadline_exceeded", "node exceeded its deadline", runtime.ErrorTypeTransient)
		}

		if out.Err == nil {
			results = append(results, runtime.NodeExecutionResult{
				NodeID: node.ID, Status: runtime.NodeStatusSuccess, Output: out.Output, OutputKey: out.Handle,
				DurationMs: duration, ExecutedAt: time.Now(), Attempt: attempt,
			})
			return results, out
		}

		status := runtime.NodeStatusError
		if out.Err.Code == "deadline_exceeded" {
			status = runtime.NodeStatusTimeout
		}
		result := runtime.NodeExecutionResult{
			NodeID: node.ID, Status: status, Err: out.Err, DurationMs: duration,
			ExecutedAt: time.Now(), Attempt: attempt,
		}
		results = append(results, result)

		retryable := opts.EnableRetries && out.Err.Retryable() && retryableByPolicy(policy, out.Err.Code)
		if !retryable || policy == nil || attempt >= policy.MaxAttempts-1 {
			return results, out
		}

		delay := backoffDelay(policy, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return results, out
		}
	}
}

func retryableByPolicy(policy *catalog.DefaultRetryPolicy, code string) bool {
	if policy == nil {
		return false
	}
	if len(policy.RetryableErrors) == 0 {
		return true
	}
	for _, c := range policy.RetryableErrors {
		if c == code {
			return true
		}
	}
	return false
}

// backoffDelay implements delay_i = min(initial * multiplier^i, max),
// 0-indexed on attempt (the delay waited after attempt fails, before the
// next attempt runs).
func backoffDelay(policy *catalog.DefaultRetryPolicy, attempt int) time.Duration {
	delayMs := float64(policy.InitialDelayMs) * math.Pow(policy.BackoffMultiplier, float64(attempt))
	if policy.MaxDelayMs > 0 && delayMs > float64(policy.MaxDelayMs) {
		delayMs = float64(policy.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

func (e *Engine) effectivePolicy(node *compiler.ExecutionNode) *catalog.DefaultRetryPolicy {
	if node.RetryPolicy != nil {
		return &catalog.DefaultRetryPolicy{
			MaxAttempts: node.RetryPolicy.MaxAttempts, InitialDelayMs: node.RetryPolicy.InitialDelayMs,
			BackoffMultiplier: node.RetryPolicy.BackoffMultiplier, MaxDelayMs: node.RetryPolicy.MaxDelayMs,
			RetryableErrors: node.RetryPolicy.RetryableErrors,
		}
	}
	entry, ok := e.catalog.Lookup(node.Type)
	if !ok {
		return nil
	}
	return entry.DefaultRetryPolicy
}
