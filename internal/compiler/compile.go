package compiler

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/atworkflow/engine/internal/catalog"
	"github.com/atworkflow/engine/internal/workflow"
)

var structValidator = validator.New()

// Compiler runs the compile pipeline against a fixed catalog snapshot and
// caches compiled graphs by (workflow_id, version). The Compiler is pure
// over its inputs and the catalog, so the cache never needs invalidation
// beyond the key itself changing.
type Compiler struct {
	catalog *catalog.Catalog

	mu    sync.Mutex
	cache map[string]*ExecutionGraph
}

// New returns a Compiler bound to cat.
func New(cat *catalog.Catalog) *Compiler {
	return &Compiler{catalog: cat, cache: make(map[string]*ExecutionGraph)}
}

func cacheKey(id string, version int) string {
	return fmt.Sprintf("%s@%d", id, version)
}

// Compile runs the full pipeline, aborting at the first stage with errors
// and returning every warning collected along the way. On success the
// result is cached under (workflow_id, version).
func (c *Compiler) Compile(desc workflow.Description) (*ExecutionGraph, []Warning, []Error) {
	key := cacheKey(desc.Metadata.ID, desc.Metadata.Version)

	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil, nil
	}
	c.mu.Unlock()

	var warnings []Warning

	if errs := validateStructure(desc); len(errs) > 0 {
		return nil, nil, errs
	}
	if errs := c.checkTypes(desc); len(errs) > 0 {
		return nil, nil, errs
	}
	if errs := c.checkConfigs(desc); len(errs) > 0 {
		return nil, nil, errs
	}

	graph, errs := buildGraph(desc)
	if len(errs) > 0 {
		return nil, nil, errs
	}

	order, errs := topologicalOrder(graph)
	if len(errs) > 0 {
		return nil, nil, errs
	}
	graph.Order = order

	if errs := c.validateSemantics(desc, graph); len(errs) > 0 {
		return nil, nil, errs
	}

	warnings = append(warnings, deadEndWarnings(graph)...)
	c.computeMetadata(graph)

	c.mu.Lock()
	c.cache[key] = graph
	c.mu.Unlock()

	return graph, warnings, nil
}

// Validate runs Compile and discards the resulting graph, for callers that
// only need pass/fail plus diagnostics.
func (c *Compiler) Validate(desc workflow.Description) ([]Warning, []Error) {
	_, warnings, errs := c.Compile(desc)
	return warnings, errs
}

func validateStructure(desc workflow.Description) []Error {
	if err := structValidator.Struct(desc); err != nil {
		return []Error{{Code: CodeSchemaValidation, Detail: err.Error()}}
	}
	if !workflow.TriggerTypes[desc.Trigger.Type] {
		return []Error{{Code: CodeSchemaValidation, NodeID: desc.Trigger.ID, Detail: fmt.Sprintf("type %q is not a trigger type", desc.Trigger.Type)}}
	}
	return nil
}

// declaredNodes returns the trigger followed by every other node. The
// trigger may legitimately also be listed in desc.Nodes under its own id;
// that duplicate is collapsed here rather than reported, so only genuinely
// conflicting ids reach the duplicate check.
func declaredNodes(desc workflow.Description) []workflow.Node {
	nodes := make([]workflow.Node, 0, len(desc.Nodes)+1)
	nodes = append(nodes, desc.Trigger)
	for _, n := range desc.Nodes {
		if n.ID == desc.Trigger.ID && n.Type == desc.Trigger.Type {
			continue
		}
		nodes = append(nodes, n)
	}
	return nodes
}

func (c *Compiler) checkTypes(desc workflow.Description) []Error {
	var errs []Error
	for _, n := range declaredNodes(desc) {
		if _, ok := c.catalog.Lookup(n.Type); !ok {
			errs = append(errs, Error{Code: CodeUnknownNodeType, NodeID: n.ID, Detail: fmt.Sprintf("type %q not in catalog", n.Type)})
		}
	}
	return errs
}

func (c *Compiler) checkConfigs(desc workflow.Description) []Error {
	var errs []Error
	for _, n := range declaredNodes(desc) {
		entry, ok := c.catalog.Lookup(n.Type)
		if !ok {
			continue
		}
		result := entry.ValidateConfig(n.Config)
		if !result.OK {
			for _, fe := range result.Errors {
				errs = append(errs, Error{Code: CodeNodeConfigValidation, NodeID: n.ID, Detail: fmt.Sprintf("%s: %s", fe.Path, fe.Message)})
			}
		}
	}
	return errs
}

func buildGraph(desc workflow.Description) (*ExecutionGraph, []Error) {
	graph := &ExecutionGraph{
		WorkflowID:      desc.Metadata.ID,
		WorkflowVersion: desc.Metadata.Version,
		TriggerNodeID:   desc.Trigger.ID,
		Nodes:           make(map[string]*ExecutionNode),
	}

	var errs []Error
	addNode := func(n workflow.Node) {
		if _, exists := graph.Nodes[n.ID]; exists {
			errs = append(errs, Error{Code: CodeDuplicateNodeID, NodeID: n.ID, Detail: "duplicate node id"})
			return
		}
		var timeoutMs int64
		if n.TimeoutMs != nil {
			timeoutMs = *n.TimeoutMs
		}
		graph.Nodes[n.ID] = &ExecutionNode{
			ID:          n.ID,
			Type:        n.Type,
			Label:       n.Label,
			Config:      n.Config,
			RetryPolicy: n.RetryPolicy,
			TimeoutMs:   timeoutMs,
			Disabled:    n.Disabled,
		}
	}

	for _, n := range declaredNodes(desc) {
		addNode(n)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	for _, e := range desc.Edges {
		ref := EdgeRef{EdgeID: e.ID, From: e.Source, To: e.Target, SourceHandle: e.SourceHandle, TargetHandle: e.TargetHandle, Condition: e.Condition}
		source, ok := graph.Nodes[e.Source]
		if !ok {
			errs = append(errs, Error{Code: CodeSchemaValidation, NodeID: e.Source, Detail: "edge references undeclared source node"})
			continue
		}
		target, ok := graph.Nodes[e.Target]
		if !ok {
			errs = append(errs, Error{Code: CodeSchemaValidation, NodeID: e.Target, Detail: "edge references undeclared target node"})
			continue
		}
		source.Outgoing = append(source.Outgoing, ref)
		target.Incoming = append(target.Incoming, ref)
	}
	if len(errs) > 0 {
		return nil, errs
	}

	return graph, nil
}

// topologicalOrder performs a depth-first visitation from the trigger. A
// back-edge reveals a cycle, except a back-edge into the trigger itself,
// which validateSemantics reports as trigger_has_incoming_edges; a node
// never reached is unreachable. The emitted order is the DFS post-order
// reversed.
func topologicalOrder(graph *ExecutionGraph) ([]string, []Error) {
	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(graph.Nodes))
	for id := range graph.Nodes {
		color[id] = white
	}

	var post []string
	var errs []Error

	var visit func(id string)
	visit = func(id string) {
		color[id] = gray
		node := graph.Nodes[id]
		for _, e := range node.Outgoing {
			switch color[e.To] {
			case white:
				visit(e.To)
			case gray:
				if e.To != graph.TriggerNodeID {
					errs = append(errs, Error{Code: CodeCycleDetected, NodeID: e.To, Detail: fmt.Sprintf("cycle via edge %s", e.EdgeID)})
				}
			}
		}
		color[id] = black
		post = append(post, id)
	}

	visit(graph.TriggerNodeID)

	for id, c := range color {
		if c == white {
			errs = append(errs, Error{Code: CodeUnreachableNode, NodeID: id, Detail: "node not reachable from trigger"})
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	order := make([]string, len(post))
	for i, id := range post {
		order[len(post)-1-i] = id
	}
	return order, nil
}

func (c *Compiler) validateSemantics(desc workflow.Description, graph *ExecutionGraph) []Error {
	var errs []Error

	if len(graph.Nodes[graph.TriggerNodeID].Incoming) > 0 {
		errs = append(errs, Error{Code: CodeTriggerHasIncoming, NodeID: graph.TriggerNodeID, Detail: "trigger node must have no incoming edges"})
	}

	for _, n := range graph.Nodes {
		entry, ok := c.catalog.Lookup(n.Type)
		if !ok {
			continue
		}
		for _, e := range n.Incoming {
			from := graph.Nodes[e.From]
			if len(entry.AllowedIncomingTypes) > 0 && !contains(entry.AllowedIncomingTypes, from.Type) {
				errs = append(errs, Error{Code: CodeInvalidNodeConnection, NodeID: n.ID, Detail: fmt.Sprintf("incoming type %q not allowed", from.Type)})
			}
		}
		for _, e := range n.Outgoing {
			to := graph.Nodes[e.To]
			if len(entry.AllowedOutgoingTypes) > 0 && !contains(entry.AllowedOutgoingTypes, to.Type) {
				errs = append(errs, Error{Code: CodeInvalidNodeConnection, NodeID: n.ID, Detail: fmt.Sprintf("outgoing type %q not allowed", to.Type)})
			}
		}
	}

	if desc.Trigger.Type == "ussd_session_start" {
		hasEnd := false
		for _, n := range graph.Nodes {
			if n.Type == "session_end" {
				hasEnd = true
				break
			}
		}
		if !hasEnd {
			errs = append(errs, Error{Code: CodeUSSDMissingEnd, Detail: "ussd_session_start workflow must have at least one session_end node"})
		}
	}

	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func deadEndWarnings(graph *ExecutionGraph) []Warning {
	var warnings []Warning
	for id, n := range graph.Nodes {
		if len(n.Outgoing) == 0 && n.Type != "session_end" {
			warnings = append(warnings, Warning{Code: WarningDeadEndNode, NodeID: id, Detail: "node has no outgoing edges"})
		}
	}
	return warnings
}

func (c *Compiler) computeMetadata(graph *ExecutionGraph) {
	for _, n := range graph.Nodes {
		entry, ok := c.catalog.Lookup(n.Type)
		if !ok {
			continue
		}
		if entry.RequiresSession {
			graph.RequiresSession = true
		}
		if entry.EndsSession {
			graph.HasSessionEnd = true
			n.EndsSession = true
		}
		n.RequiresSession = entry.RequiresSession
		if n.RetryPolicy == nil && entry.DefaultRetryPolicy != nil {
			d := entry.DefaultRetryPolicy
			n.RetryPolicy = &workflow.RetryPolicy{
				MaxAttempts: d.MaxAttempts, InitialDelayMs: d.InitialDelayMs,
				BackoffMultiplier: d.BackoffMultiplier, MaxDelayMs: d.MaxDelayMs,
				RetryableErrors: d.RetryableErrors,
			}
		}
	}

	depth := make(map[string]int, len(graph.Order))
	maxDepth := 0
	for i, id := range graph.Order {
		node := graph.Nodes[id]
		node.Ordinal = i
		d := depth[id]
		if d > maxDepth {
			maxDepth = d
		}
		for _, e := range node.Outgoing {
			if d+1 > depth[e.To] {
				depth[e.To] = d + 1
			}
		}
	}
	graph.MaxDepth = maxDepth
}
