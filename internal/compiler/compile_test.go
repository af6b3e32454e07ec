package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atworkflow/engine/internal/catalog"
	"github.com/atworkflow/engine/internal/workflow"
)

func testCompiler(t *testing.T) *Compiler {
	t.Helper()
	cat := catalog.New()
	require.NoError(t, catalog.RegisterDefaults(cat))
	return New(cat)
}

func validDescription() workflow.Description {
	return workflow.Description{
		Metadata: workflow.Metadata{ID: "11111111-1111-1111-1111-111111111111", Version: 1, Name: "greet"},
		Trigger:  workflow.Node{ID: "trigger", Type: "sms_received"},
		Nodes: []workflow.Node{
			{ID: "delay1", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "trigger", Target: "delay1"},
		},
	}
}

func TestCompile_Success(t *testing.T) {
	c := testCompiler(t)
	graph, warnings, errs := c.Compile(validDescription())
	require.Empty(t, errs)
	require.NotNil(t, graph)
	assert.Equal(t, []string{"trigger", "delay1"}, graph.Order)
	assert.Len(t, warnings, 1)
}

func TestCompile_CachesByWorkflowIDAndVersion(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()

	first, _, errs := c.Compile(desc)
	require.Empty(t, errs)

	second, warnings, errs := c.Compile(desc)
	require.Empty(t, errs)
	assert.Nil(t, warnings, "a cache hit returns no warnings, since none were recomputed")
	assert.Same(t, first, second)
}

func TestCompile_InvalidMetadataFailsStructuralValidation(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Metadata.ID = "not-a-uuid"

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	assert.Equal(t, CodeSchemaValidation, errs[0].Code)
}

func TestCompile_UnknownNodeType(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Nodes[0].Type = "not_a_real_type"

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	assert.Equal(t, CodeUnknownNodeType, errs[0].Code)
}

func TestCompile_NodeConfigValidation(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Nodes[0].Config = nil // delay requires duration_ms

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	assert.Equal(t, CodeNodeConfigValidation, errs[0].Code)
}

func TestCompile_DuplicateNodeID(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Nodes = append(desc.Nodes, workflow.Node{ID: "delay1", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}})

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	assert.Equal(t, CodeDuplicateNodeID, errs[0].Code)
}

func TestCompile_CycleDetected(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Nodes = append(desc.Nodes, workflow.Node{ID: "delay2", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}})
	desc.Edges = append(desc.Edges,
		workflow.Edge{ID: "e2", Source: "delay1", Target: "delay2"},
		workflow.Edge{ID: "e3", Source: "delay2", Target: "delay1"},
	)

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Code == CodeCycleDetected {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompile_UnreachableNode(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Nodes = append(desc.Nodes, workflow.Node{ID: "orphan", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}})

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Code == CodeUnreachableNode && e.NodeID == "orphan" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompile_TriggerHasIncomingEdges(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Edges = append(desc.Edges, workflow.Edge{ID: "e2", Source: "delay1", Target: "trigger"})

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Code == CodeTriggerHasIncoming {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompile_USSDTriggerRequiresSessionEnd(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Trigger = workflow.Node{ID: "trigger", Type: "ussd_session_start"}

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if e.Code == CodeUSSDMissingEnd {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCompile_DeadEndNodeWarning(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()

	_, warnings, errs := c.Compile(desc)
	require.Empty(t, errs)
	require.Len(t, warnings, 1)
	assert.Equal(t, WarningDeadEndNode, warnings[0].Code)
	assert.Equal(t, "delay1", warnings[0].NodeID)
}

func TestValidate_DiscardsGraph(t *testing.T) {
	c := testCompiler(t)
	warnings, errs := c.Validate(validDescription())
	assert.Empty(t, errs)
	assert.Len(t, warnings, 1)
}

func TestCompile_NonTriggerTypeAsTriggerFails(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Trigger = workflow.Node{ID: "trigger", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}}

	_, _, errs := c.Compile(desc)
	require.NotEmpty(t, errs)
	assert.Equal(t, CodeSchemaValidation, errs[0].Code)
}

func TestCompile_TriggerMayAlsoAppearInNodes(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()
	desc.Nodes = append(desc.Nodes, desc.Trigger)

	graph, _, errs := c.Compile(desc)
	require.Empty(t, errs)
	assert.Equal(t, []string{"trigger", "delay1"}, graph.Order)
}

func TestCompile_OrdinalsFollowExecutionOrder(t *testing.T) {
	c := testCompiler(t)
	desc := validDescription()

	graph, _, errs := c.Compile(desc)
	require.Empty(t, errs)
	assert.Equal(t, 0, graph.Nodes["trigger"].Ordinal)
	assert.Equal(t, 1, graph.Nodes["delay1"].Ordinal)
}

func TestCompile_DiamondRespectsTopologicalOrder(t *testing.T) {
	c := testCompiler(t)
	desc := workflow.Description{
		Metadata: workflow.Metadata{ID: "12121212-1212-1212-1212-121212121212", Version: 1, Name: "diamond"},
		Trigger:  workflow.Node{ID: "a", Type: "sms_received"},
		Nodes: []workflow.Node{
			{ID: "b", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}},
			{ID: "c", Type: "delay", Config: map[string]interface{}{"duration_ms": float64(0)}},
		},
		Edges: []workflow.Edge{
			{ID: "e1", Source: "a", Target: "b"},
			{ID: "e2", Source: "a", Target: "c"},
			{ID: "e3", Source: "b", Target: "c"},
		},
	}

	graph, _, errs := c.Compile(desc)
	require.Empty(t, errs)

	pos := map[string]int{}
	for i, id := range graph.Order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
	assert.Equal(t, 2, graph.MaxDepth)
}
