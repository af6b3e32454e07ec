package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender_SimplePath(t *testing.T) {
	scope := map[string]interface{}{"name": "Asha"}
	assert.Equal(t, "hello Asha", Render("hello {{name}}", scope))
}

func TestRender_DottedPath(t *testing.T) {
	scope := map[string]interface{}{"user": map[string]interface{}{"phone": "+254700000000"}}
	assert.Equal(t, "+254700000000", Render("{{user.phone}}", scope))
}

func TestRender_ArrayIndexedPath(t *testing.T) {
	scope := map[string]interface{}{
		"items": map[string]interface{}{
			"list": []interface{}{"first", "second"},
		},
	}
	assert.Equal(t, "second", Render("{{items.list[1]}}", scope))
}

func TestRender_UnresolvedPathLeavesPlaceholderIntact(t *testing.T) {
	scope := map[string]interface{}{}
	assert.Equal(t, "{{missing}}", Render("{{missing}}", scope))
}

func TestRender_NullValueLeavesPlaceholderIntact(t *testing.T) {
	scope := map[string]interface{}{"x": nil}
	assert.Equal(t, "{{x}}", Render("{{x}}", scope))
}

func TestRenderMap_RecursesThroughNestedStructures(t *testing.T) {
	scope := map[string]interface{}{"id": "abc"}
	in := map[string]interface{}{
		"top": "{{id}}",
		"nested": map[string]interface{}{
			"inner": "{{id}}-suffix",
		},
		"list":   []interface{}{"{{id}}", 42},
		"number": 7,
	}

	out := RenderMap(in, scope)
	assert.Equal(t, "abc", out["top"])
	assert.Equal(t, "abc-suffix", out["nested"].(map[string]interface{})["inner"])
	assert.Equal(t, []interface{}{"abc", 42}, out["list"])
	assert.Equal(t, 7, out["number"])
}

func TestLookup_EmptyPathReturnsScope(t *testing.T) {
	scope := map[string]interface{}{"a": 1}
	v, ok := Lookup(scope, "")
	assert.True(t, ok)
	assert.Equal(t, scope, v)
}

func TestEvaluatePredicate_NumericComparison(t *testing.T) {
	scope := map[string]interface{}{"amount": float64(150)}
	assert.True(t, EvaluatePredicate("{{amount}} > 100", scope))
	assert.False(t, EvaluatePredicate("{{amount}} < 100", scope))
	assert.True(t, EvaluatePredicate("{{amount}} >= 150", scope))
}

func TestEvaluatePredicate_TextualEquality(t *testing.T) {
	scope := map[string]interface{}{"status": "completed"}
	assert.True(t, EvaluatePredicate("{{status}} == completed", scope))
	assert.True(t, EvaluatePredicate("{{status}} != failed", scope))
}

func TestEvaluatePredicate_NoOperatorFallsBackToTruthiness(t *testing.T) {
	assert.True(t, EvaluatePredicate("{{flag}}", map[string]interface{}{"flag": "yes"}))
	assert.False(t, EvaluatePredicate("{{flag}}", map[string]interface{}{"flag": false}))
}

func TestEvaluatePredicate_NonNumericComparisonIsFalse(t *testing.T) {
	scope := map[string]interface{}{"name": "Asha"}
	assert.False(t, EvaluatePredicate("{{name}} > 100", scope))
}

func TestScope_PrecedenceWellKnownOverNodeInputOverVariables(t *testing.T) {
	scope := Scope(
		map[string]interface{}{"a": "node_input", "b": "node_input"},
		map[string]interface{}{"a": "variables", "b": "variables", "c": "variables"},
		map[string]interface{}{"a": "well_known"},
	)
	assert.Equal(t, "well_known", scope["a"])
	assert.Equal(t, "node_input", scope["b"], "a node's own input wins over context variables on a colliding key")
	assert.Equal(t, "variables", scope["c"])
}
