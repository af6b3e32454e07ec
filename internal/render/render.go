// Package render implements the Template Evaluator: resolving
// {{dotted.path}} placeholders against a scope map and evaluating the
// comparison predicates used by condition nodes. It is a pure function
// library, no I/O.
package render

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	arrayIndexPattern  = regexp.MustCompile(`^(.+)\[(\d+)\]$`)
)

// Render replaces every {{path}} in template with the string form of the
// value found by resolving path against scope. A path that does not
// resolve, or resolves to null, leaves the original placeholder intact.
func Render(template string, scope map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, ok := Lookup(scope, path)
		if !ok || value == nil {
			return match
		}
		return stringify(value)
	})
}

// RenderMap applies Render to every string value in m, recursively;
// non-string values pass through unchanged.
func RenderMap(m map[string]interface{}, scope map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = renderValue(v, scope)
	}
	return out
}

func renderValue(v interface{}, scope map[string]interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return Render(t, scope)
	case map[string]interface{}:
		return RenderMap(t, scope)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = renderValue(item, scope)
		}
		return out
	default:
		return v
	}
}

// Lookup resolves a dotted, optionally array-indexed path against scope,
// returning (value, true) on success.
func Lookup(scope map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return scope, true
	}
	var current interface{} = scope
	for _, part := range strings.Split(path, ".") {
		if m := arrayIndexPattern.FindStringSubmatch(part); m != nil {
			key, idxStr := m[1], m[2]
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			current, ok = obj[key]
			if !ok {
				return nil, false
			}
			arr, ok := current.([]interface{})
			if !ok {
				return nil, false
			}
			idx, err := strconv.Atoi(idxStr)
			if err != nil || idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
			continue
		}
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// operators are listed longest-first so "==", "!=", ">=", "<=" are matched
// before the single-character ">" and "<" — checking ">" first would
// misdetect ">=" as ">" followed by a literal "=".
var operators = []string{">=", "<=", "==", "!=", ">", "<"}

// EvaluatePredicate renders expression against scope, then looks for a
// comparison operator. Ordering operators (>, <, >=, <=) compare
// numerically; ==/!= compare textually. With no operator present, the
// rendered string's truthiness is returned. Any parse failure yields false.
func EvaluatePredicate(expression string, scope map[string]interface{}) bool {
	rendered := Render(expression, scope)

	for _, op := range operators {
		idx := strings.Index(rendered, op)
		if idx < 0 {
			continue
		}
		left := strings.TrimSpace(rendered[:idx])
		right := strings.TrimSpace(rendered[idx+len(op):])
		return compare(left, op, right)
	}

	return truthy(rendered)
}

func compare(left, op, right string) bool {
	switch op {
	case "==":
		return left == right
	case "!=":
		return left != right
	default:
		lf, lerr := strconv.ParseFloat(left, 64)
		rf, rerr := strconv.ParseFloat(right, 64)
		if lerr != nil || rerr != nil {
			return false
		}
		switch op {
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
		return false
	}
}

func truthy(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || s == "false" || s == "0" || s == "null" {
		return false
	}
	return true
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}

// Scope composes the per-node evaluation scope: context variables form the
// base, the node's own input (its predecessors' merged output) is overlaid
// on top so that on a colliding key a node sees the value its incoming
// edges actually carried rather than a stale global, and finally the
// well-known keys (e.g. "session") are overlaid last so they are always
// resolvable regardless of collisions.
func Scope(nodeInput map[string]interface{}, variables map[string]interface{}, wellKnown map[string]interface{}) map[string]interface{} {
	scope := make(map[string]interface{}, len(nodeInput)+len(variables)+len(wellKnown))
	for k, v := range variables {
		scope[k] = v
	}
	for k, v := range nodeInput {
		scope[k] = v
	}
	for k, v := range wellKnown {
		scope[k] = v
	}
	return scope
}
