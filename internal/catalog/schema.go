package catalog

import (
	"fmt"
	"strings"
)

// Small composable field checks used to build each node type's SchemaFunc.
// These stand in for the "schemas are themselves data, composable by
// combinators" design note: each check is a plain func(config) []FieldError
// and a SchemaFunc is just several of them run in sequence.

func requiredString(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists {
			return []FieldError{{Path: path, Message: "required"}}
		}
		s, isString := v.(string)
		if !isString || s == "" {
			return []FieldError{{Path: path, Message: "must be a non-empty string"}}
		}
		return nil
	}
}

func optionalString(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists || v == nil {
			return nil
		}
		if _, isString := v.(string); !isString {
			return []FieldError{{Path: path, Message: "must be a string"}}
		}
		return nil
	}
}

func requiredEnum(path string, allowed ...string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists {
			return []FieldError{{Path: path, Message: "required"}}
		}
		s, isString := v.(string)
		if !isString {
			return []FieldError{{Path: path, Message: "must be a string"}}
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return []FieldError{{Path: path, Message: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))}}
	}
}

func requiredNumber(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists {
			return []FieldError{{Path: path, Message: "required"}}
		}
		switch v.(type) {
		case float64, int, int64:
			return nil
		default:
			return []FieldError{{Path: path, Message: "must be a number"}}
		}
	}
}

func optionalBool(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists || v == nil {
			return nil
		}
		if _, isBool := v.(bool); !isBool {
			return []FieldError{{Path: path, Message: "must be a boolean"}}
		}
		return nil
	}
}

// requiredCaseList validates a switch node's "cases" field: a non-empty
// list of {value, label} objects, each with a non-empty string "value".
func requiredCaseList(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists {
			return []FieldError{{Path: path, Message: "required"}}
		}
		list, isList := v.([]interface{})
		if !isList || len(list) == 0 {
			return []FieldError{{Path: path, Message: "must be a non-empty list of {value, label} objects"}}
		}
		for i, item := range list {
			obj, isObj := item.(map[string]interface{})
			if !isObj {
				return []FieldError{{Path: fmt.Sprintf("%s[%d]", path, i), Message: "must be an object with a value field"}}
			}
			value, isString := obj["value"].(string)
			if !isString || value == "" {
				return []FieldError{{Path: fmt.Sprintf("%s[%d].value", path, i), Message: "must be a non-empty string"}}
			}
		}
		return nil
	}
}

// requiredStringMap validates a map field whose values must all be
// strings, e.g. session_write's templated "data" map.
func requiredStringMap(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists {
			return []FieldError{{Path: path, Message: "required"}}
		}
		obj, isObj := v.(map[string]interface{})
		if !isObj {
			return []FieldError{{Path: path, Message: "must be an object of string values"}}
		}
		for k, item := range obj {
			if _, isString := item.(string); !isString {
				return []FieldError{{Path: fmt.Sprintf("%s.%s", path, k), Message: "must be a string"}}
			}
		}
		return nil
	}
}

// optionalStringList validates an optional list-of-strings field, e.g.
// session_read's "keys" projection.
func optionalStringList(path string) func(map[string]interface{}) []FieldError {
	return func(cfg map[string]interface{}) []FieldError {
		v, exists := cfg[path]
		if !exists || v == nil {
			return nil
		}
		list, isList := v.([]interface{})
		if !isList {
			return []FieldError{{Path: path, Message: "must be a list of strings"}}
		}
		for i, item := range list {
			if _, isString := item.(string); !isString {
				return []FieldError{{Path: fmt.Sprintf("%s[%d]", path, i), Message: "must be a string"}}
			}
		}
		return nil
	}
}

// compose builds a SchemaFunc out of individual field checks.
func compose(checks ...func(map[string]interface{}) []FieldError) SchemaFunc {
	return func(cfg map[string]interface{}) []FieldError {
		var errs []FieldError
		for _, check := range checks {
			errs = append(errs, check(cfg)...)
		}
		return errs
	}
}
