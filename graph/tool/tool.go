// Package tool defines the tool-call capability contract nodes use to
// invoke external collaborators (spec.md 6: "A tool exposes {name,
// description, category, schema, execute}").
package tool

import (
	"context"
	"fmt"
)

// Tool is an executable capability a node (directly, or via a ChatModel's
// requested ToolCall) may invoke.
type Tool interface {
	Name() string
	Description() string
	Category() string
	Schema() map[string]interface{}
	Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error)
}

// Invoke validates input against t's schema before calling Execute, per
// spec.md 6: "the engine validates inputs against the schema before
// calling execute; violations are reported as validation errors and are
// not retried." Validation here is intentionally shallow (required-key
// presence and declared JSON-Schema-lite "type" strings) — good enough to
// catch the missing-argument class of error the spec calls out, without
// adopting a full JSON Schema validator for a capability surface that is
// explicitly out of scope (spec.md 1: tool implementations are external
// collaborators).
func Invoke(ctx context.Context, t Tool, input map[string]interface{}) (map[string]interface{}, error) {
	if err := validate(t.Schema(), input); err != nil {
		return nil, err
	}
	return t.Execute(ctx, input)
}

// ValidationError reports a tool input failing its schema contract.
type ValidationError struct {
	Tool    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: invalid input %q: %s", e.Tool, e.Field, e.Message)
}

func validate(schema map[string]interface{}, input map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	required, _ := schema["required"].([]string)
	for _, field := range required {
		if _, ok := input[field]; !ok {
			return &ValidationError{Field: field, Message: "required field missing"}
		}
	}
	props, _ := schema["properties"].(map[string]interface{})
	for field, raw := range input {
		propSchema, ok := props[field].(map[string]interface{})
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesJSONType(wantType, raw) {
			return &ValidationError{Field: field, Message: fmt.Sprintf("expected type %q", wantType)}
		}
	}
	return nil
}

func matchesJSONType(want string, v interface{}) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]interface{})
		return ok
	case "array":
		_, ok := v.([]interface{})
		return ok
	default:
		return true
	}
}
