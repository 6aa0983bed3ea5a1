package tools

import (
	"fmt"
	"slices"
)

// Validate checks args against the named tool's schema: the tool must
// exist, required parameters must be present and non-null, and every
// supplied parameter must have the declared JSON type and, when the
// schema lists one, a value from its enum. Parameters the schema does
// not declare are ignored.
func (r *Registry) Validate(name string, args map[string]any) error {
	t := r.Get(name)
	if t == nil {
		return &ErrToolUnavailable{ToolName: name}
	}

	props, _ := t.Parameters["properties"].(map[string]any)
	required, _ := t.Parameters["required"].([]string)

	for _, p := range required {
		if v, ok := args[p]; !ok || v == nil {
			return &ArgError{Tool: name, Param: p, Reason: "is required"}
		}
	}

	for _, p := range sortedKeys(props) {
		v, ok := args[p]
		if !ok || v == nil {
			continue
		}
		schema, _ := props[p].(map[string]any)
		want, _ := schema["type"].(string)
		if !hasType(v, want) {
			return &ArgError{Tool: name, Param: p, Reason: fmt.Sprintf("must be of type %s, got %s", want, jsonType(v))}
		}
		if enum, ok := schema["enum"].([]string); ok {
			s, _ := v.(string)
			if !slices.Contains(enum, s) {
				return &ArgError{Tool: name, Param: p, Reason: fmt.Sprintf("must be one of %v, got %q", enum, s)}
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func hasType(v any, want string) bool {
	got := jsonType(v)
	if want == "number" && got == "integer" {
		return true
	}
	return want == "" || got == want
}

// jsonType names the JSON type of a decoded value.
func jsonType(v any) string {
	switch x := v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if x == float64(int64(x)) {
			return "integer"
		}
		return "number"
	case int, int32, int64:
		return "integer"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
