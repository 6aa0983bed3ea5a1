package tools

import (
	"errors"
	"testing"
)

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	list := r.List()

	if len(list) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(list))
	}

	want := []string{AddLogEntry, UpdateBackgroundInfo, ManageTasks}
	for i, entry := range list {
		if entry["type"] != "function" {
			t.Errorf("tool %d type = %v, want function", i, entry["type"])
		}
		fn, ok := entry["function"].(map[string]any)
		if !ok {
			t.Fatalf("tool %d has no function object", i)
		}
		if fn["name"] != want[i] {
			t.Errorf("tool %d name = %v, want %s", i, fn["name"], want[i])
		}
		if _, ok := fn["parameters"].(map[string]any); !ok {
			t.Errorf("tool %s has no parameters schema", want[i])
		}
	}
}

func TestManageTasksStatusEnum(t *testing.T) {
	r := NewRegistry()
	props := r.Get(ManageTasks).Parameters["properties"].(map[string]any)
	enum := props["status"].(map[string]any)["enum"].([]string)

	want := []string{"open", "in-progress", "completed"}
	if len(enum) != len(want) {
		t.Fatalf("status enum = %v, want %v", enum, want)
	}
	for i := range want {
		if enum[i] != want[i] {
			t.Errorf("status enum[%d] = %q, want %q", i, enum[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name      string
		tool      string
		args      map[string]any
		wantParam string
		wantErr   bool
	}{
		{
			name: "valid log entry",
			tool: AddLogEntry,
			args: map[string]any{"content": "ran 5k", "category": "health"},
		},
		{
			name:      "missing content",
			tool:      AddLogEntry,
			args:      map[string]any{"category": "health"},
			wantParam: "content",
			wantErr:   true,
		},
		{
			name:      "null content",
			tool:      AddLogEntry,
			args:      map[string]any{"content": nil},
			wantParam: "content",
			wantErr:   true,
		},
		{
			name:      "content wrong type",
			tool:      AddLogEntry,
			args:      map[string]any{"content": 42.0},
			wantParam: "content",
			wantErr:   true,
		},
		{
			name:      "merge must be object",
			tool:      UpdateBackgroundInfo,
			args:      map[string]any{"merge": "goals"},
			wantParam: "merge",
			wantErr:   true,
		},
		{
			name: "merge object",
			tool: UpdateBackgroundInfo,
			args: map[string]any{"merge": map[string]any{"goals": []any{"run a marathon"}}},
		},
		{
			name:      "unknown action",
			tool:      ManageTasks,
			args:      map[string]any{"action": "delete"},
			wantParam: "action",
			wantErr:   true,
		},
		{
			name:      "status outside enum",
			tool:      ManageTasks,
			args:      map[string]any{"action": "update", "task_id": "t1", "status": "done"},
			wantParam: "status",
			wantErr:   true,
		},
		{
			name:      "underscore status rejected",
			tool:      ManageTasks,
			args:      map[string]any{"action": "update", "task_id": "t1", "status": "in_progress"},
			wantParam: "status",
			wantErr:   true,
		},
		{
			name: "extra args ignored",
			tool: ManageTasks,
			args: map[string]any{"action": "list", "verbose": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.tool, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var argErr *ArgError
			if !errors.As(err, &argErr) {
				t.Fatalf("expected *ArgError, got %T", err)
			}
			if argErr.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", argErr.Param, tt.wantParam)
			}
		})
	}
}

func TestValidateUnknownTool(t *testing.T) {
	err := NewRegistry().Validate("delete_everything", nil)

	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected *ErrToolUnavailable, got %v", err)
	}
	if unavailable.ToolName != "delete_everything" {
		t.Errorf("ToolName = %q", unavailable.ToolName)
	}
}

func TestJSONType(t *testing.T) {
	tests := []struct {
		v    any
		want string
	}{
		{"x", "string"},
		{1.0, "integer"},
		{1.5, "number"},
		{true, "boolean"},
		{map[string]any{}, "object"},
		{[]any{}, "array"},
		{nil, "null"},
	}
	for _, tt := range tests {
		if got := jsonType(tt.v); got != tt.want {
			t.Errorf("jsonType(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
