// Package tools defines the fixed set of functions advertised to the
// model on every chat turn and validates the argument bags it sends back.
// The registry is static; executing a call is the dispatcher's job.
package tools

import (
	"slices"

	"github.com/nugget/lifetracker/internal/store"
)

// SchemaVersion identifies the current tool schema. Bump it whenever a
// tool, parameter or enum changes.
const SchemaVersion = 1

// Tool names.
const (
	AddLogEntry          = "add_log_entry"
	UpdateBackgroundInfo = "update_background_info"
	ManageTasks          = "manage_tasks"
)

// manage_tasks actions.
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionList   = "list"
)

// Tool is one callable function and its JSON schema.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Registry holds the advertised tools in a stable order.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry returns the registry of built-in tools.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]*Tool)}

	r.register(&Tool{
		Name:        AddLogEntry,
		Description: "Record a free-text note about something the user did, felt or observed. Use for journal-style updates that are not tasks or lasting facts about the user.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The note to record, in the user's words where possible",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Optional short category (e.g., health, work, mood)",
				},
			},
			"required": []string{"content"},
		},
	})

	r.register(&Tool{
		Name:        UpdateBackgroundInfo,
		Description: "Store lasting facts about the user (goals, preferences, relationships, routines). Top-level keys in merge replace existing keys; keys not mentioned are kept. To extend a list, send the full new list.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"merge": map[string]any{
					"type":        "object",
					"description": "Object whose top-level keys are written over the stored background",
				},
			},
			"required": []string{"merge"},
		},
	})

	statuses := make([]string, 0, len(store.Statuses))
	for _, s := range store.Statuses {
		statuses = append(statuses, string(s))
	}
	r.register(&Tool{
		Name:        ManageTasks,
		Description: "Create, update or list the user's tasks. 'add' needs a description. 'update' needs task_id plus at least one of status, description or deadline. 'list' returns tasks that are not completed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type":        "string",
					"enum":        []string{ActionAdd, ActionUpdate, ActionList},
					"description": "What to do",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Task description (add, or new text on update)",
				},
				"task_id": map[string]any{
					"type":        "string",
					"description": "ID of the task to update, as returned by list or add",
				},
				"status": map[string]any{
					"type":        "string",
					"enum":        statuses,
					"description": "New status on update",
				},
				"deadline": map[string]any{
					"type":        "string",
					"description": "Deadline as an ISO date (2026-05-01) or date and time (2026-05-01T17:00)",
				},
			},
			"required": []string{"action"},
		},
	})

	return r
}

func (r *Registry) register(t *Tool) {
	r.tools[t.Name] = t
	r.order = append(r.order, t.Name)
}

// Get returns the named tool or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.order)
}

// All returns the tools in registration order.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// List returns the tools in the function-calling wire shape accepted by
// the LLM clients.
func (r *Registry) List() []map[string]any {
	out := make([]map[string]any, 0, len(r.order))
	for _, t := range r.All() {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return out
}
