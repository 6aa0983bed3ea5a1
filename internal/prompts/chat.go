package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/lifetracker/internal/store"
)

// chatSystemTemplate is the system prompt for every chat turn. Format
// verbs: current time, background JSON, recent logs, open tasks.
const chatSystemTemplate = `You are Life Tracker, a warm and practical personal assistant. The user
talks to you about their day, their goals and the things they need to do.
Your job is to keep their records accurate and to answer helpfully.

## Tools
- add_log_entry: record something the user did, felt or observed.
- update_background_info: store lasting facts (goals, preferences, people,
  routines). Keys you send replace existing top-level keys. To add to a
  list, send the whole updated list.
- manage_tasks: add new tasks, update existing ones by task_id, or list
  open tasks. Use the task IDs shown below; never invent one.

One message can need several tools. "I finished the report and my new
goal is to run a marathon" means completing the report task AND adding
the goal to the goals list.

Do not use tools for greetings or small talk. If a tool reports an error,
tell the user plainly and do not pretend it succeeded.

## Current time
%s

## What you know about the user
%s

## Recent log entries (newest first)
%s

## Open tasks
%s`

// ChatSystemPrompt renders the per-turn system prompt.
func ChatSystemPrompt(now time.Time, bg store.Background, logs []store.LogEntry, tasks []store.Task) string {
	return fmt.Sprintf(chatSystemTemplate,
		now.Format("Monday, January 2, 2006 15:04 MST"),
		formatBackground(bg),
		formatLogs(logs),
		formatTasks(tasks),
	)
}

func formatBackground(bg store.Background) string {
	if len(bg) == 0 {
		return "Nothing yet."
	}
	b, err := json.MarshalIndent(bg, "", "  ")
	if err != nil {
		return "(unreadable)"
	}
	return string(b)
}

func formatLogs(logs []store.LogEntry) string {
	if len(logs) == 0 {
		return "None."
	}
	var sb strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&sb, "- %s", l.CreatedAt.Format("2006-01-02 15:04"))
		if l.Category != "" {
			fmt.Fprintf(&sb, " [%s]", l.Category)
		}
		fmt.Fprintf(&sb, ": %s\n", l.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatTasks(tasks []store.Task) string {
	if len(tasks) == 0 {
		return "None."
	}
	var sb strings.Builder
	for _, t := range tasks {
		fmt.Fprintf(&sb, "- [%s] %s (id: %s", t.Status, t.Description, t.ID)
		if t.Deadline != nil {
			fmt.Fprintf(&sb, ", due %s", t.Deadline.Format("2006-01-02 15:04"))
		}
		sb.WriteString(")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
