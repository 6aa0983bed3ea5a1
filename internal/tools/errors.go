package tools

import "fmt"

// ErrToolUnavailable is returned when a call names a tool that is not in
// the registry.
type ErrToolUnavailable struct {
	ToolName string
}

func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ArgError reports a single invalid argument.
type ArgError struct {
	Tool   string
	Param  string
	Reason string
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("%s: argument %q %s", e.Tool, e.Param, e.Reason)
}
