// Package prompts contains the LLM prompt templates used by the life
// tracker.
//
// Prompt text is Go code rather than config files because it is program
// logic: templates use fmt.Sprintf interpolation, are embedded at compile
// time, and can be validated by tests. Each prompt category has its own
// file with an exported function that accepts the dynamic parts and
// returns the fully interpolated prompt string.
package prompts
