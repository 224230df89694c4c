// Package tools holds the directive registry: the name→handler mapping that
// model output drives through [[COMMAND: NAME key="value"]] directives.
//
// Architecture:
//
//	response text → protocol.Scan → Registry.Get → Tool.Execute → Result
package tools

import (
	"context"
	"time"
)

// ToolCategory groups directives for listing and for the driver's control
// signal detection.
type ToolCategory string

const (
	// CategoryFile covers sandboxed file operations.
	CategoryFile ToolCategory = "/file"

	// CategoryShell covers subprocess execution inside the sandbox.
	CategoryShell ToolCategory = "/shell"

	// CategoryControl covers CANCEL and PAUSE. A successful result is a
	// control signal for the loop driver.
	CategoryControl ToolCategory = "/control"

	// CategoryMeta covers HELP.
	CategoryMeta ToolCategory = "/meta"

	// CategoryPlugin is for externally loaded directives.
	CategoryPlugin ToolCategory = "/plugin"
)

// Property describes a single directive argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     string `json:"default,omitempty"`
}

// ToolSchema defines the expected directive arguments.
type ToolSchema struct {
	// Required lists arguments that must be present and non-blank.
	Required []string `json:"required"`

	// Properties describes each argument.
	Properties map[string]Property `json:"properties"`
}

// ExecuteFunc is the signature for directive execution. Arguments arrive as
// the decoded key/value strings; the returned string is shown to the model.
type ExecuteFunc func(ctx context.Context, args map[string]string) (string, error)

// Tool is one registered directive.
type Tool struct {
	// Name is the canonical upper-case directive name.
	Name string

	// Description explains what the directive does.
	Description string

	// Usage is an example in wire syntax, shown by HELP.
	Usage string

	// Category classifies the directive.
	Category ToolCategory

	// Execute runs the directive.
	Execute ExecuteFunc

	// Schema defines the expected arguments.
	Schema ToolSchema
}

// Validate checks if the tool definition is valid.
func (t *Tool) Validate() error {
	if t.Name == "" {
		return ErrToolNameEmpty
	}
	if t.Execute == nil {
		return ErrToolExecuteNil
	}
	return nil
}

// Result is the outcome of one directive occurrence.
type Result struct {
	// Name is the directive name as it appeared (upper-cased), which may be
	// an alias.
	Name string

	// Tool is the canonical name of the handler that ran; empty when the
	// arguments failed to parse.
	Tool string

	// Output is the handler's string, or "ERROR: ..." when Err is set.
	Output string

	// Err is set if parsing or execution failed.
	Err error

	// Duration is how long execution took.
	Duration time.Duration
}

// IsSuccess returns true if the directive executed without error.
func (r *Result) IsSuccess() bool {
	return r.Err == nil
}
