package core

import (
	"laserlens/internal/tools"
	"laserlens/internal/tools/sandbox"
)

// Aliases maps the short directive names to their targets.
var Aliases = map[string]string{
	"LS":  "LIST_OUTPUTS",
	"CAT": "READ_FILE",
	"RM":  "DELETE_FILE",
	"WC":  "WORD_COUNT",
	"RL":  "READ_LINES",
}

// RegisterAll registers the core directives and their aliases.
func RegisterAll(registry *tools.Registry, sb *sandbox.Sandbox) error {
	allTools := []*tools.Tool{
		// File operations
		WriteFileTool(sb),
		AppendFileTool(sb),
		ReadFileTool(sb),
		ReadLinesTool(sb),
		ListOutputsTool(sb),
		DeleteFileTool(sb),
		WordCountTool(sb),

		// Meta and control
		HelpTool(registry),
		CancelTool(),
		PauseTool(),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	for alias, target := range Aliases {
		if err := registry.Alias(alias, target); err != nil {
			return err
		}
	}
	return nil
}
