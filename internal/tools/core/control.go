package core

import (
	"context"

	"laserlens/internal/logging"
	"laserlens/internal/tools"
)

// CancelTool returns the CANCEL directive. The handler only echoes the
// reason; the loop driver turns a successful result into a stop.
func CancelTool() *tools.Tool {
	return controlTool("CANCEL", "Stop the run immediately after this turn's directives")
}

// PauseTool returns the PAUSE directive. The run stops at the end of the
// turn and stays resumable.
func PauseTool() *tools.Tool {
	return controlTool("PAUSE", "Pause the run at the end of this turn")
}

func controlTool(name, desc string) *tools.Tool {
	return &tools.Tool{
		Name:        name,
		Description: desc,
		Usage:       `[[COMMAND: ` + name + ` reason="why"]]`,
		Category:    tools.CategoryControl,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			logging.Tools("%s requested: %s", name, args["reason"])
			return args["reason"], nil
		},
		Schema: tools.ToolSchema{
			Required: []string{"reason"},
			Properties: map[string]tools.Property{
				"reason": {Type: "string", Description: "Why the run should stop"},
			},
		},
	}
}
