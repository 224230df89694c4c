package shell

import (
	"laserlens/internal/tools"
	"laserlens/internal/tools/sandbox"
)

// RegisterAll registers the subprocess directives with the given registry.
func RegisterAll(registry *tools.Registry, sb *sandbox.Sandbox, opts Options) error {
	allTools := []*tools.Tool{
		ExecTool(sb, opts),
		RunPythonTool(sb, opts),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
