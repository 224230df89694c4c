package core

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"laserlens/internal/tools"
)

// HelpTool returns the HELP directive. It lists whatever reg holds at call
// time, so plugins registered after HELP still appear.
func HelpTool(reg *tools.Registry) *tools.Tool {
	return &tools.Tool{
		Name:        "HELP",
		Description: "List available directives and the host platform",
		Usage:       `[[COMMAND: HELP]]`,
		Category:    tools.CategoryMeta,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return Catalog(reg), nil
		},
	}
}

// Catalog renders the directive list with usage lines and aliases.
func Catalog(reg *tools.Registry) string {
	byTarget := make(map[string][]string)
	for alias, target := range reg.Aliases() {
		byTarget[target] = append(byTarget[target], alias)
	}

	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, t := range reg.All() {
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		if aliases := byTarget[t.Name]; len(aliases) > 0 {
			sort.Strings(aliases)
			fmt.Fprintf(&b, " (aliases: %s)", strings.Join(aliases, ", "))
		}
		b.WriteString("\n")
		if t.Usage != "" {
			fmt.Fprintf(&b, "    %s\n", t.Usage)
		}
	}
	fmt.Fprintf(&b, "Host platform: %s/%s", runtime.GOOS, runtime.GOARCH)
	return b.String()
}
