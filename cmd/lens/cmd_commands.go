package main

import (
	"context"
	"fmt"

	"laserlens/internal/tools/core"

	"github.com/spf13/cobra"
)

// commandsCmd lists the directives a model can use
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List registered directives, aliases and plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Fprint(cmd.OutOrStdout(), core.Catalog(a.registry))
		return nil
	},
}
