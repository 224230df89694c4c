package main

import (
	"context"
	"fmt"

	"laserlens/internal/config"

	"github.com/spf13/cobra"
)

// modelsCmd lists generation-capable models
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available generation models",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		models, err := listModels(ctx, cfg)
		if err != nil {
			return err
		}
		preferred := config.LoadUserPrefs(userPrefsPath).PreferredModel(models, cfg.Model.Name)

		out := cmd.OutOrStdout()
		for _, m := range models {
			marker := "  "
			if m == preferred {
				marker = okStyle.Render("* ")
			}
			fmt.Fprintf(out, "%s%s\n", marker, m)
		}
		fmt.Fprintf(out, "Total: %d models\n", len(models))
		return nil
	},
}
