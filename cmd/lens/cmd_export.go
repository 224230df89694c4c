package main

import (
	"fmt"

	"laserlens/internal/state"
	"laserlens/internal/tools/sandbox"
	"laserlens/internal/transcript"

	"github.com/spf13/cobra"
)

var exportFormat string

// exportCmd re-exports the persisted history
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the persisted session transcript",
	Long: `Writes the persisted session history as Markdown (md) or an HTML page
(html) into the output directory, or renders it to the terminal (term).`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "md", "Export format: md, html or term")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := transcript.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	store, err := state.NewStore(cfg.State.Dir)
	if err != nil {
		return err
	}
	sess, err := store.LoadStrict()
	if err != nil {
		return err
	}
	if len(sess.History) == 0 {
		return fmt.Errorf("no history to export in %s", store.Path())
	}
	sb, err := sandbox.New(cfg.Sandbox.OutputDir, sandbox.Options{
		AllowedExtensions: cfg.Sandbox.AllowedExtensions,
		MaxStemLength:     cfg.Sandbox.MaxStemLength,
	})
	if err != nil {
		return err
	}

	path, text, err := transcript.Export(sb, sess, format, now())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprint(out, text)
		return nil
	}
	fmt.Fprintln(out, okStyle.Render("exported to "+path))
	return nil
}
