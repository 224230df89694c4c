package main

import (
	"context"
	"fmt"

	"laserlens/internal/archive"
	"laserlens/internal/state"

	"github.com/spf13/cobra"
)

var (
	historySession string
	historyLimit   int
)

// historyCmd queries the turn archive
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Query archived sessions and turns",
	Long: `Without --session, lists archived sessions. With --session (or
--session current) prints that session's most recent turns.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVarP(&historySession, "session", "s", "", "Session ID, or 'current' for the persisted session")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "Maximum turns to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := archive.NewStore(cfg.Archive.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	out := cmd.OutOrStdout()

	if historySession == "" {
		sessions, err := db.Sessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No archived sessions found.")
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(out, "%s  %s  %-24s %3d turns  %s\n",
				s.StartedAt.Local().Format("2006-01-02 15:04"), s.ID, s.Model, s.Turns, s.Topic)
		}
		fmt.Fprintf(out, "Total: %d sessions\n", len(sessions))
		return nil
	}

	id := historySession
	if id == "current" {
		store, err := state.NewStore(cfg.State.Dir)
		if err != nil {
			return err
		}
		if id = store.Load().SessionID; id == "" {
			return fmt.Errorf("no persisted session")
		}
	}
	turns, err := db.Turns(ctx, id, historyLimit)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintf(out, "No turns archived for session %s.\n", id)
		return nil
	}
	for _, t := range turns {
		fmt.Fprintln(out, bannerStyle.Render(fmt.Sprintf("Loop %d  %s", t.LoopIndex, t.CreatedAt.Local().Format("2006-01-02 15:04:05"))))
		fmt.Fprintln(out, t.Response)
	}
	return nil
}
