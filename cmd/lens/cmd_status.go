package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"laserlens/internal/state"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	statusFollow   bool
	statusDebounce time.Duration
)

// statusCmd prints the persisted session
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted session state",
	Long: `Prints the session state written by a running or finished 'lens run'.
With --follow the state file is watched and re-printed on every change until
Ctrl+C. Reads may be slightly stale; the state file is never written here.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Watch the state file and re-print on change")
	statusCmd.Flags().DurationVar(&statusDebounce, "debounce", 200*time.Millisecond, "Coalesce rapid state writes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := state.NewStore(cfg.State.Dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !statusFollow {
		printSession(out, store.Load())
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		first := true
		return store.Watch(ctx, statusDebounce, func(s *state.Session) {
			if !first {
				fmt.Fprintln(out)
			}
			first = false
			printSession(out, s)
		})
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
