package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"laserlens/internal/agent"
	"laserlens/internal/config"
	"laserlens/internal/logging"
	"laserlens/internal/state"
	"laserlens/internal/transcript"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runTopic         string
	runLoops         int
	runModel         string
	runTemperature   float64
	runSeed          int
	runRPM           int
	runThinking      bool
	runContext       []string
	runResumeFile    string
	runResumeLoop    int
	runFresh         bool
	runNoExport      bool
	userPrefsPath    = config.DefaultUserPrefsPath()
	now              = time.Now
	errRunIncomplete = errors.New("run did not complete")
)

// runCmd starts a new session
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a recursive analysis session",
	Long: `Runs the recursive loop on a topic. Streamed output is printed live and
each turn's directives are shown with their results. Ctrl+C cancels the run;
state is saved either way. At the end the transcript and session metadata are
written to the output directory.`,
	RunE: runRun,
}

// resumeCmd continues the persisted session
var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue the persisted session",
	RunE:  runResume,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runTopic, "topic", "t", "", "Topic to analyze (required)")
	f.IntVarP(&runLoops, "loops", "n", 0, "Number of loops (default from config)")
	f.StringVarP(&runModel, "model", "m", "", "Model name (default: last used, then config)")
	f.Float64Var(&runTemperature, "temperature", -1, "Sampling temperature (default from config)")
	f.IntVar(&runSeed, "seed", 0, "Sampling seed")
	f.IntVar(&runRPM, "rpm", 0, "Requests per minute (default from config)")
	f.BoolVar(&runThinking, "thinking-mode", false, "Thinking only: no directive instructions in the prompt")
	f.StringSliceVarP(&runContext, "context", "c", nil, "Context files to upload (.md, .txt, .log, .tmp)")
	f.StringVar(&runResumeFile, "resume", "", "Stream mirror (.tmp) to load as context")
	f.IntVar(&runResumeLoop, "resume-current-loop", 0, "Loop index to start at")
	f.BoolVar(&runFresh, "fresh", false, "Discard persisted state before starting")
	f.BoolVar(&runNoExport, "no-export", false, "Skip writing the transcript and metadata")
	_ = runCmd.MarkFlagRequired("topic")

	resumeCmd.Flags().IntVarP(&runLoops, "loops", "n", 0, "Override the total loop count")
	resumeCmd.Flags().BoolVar(&runThinking, "thinking-mode", false, "Thinking only: no directive instructions in the prompt")
	resumeCmd.Flags().BoolVar(&runNoExport, "no-export", false, "Skip writing the transcript and metadata")
}

// sessionMetadata is saved next to the transcript.
type sessionMetadata struct {
	SessionID   string  `json:"session_id"`
	Topic       string  `json:"topic"`
	Loops       int     `json:"loops"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Seed        *int    `json:"seed,omitempty"`
	RPM         int     `json:"rpm"`
	Status      string  `json:"status"`
	OutputFile  string  `json:"output_file,omitempty"`
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if prior := a.store.Load(); prior.Resumable() && !runFresh {
		logging.Get(logging.CategorySession).Warn("replacing resumable session %s (use 'lens resume' to continue it)", prior.SessionID)
	}
	if err := a.store.Clear(); err != nil {
		return err
	}

	prefs := config.LoadUserPrefs(userPrefsPath)
	model := runModel
	if model == "" {
		model = prefs.PreferredModel(nil, cfg.Model.Name)
	}
	temperature := cfg.Model.Temperature
	if cmd.Flags().Changed("temperature") {
		temperature = runTemperature
	}
	seed := cfg.Model.Seed
	if cmd.Flags().Changed("seed") {
		seed = &runSeed
	}
	loops := cfg.Loop.Loops
	if runLoops > 0 {
		loops = runLoops
	}
	rpm := cfg.Model.RPM
	if runRPM > 0 {
		rpm = runRPM
	}

	agg := a.aggregator()
	for _, path := range runContext {
		uploadFile(cmd.ErrOrStderr(), agg.Upload, path)
	}
	if runResumeFile != "" {
		uploadFile(cmd.ErrOrStderr(), agg.Upload, runResumeFile)
	}

	gen, err := newGenerator(ctx, cfg, model)
	if err != nil {
		return err
	}

	sessionID := uuid.New().String()
	if a.archive != nil {
		if err := a.archive.BeginSession(ctx, sessionID, runTopic, model); err != nil {
			logging.Get(logging.CategoryStore).Warn("archive session not recorded: %v", err)
		}
	}

	ag, err := agent.New(agent.Deps{
		Generator: gen,
		Limiter:   a.limiter(rpm),
		Context:   agg,
		Registry:  a.registry,
		Store:     a.store,
		Archive:   a.turnArchive(),
		Policy:    a.policy(),
	}, agent.Options{
		SessionID:     sessionID,
		Topic:         runTopic,
		Model:         model,
		Loops:         loops,
		Temperature:   temperature,
		Seed:          seed,
		ThinkingMode:  runThinking || cfg.Loop.ThinkingMode,
		HistoryWindow: cfg.Loop.HistoryWindow,
		StreamDelim:   cfg.Loop.StreamDelim,
		StreamSuffix:  cfg.State.StreamSuffix,
		StartLoop:     runResumeLoop,
	})
	if err != nil {
		return err
	}
	defer ag.Close()

	prefs.LastModel = model
	if err := prefs.Save(userPrefsPath); err != nil {
		logging.Get(logging.CategoryBoot).Warn("could not save preferences: %v", err)
	}

	meta := sessionMetadata{
		SessionID:   sessionID,
		Topic:       runTopic,
		Loops:       loops,
		Model:       model,
		Temperature: temperature,
		Seed:        seed,
		RPM:         rpm,
	}
	return drive(ctx, cmd.OutOrStdout(), a, ag, meta)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	prior, err := a.store.LoadStrict()
	if err != nil {
		return err
	}
	if prior.Status() == state.StatusEmpty {
		return fmt.Errorf("no session to resume in %s", a.store.Dir())
	}
	if prior.Status() == state.StatusCompleted && runLoops <= prior.TotalLoops {
		return fmt.Errorf("session %s is %s; nothing to resume", prior.SessionID, prior.Status())
	}

	model := prior.Model
	if model == "" {
		model = cfg.Model.Name
	}
	gen, err := newGenerator(ctx, cfg, model)
	if err != nil {
		return err
	}

	ag, err := agent.Resume(agent.Deps{
		Generator: gen,
		Limiter:   a.limiter(0),
		Context:   a.aggregator(),
		Registry:  a.registry,
		Store:     a.store,
		Archive:   a.turnArchive(),
		Policy:    a.policy(),
	}, agent.Options{
		Model:         model,
		Loops:         runLoops,
		Temperature:   cfg.Model.Temperature,
		Seed:          cfg.Model.Seed,
		ThinkingMode:  runThinking || cfg.Loop.ThinkingMode,
		HistoryWindow: cfg.Loop.HistoryWindow,
		StreamDelim:   cfg.Loop.StreamDelim,
		StreamSuffix:  cfg.State.StreamSuffix,
	}, prior)
	if err != nil {
		return err
	}
	defer ag.Close()

	sess := ag.Session()
	meta := sessionMetadata{
		SessionID:   sess.SessionID,
		Topic:       sess.Topic,
		Loops:       sess.TotalLoops,
		Model:       model,
		Temperature: cfg.Model.Temperature,
		Seed:        cfg.Model.Seed,
		RPM:         cfg.Model.RPM,
	}
	return drive(ctx, cmd.OutOrStdout(), a, ag, meta)
}

// drive runs the agent with SIGINT/SIGTERM mapped to cancellation, then
// exports the transcript.
func drive(ctx context.Context, out io.Writer, a *app, ag *agent.Agent, meta sessionMetadata) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			logging.Session("Received shutdown signal")
			ag.Control().Cancel("interrupted by user")
		case <-done:
		}
	}()

	p := &printer{out: out}
	var runErr error
	for ev := range ag.Run(ctx) {
		p.event(ev)
		if ev.Kind == agent.EventError {
			runErr = ev.Err
		}
	}

	sess := ag.Session()
	meta.Status = ag.State().String()
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("session %s %s at loop %d of %d", sess.SessionID, meta.Status, sess.CurrentLoopIndex, sess.TotalLoops)))
	if ag.State() == agent.StatePaused {
		fmt.Fprintln(out, dimStyle.Render("continue with: lens resume"))
	}

	if !runNoExport && len(sess.History) > 0 {
		at := now()
		path, _, err := transcript.Export(a.sandbox, &sess, transcript.FormatMarkdown, at)
		if err != nil {
			logging.Get(logging.CategorySession).Error("transcript export failed: %v", err)
		} else {
			meta.OutputFile = path
			fmt.Fprintln(out, okStyle.Render("transcript saved to "+path))
		}
		if _, err := a.sandbox.SaveMetadata("session_"+timestamp(at), meta); err != nil {
			logging.Get(logging.CategorySession).Warn("session metadata not saved: %v", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("%w: %w", errRunIncomplete, runErr)
	}
	return nil
}

// uploadFile reads path into the aggregator, warning on failure.
func uploadFile(warn io.Writer, upload func(string, []byte) bool, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(warn, errStyle.Render("could not read context file: "+err.Error()))
		return
	}
	if !upload(filepath.Base(path), data) {
		fmt.Fprintln(warn, errStyle.Render("skipped context file "+path+" (unsupported or empty)"))
	}
}
