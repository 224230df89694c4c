package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"laserlens/internal/config"
	"laserlens/internal/llm"
	"laserlens/internal/state"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// scripted yields one response per call, cycling through responses.
type scripted struct {
	responses []string
	err       error
	calls     int
}

func (s *scripted) Stream(_ context.Context, _ llm.Request) iter.Seq2[string, error] {
	i := s.calls
	s.calls++
	return func(yield func(string, error) bool) {
		if s.err != nil {
			yield("", s.err)
			return
		}
		yield(s.responses[i%len(s.responses)], nil)
	}
}

// setupWorkspace points the CLI at a temp workspace with a fake generator.
func setupWorkspace(t *testing.T, gen llm.Generator) string {
	t.Helper()
	ws := t.TempDir()

	workspace, configPath, verbose = ws, "", false
	runTopic, runLoops, runModel = "", 0, ""
	runRPM, runResumeLoop = 0, 0
	runThinking, runFresh, runNoExport = false, false, false
	runContext, runResumeFile = nil, ""
	historySession, historyLimit = "", 10
	exportFormat = "md"
	userPrefsPath = filepath.Join(ws, "prefs.json")
	now = func() time.Time { return time.Date(2025, 5, 6, 7, 8, 9, 0, time.Local) }

	origGen, origList := newGenerator, listModels
	newGenerator = func(context.Context, *config.Config, string) (llm.Generator, error) { return gen, nil }
	t.Cleanup(func() { newGenerator, listModels = origGen, origList })

	t.Setenv("LENS_MODEL", "")
	require.NoError(t, loadConfig())
	cfg.Model.RPM = 6000
	cfg.Loop.BackoffBase = "1ms"
	cfg.Plugins.Enabled = false
	return ws
}

func execute(t *testing.T, cmd *cobra.Command, fn func(*cobra.Command, []string) error) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil); cmd.SetErr(nil) })
	err := fn(cmd, nil)
	return buf.String(), err
}

func TestRunCommand_CompletesAndExports(t *testing.T) {
	gen := &scripted{responses: []string{
		`First idea. [[COMMAND: WRITE_FILE filename="notes.md" content="seed"]]`,
		"Second idea, summarized.",
	}}
	setupWorkspace(t, gen)
	runTopic, runLoops = "Ocean Tides", 2

	out, err := execute(t, runCmd, runRun)
	require.NoError(t, err)

	assert.Contains(t, out, "Loop 1 of 2")
	assert.Contains(t, out, "WRITE_FILE")
	assert.Contains(t, out, "Wrote 4 chars to")
	assert.Contains(t, out, "completed at loop 2 of 2")
	assert.Equal(t, 2, gen.calls)

	transcriptPath := filepath.Join(cfg.Sandbox.OutputDir, "ocean_tides_20250506_070809.md")
	data, err := os.ReadFile(transcriptPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Recursive Analysis of Ocean Tides")
	assert.Contains(t, string(data), "## Loop 2")

	meta, err := os.ReadFile(filepath.Join(cfg.Sandbox.OutputDir, "session_20250506_070809.json"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), `"status": "completed"`)
	assert.Contains(t, string(meta), transcriptPath)

	store, err := state.NewStore(cfg.State.Dir)
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, store.Load().Status())

	assert.Equal(t, cfg.Model.Name, config.LoadUserPrefs(userPrefsPath).LastModel)
}

func TestRunCommand_QuotaFailure(t *testing.T) {
	gen := &scripted{err: genai.APIError{Code: 429, Message: "quota exceeded"}}
	setupWorkspace(t, gen)
	runTopic, runLoops = "t", 3

	out, err := execute(t, runCmd, runRun)
	require.Error(t, err)
	assert.ErrorIs(t, err, errRunIncomplete)
	assert.ErrorIs(t, err, llm.ErrQuotaExhausted)
	assert.Contains(t, out, "Quota exhausted on loop 1")
	assert.Equal(t, 1, gen.calls)
}

func TestRunCommand_ContextFiles(t *testing.T) {
	gen := &scripted{responses: []string{"ok"}}
	ws := setupWorkspace(t, gen)
	notes := filepath.Join(ws, "notes.md")
	require.NoError(t, os.WriteFile(notes, []byte("lunar cycle"), 0644))
	bad := filepath.Join(ws, "image.png")
	require.NoError(t, os.WriteFile(bad, []byte("png"), 0644))
	runTopic, runLoops, runContext = "t", 1, []string{notes, bad}

	var captured string
	newGenerator = func(context.Context, *config.Config, string) (llm.Generator, error) {
		return generatorFunc(func(req llm.Request) {
			captured = req.Prompt
		}, gen), nil
	}

	out, err := execute(t, runCmd, runRun)
	require.NoError(t, err)
	assert.Contains(t, captured, "lunar cycle")
	assert.Contains(t, out, "skipped context file")
}

// generatorFunc wraps a generator and observes each request.
func generatorFunc(observe func(llm.Request), inner llm.Generator) llm.Generator {
	return observed{observe: observe, inner: inner}
}

type observed struct {
	observe func(llm.Request)
	inner   llm.Generator
}

func (o observed) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	o.observe(req)
	return o.inner.Stream(ctx, req)
}

func TestResumeCommand(t *testing.T) {
	gen := &scripted{responses: []string{`[[COMMAND: PAUSE reason="check"]]`, "two", "three"}}
	setupWorkspace(t, gen)
	runTopic, runLoops, runNoExport = "t", 3, true

	out, err := execute(t, runCmd, runRun)
	require.NoError(t, err)
	assert.Contains(t, out, "continue with: lens resume")

	runLoops = 0
	out, err = execute(t, resumeCmd, runResume)
	require.NoError(t, err)
	assert.Contains(t, out, "completed at loop 3 of 3")
	assert.Equal(t, 3, gen.calls)

	_, err = execute(t, resumeCmd, runResume)
	assert.ErrorContains(t, err, "nothing to resume")
}

func TestStatusCommand(t *testing.T) {
	setupWorkspace(t, &scripted{responses: []string{"x"}})

	out, err := execute(t, statusCmd, runStatus)
	require.NoError(t, err)
	assert.Contains(t, out, "No session state found.")

	runTopic, runLoops = "Reefs", 1
	_, err = execute(t, runCmd, runRun)
	require.NoError(t, err)

	out, err = execute(t, statusCmd, runStatus)
	require.NoError(t, err)
	assert.Contains(t, out, "Reefs")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "1 of 1")
}

func TestCommandsCommand(t *testing.T) {
	setupWorkspace(t, &scripted{responses: []string{"x"}})

	out, err := execute(t, commandsCmd, commandsCmd.RunE)
	require.NoError(t, err)
	for _, name := range []string{"WRITE_FILE", "EXEC", "RUN_PYTHON", "CANCEL", "LS"} {
		assert.Contains(t, out, name)
	}
}

func TestModelsCommand(t *testing.T) {
	setupWorkspace(t, &scripted{responses: []string{"x"}})
	listModels = func(context.Context, *config.Config) ([]string, error) {
		return []string{"gemini-2.5-flash", "gemini-2.5-pro"}, nil
	}

	out, err := execute(t, modelsCmd, modelsCmd.RunE)
	require.NoError(t, err)
	assert.Contains(t, out, "gemini-2.5-pro")
	assert.Contains(t, out, "Total: 2 models")

	listModels = func(context.Context, *config.Config) ([]string, error) {
		return nil, errors.New("no key")
	}
	_, err = execute(t, modelsCmd, modelsCmd.RunE)
	assert.Error(t, err)
}

func TestHistoryAndExport(t *testing.T) {
	setupWorkspace(t, &scripted{responses: []string{"alpha", "beta"}})
	runTopic, runLoops, runNoExport = "Glaciers", 2, true
	_, err := execute(t, runCmd, runRun)
	require.NoError(t, err)

	out, err := execute(t, historyCmd, runHistory)
	require.NoError(t, err)
	assert.Contains(t, out, "Glaciers")
	assert.Contains(t, out, "Total: 1 sessions")

	historySession = "current"
	out, err = execute(t, historyCmd, runHistory)
	require.NoError(t, err)
	assert.Contains(t, out, "Loop 1")
	assert.Contains(t, out, "beta")

	exportFormat = "html"
	out, err = execute(t, exportCmd, runExport)
	require.NoError(t, err)
	assert.Contains(t, out, "glaciers_20250506_070809.html")

	exportFormat = "pdf"
	_, err = execute(t, exportCmd, runExport)
	assert.Error(t, err)
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("x", maxResultPreview+5)
	assert.Equal(t, maxResultPreview+1, len([]rune(preview(long))))
	assert.Equal(t, "ok", preview(" ok \n"))
	assert.Equal(t, "a", firstLine("a\nb"))
	assert.Equal(t, "session_20250506_070809", fmt.Sprintf("session_%s", timestamp(time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC))))
}
