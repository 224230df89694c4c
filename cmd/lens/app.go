package main

import (
	"context"
	"fmt"
	"time"

	"laserlens/internal/agent"
	"laserlens/internal/archive"
	"laserlens/internal/config"
	"laserlens/internal/contextmgr"
	"laserlens/internal/llm"
	"laserlens/internal/logging"
	"laserlens/internal/ratelimit"
	"laserlens/internal/retry"
	"laserlens/internal/state"
	"laserlens/internal/tools"
	"laserlens/internal/tools/core"
	"laserlens/internal/tools/plugins"
	"laserlens/internal/tools/sandbox"
	"laserlens/internal/tools/shell"
)

// app is the dependency set every command builds from the loaded config.
type app struct {
	cfg      *config.Config
	sandbox  *sandbox.Sandbox
	registry *tools.Registry
	store    *state.Store
	archive  *archive.Store // nil when disabled or unavailable
	plugins  []string
}

// newGenerator and listModels are replaced in tests.
var (
	newGenerator = func(ctx context.Context, cfg *config.Config, model string) (llm.Generator, error) {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		return llm.NewGemini(ctx, cfg.Model.APIKey, model, cfg.GetModelTimeout())
	}

	listModels = func(ctx context.Context, cfg *config.Config) ([]string, error) {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
		g, err := llm.NewGemini(ctx, cfg.Model.APIKey, cfg.Model.Name, cfg.GetModelTimeout())
		if err != nil {
			return nil, err
		}
		return g.ListModels(ctx)
	}
)

// newApp wires the sandbox, registry, state store and archive.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	sb, err := sandbox.New(cfg.Sandbox.OutputDir, sandbox.Options{
		AllowedExtensions: cfg.Sandbox.AllowedExtensions,
		MaxStemLength:     cfg.Sandbox.MaxStemLength,
	})
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry()
	if err := core.RegisterAll(registry, sb); err != nil {
		return nil, fmt.Errorf("failed to register core directives: %w", err)
	}
	if err := shell.RegisterAll(registry, sb, shell.Options{
		Timeout:        cfg.GetExecTimeout(),
		DeniedPatterns: cfg.Sandbox.DeniedPatterns,
		Interpreter:    cfg.Sandbox.Interpreter,
	}); err != nil {
		return nil, fmt.Errorf("failed to register shell directives: %w", err)
	}

	a := &app{cfg: cfg, sandbox: sb, registry: registry}
	if cfg.Plugins.Enabled {
		loader := plugins.NewLoader(cfg.Plugins.Dir, cfg.GetExecTimeout())
		names, err := loader.RegisterAll(ctx, registry)
		if err != nil {
			logging.Get(logging.CategoryPlugins).Warn("plugin discovery failed: %v", err)
		}
		a.plugins = names
	}

	if a.store, err = state.NewStore(cfg.State.Dir); err != nil {
		return nil, err
	}

	if cfg.Archive.Enabled {
		arch, err := archive.NewStore(cfg.Archive.DatabasePath)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("turn archive disabled: %v", err)
		} else {
			a.archive = arch
		}
	}

	logging.Boot("ready: %d directives (%d plugins), outputs in %s", registry.Count(), len(a.plugins), sb.Dir())
	return a, nil
}

func (a *app) Close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logging.Get(logging.CategoryStore).Warn("closing archive: %v", err)
		}
	}
}

// policy is the retry policy from config.
func (a *app) policy() retry.Policy {
	return retry.Policy{
		MaxRetries: a.cfg.Loop.MaxRetries,
		BaseDelay:  a.cfg.GetBackoffBase(),
		FixedDelay: a.cfg.GetOverloadDelay(),
	}
}

func (a *app) aggregator() *contextmgr.Aggregator {
	var spiller contextmgr.Spiller
	if a.cfg.Context.SaveTruncated {
		spiller = a.sandbox
	}
	return contextmgr.New(contextmgr.Options{
		MaxChars: a.cfg.Context.MaxChars,
		Delim:    a.cfg.Loop.StreamDelim,
		Spiller:  spiller,
	})
}

func (a *app) limiter(rpm int) *ratelimit.Limiter {
	if rpm <= 0 {
		rpm = a.cfg.Model.RPM
	}
	return ratelimit.New(rpm)
}

// turnArchive returns the archive as an agent dependency, or nil.
func (a *app) turnArchive() agent.TurnArchive {
	if a.archive == nil {
		return nil
	}
	return a.archive
}

func timestamp(t time.Time) string {
	return t.Format("20060102_150405")
}
