// Package plugins loads extra directives from Go source files interpreted
// with yaegi. Each file in the plugin directory is a package main exporting
//
//	func Run(args map[string]string) (string, error)
//
// and optionally a Description string. The directive name is the upper-cased
// file stem. Plugins may only import the allow-listed standard packages.
package plugins

import (
	"context"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"laserlens/internal/logging"
	"laserlens/internal/tools"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/sync/errgroup"
)

var validName = regexp.MustCompile(`^\w+$`)

// DefaultAllowedImports are the packages a plugin may import.
var DefaultAllowedImports = []string{
	"bytes", "encoding/base64", "encoding/json", "errors", "fmt", "math",
	"path", "path/filepath", "regexp", "sort", "strconv", "strings", "time",
	"unicode", "unicode/utf8",
}

// RunFunc is the entry point every plugin exports.
type RunFunc = func(args map[string]string) (string, error)

// Loader discovers and interprets plugin files.
type Loader struct {
	dir     string
	allowed map[string]bool
	timeout time.Duration
}

// NewLoader creates a loader for dir. A zero timeout means 10s per call.
func NewLoader(dir string, timeout time.Duration) *Loader {
	allowed := make(map[string]bool, len(DefaultAllowedImports))
	for _, p := range DefaultAllowedImports {
		allowed[p] = true
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Loader{dir: dir, allowed: allowed, timeout: timeout}
}

// Discover lists plugin source files, sorted. A missing directory yields none.
func (l *Loader) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".go" || strings.HasSuffix(e.Name(), "_test.go") {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Load interprets one plugin file and wraps it as a directive.
func (l *Loader) Load(path string) (*tools.Tool, error) {
	name := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), ".go"))
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("plugin %s: name %q is not a valid directive name", path, name)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}
	if err := l.validateImports(path, src); err != nil {
		return nil, fmt.Errorf("plugin %s: %w", name, err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("plugin %s: failed to load stdlib: %w", name, err)
	}
	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("plugin %s: evaluation failed: %w", name, err)
	}

	v, err := i.Eval("main.Run")
	if err != nil {
		return nil, fmt.Errorf("plugin %s: Run function not found: %w", name, err)
	}
	runFn, ok := v.Interface().(RunFunc)
	if !ok {
		return nil, fmt.Errorf("plugin %s: Run has incorrect signature (expected: func(map[string]string) (string, error))", name)
	}

	desc := "Plugin directive from " + filepath.Base(path)
	if d, err := i.Eval("main.Description"); err == nil {
		if s, ok := d.Interface().(string); ok && s != "" {
			desc = s
		}
	}

	return &tools.Tool{
		Name:        name,
		Description: desc,
		Usage:       "[[COMMAND: " + name + " ...]]",
		Category:    tools.CategoryPlugin,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return l.call(ctx, name, runFn, args)
		},
	}, nil
}

// call runs the plugin, giving up when ctx or the per-call timeout ends.
func (l *Loader) call(ctx context.Context, name string, run RunFunc, args map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("plugin %s panicked: %v", name, p)}
			}
		}()
		out, err := run(args)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("plugin %s timed out: %w", name, ctx.Err())
	}
}

func (l *Loader) validateImports(path string, src []byte) error {
	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.ImportsOnly)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	var forbidden []string
	for _, imp := range f.Imports {
		pkg, _ := strconv.Unquote(imp.Path.Value)
		if !l.allowed[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports detected: %v", forbidden)
	}
	return nil
}

// RegisterAll loads every plugin in the directory concurrently and registers
// the ones that load. Failures, including name clashes, are logged and
// skipped. Returns the registered names.
func (l *Loader) RegisterAll(ctx context.Context, registry *tools.Registry) ([]string, error) {
	paths, err := l.Discover()
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	loaded := make([]*tools.Tool, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for idx, path := range paths {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			tool, err := l.Load(path)
			if err != nil {
				logging.Get(logging.CategoryPlugins).Warn("skipping plugin: %v", err)
				return nil
			}
			loaded[idx] = tool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var names []string
	for _, tool := range loaded {
		if tool == nil {
			continue
		}
		if err := registry.Register(tool); err != nil {
			logging.Get(logging.CategoryPlugins).Warn("skipping plugin %s: %v", tool.Name, err)
			continue
		}
		names = append(names, tool.Name)
	}
	logging.Plugins("loaded %d plugin directive(s) from %s", len(names), l.dir)
	return names, nil
}
