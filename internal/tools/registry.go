package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"laserlens/internal/logging"
	"laserlens/internal/protocol"
)

// Registry maps directive names and aliases to tools. It is populated once
// at startup and only read while a run executes directives.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Tool
	aliases map[string]string // alias → canonical name

	// byCategory provides fast lookup by category.
	byCategory map[ToolCategory][]*Tool
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:      make(map[string]*Tool),
		aliases:    make(map[string]string),
		byCategory: make(map[ToolCategory][]*Tool),
	}
}

// Register adds a tool under its upper-cased name.
// Returns an error if the name is already taken by a tool or alias.
func (r *Registry) Register(tool *Tool) error {
	if err := tool.Validate(); err != nil {
		return fmt.Errorf("invalid tool: %w", err)
	}
	tool.Name = normalize(tool.Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(tool.Name) {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, tool.Name)
	}

	r.tools[tool.Name] = tool
	r.byCategory[tool.Category] = append(r.byCategory[tool.Category], tool)

	logging.ToolsDebug("Registered tool: %s (category=%s)", tool.Name, tool.Category)
	return nil
}

// MustRegister registers a tool and panics on error.
// Use this for static registration at startup.
func (r *Registry) MustRegister(tool *Tool) {
	if err := r.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool %s: %v", tool.Name, err))
	}
}

// Alias makes alias resolve to the same tool object as target.
func (r *Registry) Alias(alias, target string) error {
	alias, target = normalize(alias), normalize(target)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[target]; !ok {
		return fmt.Errorf("%w: alias target %s", ErrToolNotFound, target)
	}
	if r.taken(alias) {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, alias)
	}
	r.aliases[alias] = target
	logging.ToolsDebug("Registered alias: %s -> %s", alias, target)
	return nil
}

func (r *Registry) taken(name string) bool {
	_, isTool := r.tools[name]
	_, isAlias := r.aliases[name]
	return isTool || isAlias
}

// Get returns a tool by name or alias (case-insensitive), or nil if not found.
func (r *Registry) Get(name string) *Tool {
	name = normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	return r.tools[name]
}

// Has returns true if a tool or alias with the given name is registered.
func (r *Registry) Has(name string) bool {
	return r.Get(name) != nil
}

// GetByCategory returns all tools in a category, sorted by name.
func (r *Registry) GetByCategory(category ToolCategory) []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, len(r.byCategory[category]))
	copy(tools, r.byCategory[category])
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Name < tools[j].Name
	})
	return tools
}

// All returns all registered tools sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Names returns all canonical tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the alias → canonical name mapping.
func (r *Registry) Aliases() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Count returns the number of registered tools, excluding aliases.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs a tool by name or alias with the given arguments.
// Returns ErrToolNotFound if the tool doesn't exist.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]string) (*Result, error) {
	tool := r.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	res := r.ExecuteTool(ctx, tool, args)
	res.Name = normalize(name)
	return res, res.Err
}

// ExecuteTool runs a specific tool. Handler errors and panics never escape;
// they become an "ERROR: ..." output with Err set.
func (r *Registry) ExecuteTool(ctx context.Context, tool *Tool, args map[string]string) (res *Result) {
	start := time.Now()
	res = &Result{Name: tool.Name, Tool: tool.Name}

	defer func() {
		if p := recover(); p != nil {
			res.Err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
		if res.Err != nil {
			res.Output = ErrorOutput(res.Err)
		}
		res.Duration = time.Since(start)
		logging.ToolsDebug("Tool %s completed in %v (success=%v)", tool.Name, res.Duration, res.Err == nil)
	}()

	if err := r.validateArgs(tool, args); err != nil {
		res.Err = err
		return res
	}

	logging.ToolsDebug("Executing tool: %s", tool.Name)
	res.Output, res.Err = tool.Execute(ctx, args)
	return res
}

// validateArgs checks that all required arguments are present and non-blank.
func (r *Registry) validateArgs(tool *Tool, args map[string]string) error {
	for _, required := range tool.Schema.Required {
		if strings.TrimSpace(args[required]) == "" {
			return fmt.Errorf("%w: '%s'", ErrMissingRequiredArg, required)
		}
	}
	return nil
}

// ScanAndExecute finds every directive in text and runs the registered ones
// in order of appearance. Unregistered directives are skipped without a
// result. A directive whose arguments fail to parse yields an error result
// and is not executed. No failure stops the scan.
func (r *Registry) ScanAndExecute(ctx context.Context, text string) []Result {
	var results []Result
	for _, d := range protocol.Scan(text) {
		if d.Err != nil {
			logging.Get(logging.CategoryTools).Warn("directive %s rejected: %v", d.Name, d.Err)
			results = append(results, Result{Name: d.Name, Output: ErrorOutput(d.Err), Err: d.Err})
			continue
		}
		tool := r.Get(d.Name)
		if tool == nil {
			logging.ToolsDebug("ignoring unregistered directive %s", d.Name)
			continue
		}
		res := r.ExecuteTool(ctx, tool, d.Args)
		res.Name = d.Name
		results = append(results, *res)
	}
	if len(results) > 0 {
		logging.Tools("executed %d directive(s)", len(results))
	}
	return results
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
