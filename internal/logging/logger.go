// Package logging provides categorized structured logging for laserlens.
// Each subsystem logs under its own category, which becomes the zap logger
// name. Until Initialize is called every logger is a no-op, so packages and
// tests can log freely without setup.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Boot/initialization
	CategorySession Category = "session" // Session state, resume
	CategoryAPI     Category = "api"     // Generation calls, retries
	CategoryAgent   Category = "agent"   // Loop driver
	CategoryTools   Category = "tools"   // Directive execution
	CategoryContext Category = "context" // Context aggregation
	CategoryStore   Category = "store"   // State file and archive
	CategoryPlugins Category = "plugins" // Plugin discovery
)

// Options configures the logging backend. It mirrors config.LoggingConfig
// so this package does not import config.
type Options struct {
	Level      string          // debug, info, warn, error
	Format     string          // console, json
	File       string          // optional log file; empty means stderr only
	Categories map[string]bool // nil or empty enables every category
}

// Logger is a category-bound printf-style logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu         sync.RWMutex
	root       = zap.NewNop()
	loggers    = make(map[Category]*Logger)
	categories map[string]bool
	level      = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Initialize builds the zap backend. Safe to call more than once; later calls
// replace the backend and drop cached category loggers.
func Initialize(opts Options) error {
	if err := level.UnmarshalText([]byte(normalizeLevel(opts.Level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		sinks = append(sinks, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)

	mu.Lock()
	defer mu.Unlock()
	root = zap.New(core)
	categories = opts.Categories
	loggers = make(map[Category]*Logger)

	root.Named(string(CategoryBoot)).Sugar().Debugf("logging initialized (level=%s, format=%s, file=%q)",
		level.Level(), opts.Format, opts.File)
	return nil
}

// UseLogger installs an existing zap logger as the backend. Used by the CLI
// when it builds its own logger, and by tests with zaptest/observer.
func UseLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = l
	loggers = make(map[Category]*Logger)
}

// Root returns the backend logger.
func Root() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// Sync flushes buffered entries. Call at shutdown.
func Sync() {
	_ = Root().Sync()
}

// SetLevel changes the minimum level at runtime.
func SetLevel(l string) error {
	return level.UnmarshalText([]byte(normalizeLevel(l)))
}

func normalizeLevel(l string) string {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "":
		return "info"
	case "warning":
		return "warn"
	default:
		return strings.ToLower(strings.TrimSpace(l))
	}
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if len(categories) == 0 {
		return true
	}
	enabled, ok := categories[string(category)]
	return !ok || enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	enabled := IsCategoryEnabled(category)

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	base := root
	if !enabled {
		base = zap.NewNop()
	}
	l := &Logger{category: category, sugar: base.Named(string(category)).Sugar()}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a logger carrying structured key-value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Session logs to the session category
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs debug to the session category
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// API logs to the api category
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Agent logs to the agent category
func Agent(format string, args ...interface{}) { Get(CategoryAgent).Info(format, args...) }

// AgentDebug logs debug to the agent category
func AgentDebug(format string, args ...interface{}) { Get(CategoryAgent).Debug(format, args...) }

// Tools logs to the tools category
func Tools(format string, args ...interface{}) { Get(CategoryTools).Info(format, args...) }

// ToolsDebug logs debug to the tools category
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debug(format, args...) }

// Context logs to the context category
func Context(format string, args ...interface{}) { Get(CategoryContext).Info(format, args...) }

// ContextDebug logs debug to the context category
func ContextDebug(format string, args ...interface{}) { Get(CategoryContext).Debug(format, args...) }

// Store logs to the store category
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs debug to the store category
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Plugins logs to the plugins category
func Plugins(format string, args ...interface{}) { Get(CategoryPlugins).Info(format, args...) }
