package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"laserlens/internal/logging"
	"laserlens/internal/tools"
	"laserlens/internal/tools/sandbox"
)

// maxOutput bounds captured output.
const maxOutput = 50000

// ProhibitedError is returned when a command matches the denylist. The
// command is never started.
type ProhibitedError struct {
	Pattern string
}

func (e *ProhibitedError) Error() string {
	return fmt.Sprintf("command contains prohibited pattern '%s'", e.Pattern)
}

// BuiltinDeniedPatterns are substrings that make EXEC refuse a command.
// They always apply; Options.DeniedPatterns can only add to them.
var BuiltinDeniedPatterns = []string{
	"sudo", "su ", "rm -rf", "rm -fr", "mkfs", "dd if=", ":(){",
	"shutdown", "reboot", "chmod -R 777 /",
	"curl", "wget", "nc ", "ncat", "netcat", "ssh ", "scp ", "telnet", "ftp ",
}

// Options configures subprocess directives.
type Options struct {
	Timeout        time.Duration
	DeniedPatterns []string // in addition to BuiltinDeniedPatterns
	Interpreter    string   // RUN_PYTHON; default python3
}

func (o Options) withDefaults() Options {
	denied := make([]string, 0, len(BuiltinDeniedPatterns)+len(o.DeniedPatterns))
	denied = append(denied, BuiltinDeniedPatterns...)
	o.DeniedPatterns = append(denied, o.DeniedPatterns...)
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Interpreter == "" {
		o.Interpreter = "python3"
	}
	return o
}

// ExecTool returns the EXEC directive.
func ExecTool(sb *sandbox.Sandbox, opts Options) *tools.Tool {
	opts = opts.withDefaults()
	return &tools.Tool{
		Name:        "EXEC",
		Description: "Run a shell command in the sandbox directory",
		Usage:       `[[COMMAND: EXEC cmd="ls -la"]]`,
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return executeCommand(ctx, sb, opts, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"cmd"},
			Properties: map[string]tools.Property{
				"cmd":     {Type: "string", Description: "The command to execute"},
				"dry_run": {Type: "boolean", Description: "Report the command without running it", Default: "false"},
			},
		},
	}
}

func executeCommand(ctx context.Context, sb *sandbox.Sandbox, opts Options, args map[string]string) (string, error) {
	command := args["cmd"]
	if pattern, ok := prohibited(command, opts.DeniedPatterns); ok {
		logging.Get(logging.CategoryTools).Warn("refused EXEC %q: matches %q", command, pattern)
		return "", &ProhibitedError{Pattern: pattern}
	}
	if isTrue(args["dry_run"]) {
		return "[DRY RUN] Would execute: " + command, nil
	}

	logging.ToolsDebug("exec: cmd=%s, dir=%s, timeout=%v", command, sb.Dir(), opts.Timeout)
	if runtime.GOOS == "windows" {
		return run(ctx, sb.Dir(), opts.Timeout, "cmd", "/C", command)
	}
	return run(ctx, sb.Dir(), opts.Timeout, "sh", "-c", command)
}

// RunPythonTool returns the RUN_PYTHON directive.
func RunPythonTool(sb *sandbox.Sandbox, opts Options) *tools.Tool {
	opts = opts.withDefaults()
	return &tools.Tool{
		Name:        "RUN_PYTHON",
		Description: "Run code with the interpreter in the sandbox directory",
		Usage:       `[[COMMAND: RUN_PYTHON code="print('hi')"]]`,
		Category:    tools.CategoryShell,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			code := args["code"]
			if isTrue(args["dry_run"]) {
				return fmt.Sprintf("[DRY RUN] Would run %d chars of code with %s", len(code), opts.Interpreter), nil
			}
			logging.ToolsDebug("run_python: interpreter=%s, code_len=%d", opts.Interpreter, len(code))
			return run(ctx, sb.Dir(), opts.Timeout, opts.Interpreter, "-c", code)
		},
		Schema: tools.ToolSchema{
			Required: []string{"code"},
			Properties: map[string]tools.Property{
				"code":    {Type: "string", Description: "Source to run"},
				"dry_run": {Type: "boolean", Description: "Report without running", Default: "false"},
			},
		},
	}
}

// run executes name with args in dir, capturing combined output.
func run(ctx context.Context, dir string, timeout time.Duration, name string, args ...string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, name, args...)
	cmd.Dir = dir
	// Children that inherit the pipes must not keep Wait blocked past the deadline.
	cmd.WaitDelay = time.Second

	out, err := cmd.CombinedOutput()
	output := string(out)
	if len(output) > maxOutput {
		output = output[:maxOutput] + "\n...[truncated]"
	}

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command timed out after %v", timeout)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Tools("%s failed: %v", name, err)
		return "", fmt.Errorf("command failed (%v): %s", err, strings.TrimSpace(output))
	}

	logging.ToolsDebug("%s completed (%d bytes output)", name, len(output))
	return strings.TrimRight(output, "\n"), nil
}

func prohibited(command string, patterns []string) (string, bool) {
	lower := strings.ToLower(command)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return p, true
		}
	}
	return "", false
}

func isTrue(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "t", "true", "yes":
		return true
	}
	return false
}
