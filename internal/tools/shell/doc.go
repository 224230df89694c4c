// Package shell provides the subprocess directives. Both run with the sandbox
// as working directory under a fixed timeout and return combined output.
//
// Directives:
//   - EXEC: run a shell command (denylisted patterns are refused)
//   - RUN_PYTHON: run code through the configured interpreter
package shell
