package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"laserlens/internal/logging"
	"laserlens/internal/tools"
	"laserlens/internal/tools/sandbox"
)

// readFileMaxLines bounds READ_FILE output.
const readFileMaxLines = 10

var filenameProp = tools.Property{Type: "string", Description: "File name inside the sandbox (sanitized)"}

// WriteFileTool returns the WRITE_FILE directive.
func WriteFileTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "WRITE_FILE",
		Description: "Write content to a file in the sandbox, replacing it",
		Usage:       `[[COMMAND: WRITE_FILE filename="notes.md" content="Hello world!"]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return executeWriteFile(sb, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"filename"},
			Properties: map[string]tools.Property{
				"filename": filenameProp,
				"content":  {Type: "string", Description: "Text to write", Default: ""},
				"dry_run":  {Type: "boolean", Description: "Report the write without performing it", Default: "false"},
			},
		},
	}
}

func executeWriteFile(sb *sandbox.Sandbox, args map[string]string) (string, error) {
	name := args["filename"]
	content := args["content"]
	n := utf8.RuneCountInString(content)

	if isTrue(args["dry_run"]) {
		return fmt.Sprintf("[DRY RUN] Would write %d chars to %s", n, sb.Path(name)), nil
	}

	logging.ToolsDebug("write_file: %s (%d chars)", name, n)
	path, err := sb.SaveOutput(name, content)
	if err != nil {
		return "", fmt.Errorf("could not write file %s: %w", name, err)
	}
	return fmt.Sprintf("Wrote %d chars to %s", n, path), nil
}

// AppendFileTool returns the APPEND_FILE directive.
func AppendFileTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "APPEND_FILE",
		Description: "Append content to an existing sandbox file",
		Usage:       `[[COMMAND: APPEND_FILE filename="notes.md" content="more text"]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return executeAppendFile(sb, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"filename"},
			Properties: map[string]tools.Property{
				"filename": filenameProp,
				"content":  {Type: "string", Description: "Text to append", Default: ""},
			},
		},
	}
}

func executeAppendFile(sb *sandbox.Sandbox, args map[string]string) (string, error) {
	path, err := existing(sb, args["filename"])
	if err != nil {
		return "", err
	}
	content := args["content"]

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("could not open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("could not append to %s: %w", filepath.Base(path), err)
	}
	return fmt.Sprintf("Appended %d chars to %s", utf8.RuneCountInString(content), filepath.Base(path)), nil
}

// ReadFileTool returns the READ_FILE directive.
func ReadFileTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "READ_FILE",
		Description: "Show the first 10 lines of a sandbox file",
		Usage:       `[[COMMAND: READ_FILE filename="notes.md"]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return executeReadFile(sb, args)
		},
		Schema: tools.ToolSchema{
			Required:   []string{"filename"},
			Properties: map[string]tools.Property{"filename": filenameProp},
		},
	}
}

func executeReadFile(sb *sandbox.Sandbox, args map[string]string) (string, error) {
	lines, err := readLines(sb, args["filename"])
	if err != nil {
		return "", err
	}

	shown := lines
	prefix := ""
	if len(lines) > readFileMaxLines {
		shown = lines[:readFileMaxLines]
		prefix = fmt.Sprintf("WARNING: File has %d lines; showing first %d.\n", len(lines), readFileMaxLines)
	}
	return prefix + "CONTENT_START\n" + strings.Join(shown, "\n") + "\nCONTENT_END", nil
}

// ReadLinesTool returns the READ_LINES directive.
func ReadLinesTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "READ_LINES",
		Description: "Show an inclusive, 1-based line range of a sandbox file",
		Usage:       `[[COMMAND: READ_LINES filename="notes.md" start="1" end="10"]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return executeReadLines(sb, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"filename"},
			Properties: map[string]tools.Property{
				"filename": filenameProp,
				"start":    {Type: "integer", Description: "First line (1-based)", Default: "1"},
				"end":      {Type: "integer", Description: "Last line, inclusive", Default: "start+9"},
			},
		},
	}
}

func executeReadLines(sb *sandbox.Sandbox, args map[string]string) (string, error) {
	start, end, err := lineRange(args["start"], args["end"])
	if err != nil {
		return "", err
	}
	lines, err := readLines(sb, args["filename"])
	if err != nil {
		return "", err
	}

	if start > len(lines) {
		return "", fmt.Errorf("invalid line range: file has %d lines, start=%d", len(lines), start)
	}
	end = min(end, len(lines))
	return strings.Join(lines[start-1:end], "\n"), nil
}

func lineRange(startArg, endArg string) (int, int, error) {
	start, end := 1, 0
	var err error
	if strings.TrimSpace(startArg) != "" {
		if start, err = strconv.Atoi(strings.TrimSpace(startArg)); err != nil {
			return 0, 0, fmt.Errorf("start and end must be integers")
		}
	}
	if strings.TrimSpace(endArg) != "" {
		if end, err = strconv.Atoi(strings.TrimSpace(endArg)); err != nil {
			return 0, 0, fmt.Errorf("start and end must be integers")
		}
	} else {
		end = start + 9
	}
	if start < 1 || end < start {
		return 0, 0, fmt.Errorf("invalid line range: start=%d end=%d", start, end)
	}
	return start, end, nil
}

// ListOutputsTool returns the LIST_OUTPUTS directive.
func ListOutputsTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "LIST_OUTPUTS",
		Description: "List files in the sandbox",
		Usage:       `[[COMMAND: LIST_OUTPUTS]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			names, err := sb.List()
			if err != nil {
				return "", err
			}
			if len(names) == 0 {
				return "(no files found in outputs/)", nil
			}
			return strings.Join(names, "\n"), nil
		},
	}
}

// DeleteFileTool returns the DELETE_FILE directive.
func DeleteFileTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "DELETE_FILE",
		Description: "Delete a sandbox file",
		Usage:       `[[COMMAND: DELETE_FILE filename="notes.md"]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			path, err := existing(sb, args["filename"])
			if err != nil {
				return "", err
			}
			if err := os.Remove(path); err != nil {
				return "", fmt.Errorf("could not delete file %s: %w", filepath.Base(path), err)
			}
			logging.Tools("deleted %s", path)
			return "Deleted " + filepath.Base(path), nil
		},
		Schema: tools.ToolSchema{
			Required:   []string{"filename"},
			Properties: map[string]tools.Property{"filename": filenameProp},
		},
	}
}

// WordCountTool returns the WORD_COUNT directive.
func WordCountTool(sb *sandbox.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "WORD_COUNT",
		Description: "Count lines and whitespace-delimited words in a sandbox file",
		Usage:       `[[COMMAND: WORD_COUNT filename="notes.md"]]`,
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			path, err := existing(sb, args["filename"])
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("could not read file %s: %w", filepath.Base(path), err)
			}
			text := string(data)
			return fmt.Sprintf("%d lines, %d words", len(splitLines(text)), len(strings.Fields(text))), nil
		},
		Schema: tools.ToolSchema{
			Required:   []string{"filename"},
			Properties: map[string]tools.Property{"filename": filenameProp},
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// existing resolves name inside the sandbox and requires a regular file.
func existing(sb *sandbox.Sandbox, name string) (string, error) {
	if !sb.Exists(name) {
		return "", fmt.Errorf("file %s does not exist", sb.Sanitize(name))
	}
	return sb.Path(name), nil
}

func readLines(sb *sandbox.Sandbox, name string) ([]string, error) {
	path, err := existing(sb, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", filepath.Base(path), err)
	}
	return splitLines(string(data)), nil
}

// splitLines splits on newlines without producing a trailing empty line.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func isTrue(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
