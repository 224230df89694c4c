package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"laserlens/internal/tools"
	"laserlens/internal/tools/sandbox"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*tools.Registry, *sandbox.Sandbox) {
	t.Helper()
	sb, err := sandbox.New(t.TempDir(), sandbox.Options{})
	require.NoError(t, err)
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, sb))
	return reg, sb
}

func run(t *testing.T, reg *tools.Registry, name string, args map[string]string) string {
	t.Helper()
	res, _ := reg.Execute(context.Background(), name, args)
	require.NotNil(t, res)
	return res.Output
}

func writeRaw(t *testing.T, sb *sandbox.Sandbox, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(sb.Dir(), name), []byte(content), 0644))
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegisterAll(t *testing.T) {
	t.Parallel()
	reg, _ := setup(t)

	assert.Equal(t, []string{
		"APPEND_FILE", "CANCEL", "DELETE_FILE", "HELP", "LIST_OUTPUTS",
		"PAUSE", "READ_FILE", "READ_LINES", "WORD_COUNT", "WRITE_FILE",
	}, reg.Names())
	for alias, target := range Aliases {
		assert.Same(t, reg.Get(target), reg.Get(alias), alias)
	}
}

// =============================================================================
// WRITE / APPEND / READ
// =============================================================================

func TestWriteFile(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)

	out := run(t, reg, "WRITE_FILE", map[string]string{"filename": "notes.md", "content": "hello"})
	assert.Equal(t, "Wrote 5 chars to "+filepath.Join(sb.Dir(), "notes.md"), out)
}

func TestWriteFile_MissingFilename(t *testing.T) {
	t.Parallel()
	reg, _ := setup(t)
	out := run(t, reg, "WRITE_FILE", map[string]string{"content": "x"})
	assert.True(t, strings.HasPrefix(out, "ERROR: Missing required argument"), out)
}

func TestWriteFile_DryRun(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)

	out := run(t, reg, "WRITE_FILE", map[string]string{"filename": "x.txt", "content": "hi", "dry_run": "true"})
	assert.Contains(t, out, "DRY RUN")
	assert.NoFileExists(t, filepath.Join(sb.Dir(), "x.txt"))
}

func TestAppendFile_Missing(t *testing.T) {
	t.Parallel()
	reg, _ := setup(t)
	out := run(t, reg, "APPEND_FILE", map[string]string{"filename": "nofile.txt", "content": "x"})
	assert.Equal(t, "ERROR: File nofile.txt does not exist", out)
}

func TestWriteAppendRead(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)

	run(t, reg, "WRITE_FILE", map[string]string{"filename": "file.txt", "content": "first\n"})
	out := run(t, reg, "APPEND_FILE", map[string]string{"filename": "file.txt", "content": "second"})
	assert.Equal(t, "Appended 6 chars to file.txt", out)

	data, err := os.ReadFile(filepath.Join(sb.Dir(), "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", string(data))

	out = run(t, reg, "CAT", map[string]string{"filename": "file.txt"})
	assert.Equal(t, "CONTENT_START\nfirst\nsecond\nCONTENT_END", out)
}

func TestReadFile_Truncation(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)

	var lines []string
	for i := 0; i < 20; i++ {
		lines = append(lines, fmt.Sprint(i))
	}
	writeRaw(t, sb, "big.txt", strings.Join(lines, "\n"))

	out := run(t, reg, "READ_FILE", map[string]string{"filename": "big.txt"})
	assert.True(t, strings.HasPrefix(out, "WARNING: File has 20 lines; showing first 10."), out)
	assert.Contains(t, out, "CONTENT_START\n0\n1\n")
	assert.Contains(t, out, "9\nCONTENT_END")
	assert.NotContains(t, out, "10\n")
}

// =============================================================================
// READ LINES
// =============================================================================

func TestReadLines(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)
	writeRaw(t, sb, "sample.txt", "one\ntwo\nthree\nfour\n")

	tests := []struct {
		name string
		args map[string]string
		want string
	}{
		{"range", map[string]string{"start": "2", "end": "3"}, "two\nthree"},
		{"defaults", map[string]string{}, "one\ntwo\nthree\nfour"},
		{"end past eof", map[string]string{"start": "3", "end": "99"}, "three\nfour"},
		{"reversed", map[string]string{"start": "3", "end": "2"}, "ERROR: Invalid line range: start=3 end=2"},
		{"negative", map[string]string{"start": "-1"}, "ERROR: Invalid line range: start=-1 end=8"},
		{"not integers", map[string]string{"start": "two"}, "ERROR: Start and end must be integers"},
		{"start past eof", map[string]string{"start": "9"}, "ERROR: Invalid line range: file has 4 lines, start=9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]string{"filename": "sample.txt"}
			for k, v := range tt.args {
				args[k] = v
			}
			assert.Equal(t, tt.want, run(t, reg, "READ_LINES", args))
		})
	}
}

func TestReadLines_AliasMatchesTarget(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)
	writeRaw(t, sb, "sample.txt", "a\nb\nc\n")

	expected := run(t, reg, "READ_LINES", map[string]string{"filename": "sample.txt", "start": "1", "end": "2"})
	results := reg.ScanAndExecute(context.Background(), `[[COMMAND: RL filename="sample.txt" start="1" end="2"]]`)
	require.Len(t, results, 1)
	assert.Equal(t, "RL", results[0].Name)
	assert.Equal(t, expected, results[0].Output)
}

// =============================================================================
// LIST / DELETE / WORD COUNT
// =============================================================================

func TestListOutputs(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)

	assert.Equal(t, "(no files found in outputs/)", run(t, reg, "LS", nil))

	writeRaw(t, sb, "b.md", "")
	writeRaw(t, sb, "a.txt", "")
	assert.Equal(t, "a.txt\nb.md", run(t, reg, "LIST_OUTPUTS", nil))
}

func TestDeleteFile(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)
	writeRaw(t, sb, "gone.txt", "x")

	assert.Equal(t, "Deleted gone.txt", run(t, reg, "RM", map[string]string{"filename": "gone.txt"}))
	assert.NoFileExists(t, filepath.Join(sb.Dir(), "gone.txt"))
	assert.Contains(t, run(t, reg, "DELETE_FILE", map[string]string{"filename": "gone.txt"}), "does not exist")
}

func TestWordCount(t *testing.T) {
	t.Parallel()
	reg, sb := setup(t)
	writeRaw(t, sb, "sample.txt", "hello world\nsecond line")

	assert.Equal(t, "2 lines, 4 words", run(t, reg, "WC", map[string]string{"filename": "sample.txt"}))
	assert.Contains(t, run(t, reg, "WORD_COUNT", map[string]string{"filename": "none.txt"}), "does not exist")
}

// =============================================================================
// HELP AND CONTROL
// =============================================================================

func TestHelp(t *testing.T) {
	t.Parallel()
	reg, _ := setup(t)
	require.NoError(t, reg.Register(&tools.Tool{
		Name:        "RUN_PYTHON",
		Description: "late registration",
		Execute:     func(ctx context.Context, args map[string]string) (string, error) { return "", nil },
	}))

	out := run(t, reg, "HELP", nil)
	assert.Contains(t, out, "RUN_PYTHON")
	assert.Contains(t, out, "READ_FILE: Show the first 10 lines of a sandbox file (aliases: CAT)")
	assert.Contains(t, out, runtime.GOOS+"/"+runtime.GOARCH)
}

func TestControlDirectives(t *testing.T) {
	t.Parallel()
	reg, _ := setup(t)

	res, err := reg.Execute(context.Background(), "CANCEL", map[string]string{"reason": "stop"})
	require.NoError(t, err)
	assert.Equal(t, "stop", res.Output)
	assert.Equal(t, tools.CategoryControl, reg.Get("CANCEL").Category)

	res, err = reg.Execute(context.Background(), "PAUSE", map[string]string{"reason": "  "})
	assert.ErrorIs(t, err, tools.ErrMissingRequiredArg)
	assert.True(t, strings.HasPrefix(res.Output, "ERROR:"))

	res, err = reg.Execute(context.Background(), "PAUSE", nil)
	assert.Error(t, err)
	assert.True(t, strings.HasPrefix(res.Output, "ERROR:"))
}
