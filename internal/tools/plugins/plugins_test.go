package plugins

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"laserlens/internal/tools"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shoutPlugin = `package main

import "strings"

var Description = "Upper-case the text argument"

func Run(args map[string]string) (string, error) {
	return strings.ToUpper(args["text"]), nil
}
`

const failingPlugin = `package main

import "errors"

func Run(args map[string]string) (string, error) {
	return "", errors.New("nothing to do")
}
`

const slowPlugin = `package main

import "time"

func Run(args map[string]string) (string, error) {
	time.Sleep(2 * time.Second)
	return "late", nil
}
`

func writePlugin(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0644))
}

func TestRegisterAll_LoadsAndSkips(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "shout.go", shoutPlugin)
	writePlugin(t, dir, "broken.go", "package main\nfunc Run(")
	writePlugin(t, dir, "sneaky.go", "package main\nimport \"os/exec\"\nfunc Run(args map[string]string) (string, error) { _ = exec.Command; return \"\", nil }\n")
	writePlugin(t, dir, "wrongsig.go", "package main\nfunc Run(s string) string { return s }\n")
	writePlugin(t, dir, "notes.txt", "not a plugin")

	reg := tools.NewRegistry()
	names, err := NewLoader(dir, 0).RegisterAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"SHOUT"}, names)

	tool := reg.Get("shout")
	require.NotNil(t, tool)
	assert.Equal(t, tools.CategoryPlugin, tool.Category)
	assert.Equal(t, "Upper-case the text argument", tool.Description)

	results := reg.ScanAndExecute(context.Background(), `[[COMMAND: SHOUT text="hello"]]`)
	require.Len(t, results, 1)
	assert.Equal(t, "HELLO", results[0].Output)
}

func TestRegisterAll_NameClashSkipped(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "help.go", shoutPlugin)

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(&tools.Tool{
		Name:    "HELP",
		Execute: func(ctx context.Context, args map[string]string) (string, error) { return "core", nil },
	}))

	names, err := NewLoader(dir, 0).RegisterAll(context.Background(), reg)
	require.NoError(t, err)
	assert.Empty(t, names)
	assert.Equal(t, tools.ToolCategory(""), reg.Get("HELP").Category)
}

func TestRegisterAll_MissingDirectory(t *testing.T) {
	names, err := NewLoader(filepath.Join(t.TempDir(), "nope"), 0).RegisterAll(context.Background(), tools.NewRegistry())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestPluginErrorBecomesResult(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "fail.go", failingPlugin)
	tool, err := NewLoader(dir, 0).Load(filepath.Join(dir, "fail.go"))
	require.NoError(t, err)

	reg := tools.NewRegistry()
	require.NoError(t, reg.Register(tool))
	res, err := reg.Execute(context.Background(), "FAIL", nil)
	require.Error(t, err)
	assert.Equal(t, "ERROR: Nothing to do", res.Output)
}

func TestPluginTimeout(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "slow.go", slowPlugin)
	tool, err := NewLoader(dir, 50*time.Millisecond).Load(filepath.Join(dir, "slow.go"))
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestLoad_InvalidName(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "bad-name.go", shoutPlugin)
	_, err := NewLoader(dir, 0).Load(filepath.Join(dir, "bad-name.go"))
	assert.Error(t, err)
}
