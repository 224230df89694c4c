package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) *Tool {
	return &Tool{
		Name:     name,
		Category: CategoryMeta,
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return args["val"], nil
		},
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NotNil(t, reg)
	assert.Zero(t, reg.Count())
}

func TestRegisterAndGet_CaseInsensitive(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("foo")))

	got := reg.Get("Foo")
	require.NotNil(t, got)
	assert.Equal(t, "FOO", got.Name)
	assert.True(t, reg.Has("FOO"))
	assert.False(t, reg.Has("BAR"))
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("dupe")))
	err := reg.Register(echoTool("DUPE"))
	assert.ErrorIs(t, err, ErrToolAlreadyRegistered)
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Name: "", Execute: func(ctx context.Context, args map[string]string) (string, error) { return "", nil }},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "no_exec"},
			wantErr: ErrToolExecuteNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAlias_SharesHandlerObject(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("LIST_OUTPUTS")))
	require.NoError(t, reg.Alias("ls", "list_outputs"))

	assert.Same(t, reg.Get("LIST_OUTPUTS"), reg.Get("LS"))
	assert.Equal(t, []string{"LIST_OUTPUTS"}, reg.Names())
	assert.Equal(t, map[string]string{"LS": "LIST_OUTPUTS"}, reg.Aliases())
}

func TestAlias_Errors(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("A")))
	require.NoError(t, reg.Register(echoTool("B")))

	assert.ErrorIs(t, reg.Alias("X", "MISSING"), ErrToolNotFound)
	assert.ErrorIs(t, reg.Alias("B", "A"), ErrToolAlreadyRegistered)
	require.NoError(t, reg.Alias("X", "A"))
	assert.ErrorIs(t, reg.Alias("X", "B"), ErrToolAlreadyRegistered)
	assert.ErrorIs(t, reg.Register(echoTool("X")), ErrToolAlreadyRegistered)
}

func TestGetByCategory(t *testing.T) {
	reg := NewRegistry()
	b := echoTool("b")
	a := echoTool("a")
	c := echoTool("c")
	c.Category = CategoryFile
	for _, tool := range []*Tool{b, a, c} {
		require.NoError(t, reg.Register(tool))
	}

	meta := reg.GetByCategory(CategoryMeta)
	require.Len(t, meta, 2)
	assert.Equal(t, "A", meta[0].Name)
	assert.Equal(t, "B", meta[1].Name)
	assert.Len(t, reg.GetByCategory(CategoryFile), 1)
	assert.Len(t, reg.All(), 3)
}

// =============================================================================
// EXECUTION
// =============================================================================

func TestExecute(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("echo")))

	res, err := reg.Execute(context.Background(), "echo", map[string]string{"val": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Output)
	assert.True(t, res.IsSuccess())

	_, err = reg.Execute(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestExecute_MissingRequiredArg(t *testing.T) {
	reg := NewRegistry()
	tool := echoTool("needs")
	tool.Schema.Required = []string{"val"}
	require.NoError(t, reg.Register(tool))

	for _, args := range []map[string]string{nil, {"val": "   "}} {
		res, err := reg.Execute(context.Background(), "needs", args)
		assert.ErrorIs(t, err, ErrMissingRequiredArg)
		assert.Equal(t, "ERROR: Missing required argument: 'val'", res.Output)
	}
}

func TestExecute_HandlerErrorAndPanic(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&Tool{
		Name: "FAIL",
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			return "", errors.New("disk on fire")
		},
	}))
	require.NoError(t, reg.Register(&Tool{
		Name: "BOOM",
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			panic("kaboom")
		},
	}))

	res, err := reg.Execute(context.Background(), "FAIL", nil)
	require.Error(t, err)
	assert.Equal(t, "ERROR: Disk on fire", res.Output)

	res, err = reg.Execute(context.Background(), "BOOM", nil)
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, res.Output, "kaboom")
}

func TestErrorOutput_KeepsExistingPrefix(t *testing.T) {
	assert.Equal(t, "ERROR: already formatted", ErrorOutput(errors.New("ERROR: already formatted")))
}

// =============================================================================
// SCAN AND EXECUTE
// =============================================================================

type pair struct{ Name, Output string }

func pairs(results []Result) []pair {
	out := make([]pair, 0, len(results))
	for _, r := range results {
		out = append(out, pair{r.Name, r.Output})
	}
	return out
}

func TestScanAndExecute_Registered(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("FOO")))

	got := reg.ScanAndExecute(context.Background(), `[[COMMAND: FOO val="x"]]`)
	assert.Equal(t, []pair{{"FOO", "x"}}, pairs(got))
}

func TestScanAndExecute_Unregistered(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.ScanAndExecute(context.Background(), "[[COMMAND: MISSING]]"))
}

func TestScanAndExecute_MalformedArgument(t *testing.T) {
	reg := NewRegistry()
	got := reg.ScanAndExecute(context.Background(), "[[COMMAND: BAD badarg]]")
	require.Len(t, got, 1)
	assert.Equal(t, "BAD", got[0].Name)
	assert.Contains(t, got[0].Output, "badarg")
	assert.False(t, got[0].IsSuccess())
}

func TestScanAndExecute_OrderAndIsolation(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool("FOO")))
	require.NoError(t, reg.Alias("F", "FOO"))
	require.NoError(t, reg.Register(&Tool{
		Name: "BOOM",
		Execute: func(ctx context.Context, args map[string]string) (string, error) {
			panic("nope")
		},
	}))

	text := `first [[COMMAND: foo val="1"]] [[COMMAND: BOOM]] [[COMMAND: GHOST]]` +
		"\n" + `[[COMMAND: F val='2']] [[COMMAND: FOO stray]]`
	got := reg.ScanAndExecute(context.Background(), text)

	want := []Result{
		{Name: "FOO", Tool: "FOO", Output: "1"},
		{Name: "BOOM", Tool: "BOOM"},
		{Name: "F", Tool: "FOO", Output: "2"},
		{Name: "FOO"},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(Result{}, "Output", "Err", "Duration"),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("ScanAndExecute mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "1", got[0].Output)
	assert.Contains(t, got[1].Output, "ERROR:")
	assert.Equal(t, "2", got[2].Output)
	assert.Contains(t, got[3].Output, "stray")
}
