package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "state", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAppendAndQueryTurns(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	require.NoError(t, st.BeginSession(ctx, "s1", "tides", "gemini-2.5-flash"))
	require.NoError(t, st.BeginSession(ctx, "s1", "ignored", "ignored"))
	require.NoError(t, st.BeginSession(ctx, "s2", "moons", ""))

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		require.NoError(t, st.AppendTurn(ctx, Turn{
			SessionID: "s1", LoopIndex: i, Prompt: "p", Response: "r", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, st.AppendTurn(ctx, Turn{SessionID: "s2", LoopIndex: 1, Prompt: "q", Response: "a"}))

	turns, err := st.Turns(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{turns[0].LoopIndex, turns[1].LoopIndex, turns[2].LoopIndex})
	assert.True(t, turns[0].CreatedAt.Equal(base.Add(time.Minute)))

	latest, err := st.Turns(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 2, latest[0].LoopIndex)
	assert.Equal(t, 3, latest[1].LoopIndex)

	all, err := st.Turns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSessions(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	require.NoError(t, st.BeginSession(ctx, "s1", "tides", "m"))
	require.NoError(t, st.AppendTurn(ctx, Turn{SessionID: "s1", LoopIndex: 1, Prompt: "p", Response: "r"}))

	sessions, err := st.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "tides", sessions[0].Topic)
	assert.Equal(t, 1, sessions[0].Turns)
	assert.False(t, sessions[0].StartedAt.IsZero())
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")

	st, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, st.AppendTurn(ctx, Turn{SessionID: "s", LoopIndex: 1, Prompt: "p", Response: "r"}))
	require.NoError(t, st.Close())

	st, err = NewStore(path)
	require.NoError(t, err)
	defer st.Close()
	turns, err := st.Turns(ctx, "s", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}
