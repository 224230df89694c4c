package state

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "agent_state"))
	require.NoError(t, err)
	return st
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	sess := st.Load()
	assert.Equal(t, StatusEmpty, sess.Status())
	assert.Empty(t, sess.History)
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	require.NoError(t, os.WriteFile(st.Path(), []byte("{not json"), 0644))

	_, err := st.LoadStrict()
	assert.Error(t, err)
	assert.Equal(t, &Session{}, st.Load())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	st := newStore(t)

	in := &Session{
		SessionID:        "abc",
		Topic:            "tides",
		CurrentLoopIndex: 2,
		TotalLoops:       3,
		History:          []Turn{{Prompt: "p1", Response: "r1", Timestamp: "2024-01-01T00:00:00Z"}},
		LastThought:      "r1",
		Paused:           ptr("tea break"),
		TmpStreamPath:    "/tmp/stream.md",
		CommandResults:   []CommandResult{{Name: "LS", Result: "a.txt"}},
	}
	require.NoError(t, st.Save(in))

	out, err := st.LoadStrict()
	require.NoError(t, err)
	if diff := cmp.Diff(in, out, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StatusPaused, out.Status())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, st.Save(&Session{SessionID: "x", CurrentLoopIndex: i}))
	}
	entries, err := os.ReadDir(st.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, FileName, entries[0].Name())
}

func TestClear(t *testing.T) {
	t.Parallel()
	st := newStore(t)
	require.NoError(t, st.Clear())
	require.NoError(t, st.Save(&Session{SessionID: "x"}))
	require.NoError(t, st.Clear())
	assert.NoFileExists(t, st.Path())
}

func TestStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sess Session
		want Status
	}{
		{"empty", Session{}, StatusEmpty},
		{"running", Session{SessionID: "x", TotalLoops: 3, History: make([]Turn, 1)}, StatusRunning},
		{"paused", Session{SessionID: "x", Paused: ptr("p")}, StatusPaused},
		{"cancel wins", Session{SessionID: "x", Paused: ptr("p"), Cancelled: ptr("c")}, StatusCancelled},
		{"completed", Session{SessionID: "x", TotalLoops: 2, History: make([]Turn, 2), Completed: true}, StatusCompleted},
		{"completed from a later start", Session{SessionID: "x", CurrentLoopIndex: 3, TotalLoops: 3, History: make([]Turn, 1), Completed: true}, StatusCompleted},
		{"full history still running", Session{SessionID: "x", TotalLoops: 2, History: make([]Turn, 2)}, StatusRunning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sess.Status())
		})
	}
	assert.True(t, (&Session{SessionID: "x", Paused: ptr("p")}).Resumable())
	assert.False(t, (&Session{SessionID: "x", Cancelled: ptr("c")}).Resumable())
	assert.False(t, (&Session{SessionID: "x", TotalLoops: 1, Completed: true}).Resumable())
}

func TestMirror_AppendsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := MirrorPath(t.TempDir(), "s1", ".md")
	assert.Equal(t, "stream_s1.md", filepath.Base(path))

	m, err := OpenMirror(path)
	require.NoError(t, err)
	require.NoError(t, m.Write("one"))
	require.NoError(t, m.Close())

	m, err = OpenMirror(path)
	require.NoError(t, err)
	require.NoError(t, m.Write(" two"))
	require.NoError(t, m.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one two", string(data))
}

func TestWatch_SeesSaves(t *testing.T) {
	st := newStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var seen []int
	done := make(chan error, 1)
	started := make(chan struct{})
	go func() {
		done <- st.Watch(ctx, 20*time.Millisecond, func(s *Session) {
			mu.Lock()
			seen = append(seen, s.CurrentLoopIndex)
			n := len(seen)
			mu.Unlock()
			if n == 1 {
				close(started)
			}
		})
	}()

	<-started
	require.NoError(t, st.Save(&Session{SessionID: "w", CurrentLoopIndex: 7}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) >= 2 && seen[len(seen)-1] == 7
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
