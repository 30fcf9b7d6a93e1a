package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/state"
	"github.com/kadirpekel/hector/variables"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	s := state.New(nil)
	s.RegisterTask("a", "")
	require.NoError(t, s.SetTaskStatus("a", state.TaskCompleted, nil))
	s.PutCollected("r", 0, variables.Number(42))

	b := New("run-1", "hash-1", s)
	data, err := b.Marshal()
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "hash-1", got.ModelHash)
	assert.Equal(t, FormatVersion, got.Version)
}

func TestResumeRejectsModelMismatch(t *testing.T) {
	s := state.New(nil)
	b := New("run-1", "hash-a", s)

	err := Resume(context.Background(), b, "hash-b", state.New(nil))
	require.Error(t, err)
}

func TestResumeSkipsCompletedResetsRunning(t *testing.T) {
	s := state.New(nil)
	s.RegisterTask("done", "")
	s.RegisterTask("mid", "")
	require.NoError(t, s.SetTaskStatus("done", state.TaskCompleted, nil))
	require.NoError(t, s.SetTaskStatus("mid", state.TaskReady, nil))
	require.NoError(t, s.SetTaskStatus("mid", state.TaskRunning, nil))

	b := New("run-1", "hash-1", s)

	restored := state.New(nil)
	restored.RegisterTask("done", "")
	restored.RegisterTask("mid", "")
	require.NoError(t, Resume(context.Background(), b, "hash-1", restored))

	doneRec, ok := restored.TaskRecord("done")
	require.True(t, ok)
	assert.Equal(t, state.TaskCompleted, doneRec.Status)

	midRec, ok := restored.TaskRecord("mid")
	require.True(t, ok)
	assert.Equal(t, state.TaskPending, midRec.Status, "a task caught mid-run at snapshot time resets to pending")
}

func TestFileStoreSaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	ctx := context.Background()

	_, ok, err := fs.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, fs.Save(ctx, "run-1", []byte(`{"version":1}`)))

	data, ok, err := fs.Load(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"version":1}`, string(data))

	require.NoError(t, fs.Delete(ctx, "run-1"))
	_, ok, err = fs.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
