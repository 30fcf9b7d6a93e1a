package dod

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/config"
)

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	out, err := Check(context.Background(), config.DoDCriterion{Type: "file_exists", Path: path}, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.Met)

	out, err = Check(context.Background(), config.DoDCriterion{Type: "file_exists", Path: filepath.Join(dir, "missing.txt")}, nil, nil)
	require.NoError(t, err)
	assert.False(t, out.Met)
	assert.NotEmpty(t, out.Feedback)
}

func TestFileContainsAndNotContains(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(path, []byte("build succeeded"), 0o644))

	out, err := Check(context.Background(), config.DoDCriterion{Type: "file_contains", Path: path, Pattern: "succeeded"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.Met)

	out, err = Check(context.Background(), config.DoDCriterion{Type: "file_not_contains", Path: path, Pattern: "error"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.Met)

	out, err = Check(context.Background(), config.DoDCriterion{Type: "file_contains", Path: path, Pattern: "error"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, out.Met)
}

func TestDirectoryExists(t *testing.T) {
	dir := t.TempDir()
	out, err := Check(context.Background(), config.DoDCriterion{Type: "directory_exists", Path: dir}, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.Met)
}

func TestOutputMatches(t *testing.T) {
	out, err := Check(context.Background(), config.DoDCriterion{Type: "output_matches", Pattern: "^OK"}, []byte("OK done"), nil)
	require.NoError(t, err)
	assert.True(t, out.Met)

	out, err = Check(context.Background(), config.DoDCriterion{Type: "output_matches", Pattern: "^OK"}, []byte("nope"), nil)
	require.NoError(t, err)
	assert.False(t, out.Met)
}

func TestCommandSucceeds(t *testing.T) {
	out, err := Check(context.Background(), config.DoDCriterion{Type: "command_succeeds", Command: "true"}, nil, nil)
	require.NoError(t, err)
	assert.True(t, out.Met)

	out, err = Check(context.Background(), config.DoDCriterion{Type: "command_succeeds", Command: "false"}, nil, nil)
	require.NoError(t, err)
	assert.False(t, out.Met)
	assert.NotEmpty(t, out.Feedback)
}

func TestUnknownTypeErrors(t *testing.T) {
	_, err := Check(context.Background(), config.DoDCriterion{Type: "bogus"}, nil, nil)
	require.Error(t, err)
}
