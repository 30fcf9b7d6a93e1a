package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandEnvVars_WithDefaultFallback(t *testing.T) {
	t.Setenv("HECTOR_TEST_VAR", "")
	assert.Equal(t, "fallback", expandEnvVars("${HECTOR_TEST_VAR:-fallback}"))

	t.Setenv("HECTOR_TEST_VAR", "set")
	assert.Equal(t, "set", expandEnvVars("${HECTOR_TEST_VAR:-fallback}"))
}

func TestExpandEnvVars_BracedAndBare(t *testing.T) {
	t.Setenv("HECTOR_TEST_VAR", "value")
	assert.Equal(t, "value", expandEnvVars("${HECTOR_TEST_VAR}"))
	assert.Equal(t, "value", expandEnvVars("$HECTOR_TEST_VAR"))
}

func TestExpandEnvVarsInData_RetypesExpandedScalars(t *testing.T) {
	t.Setenv("HECTOR_TEST_TIMEOUT", "30")

	in := map[string]interface{}{
		"timeout": "${HECTOR_TEST_TIMEOUT}",
		"nested": []interface{}{
			"${HECTOR_TEST_TIMEOUT}",
			"literal",
		},
	}
	out := ExpandEnvVarsInData(in).(map[string]interface{})
	assert.Equal(t, 30, out["timeout"])

	nested := out["nested"].([]interface{})
	assert.Equal(t, 30, nested[0])
	assert.Equal(t, "literal", nested[1])
}

func TestLoadEnvFiles_LocalOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HECTOR_TEST_CASCADE=from_env\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("HECTOR_TEST_CASCADE=from_env_local\n"), 0o644))
	os.Unsetenv("HECTOR_TEST_CASCADE")

	require.NoError(t, LoadEnvFiles())
	assert.Equal(t, "from_env_local", os.Getenv("HECTOR_TEST_CASCADE"))
}

func TestLoadEnvFiles_MissingFilesAreNotAnError(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.NoError(t, LoadEnvFiles())
}
