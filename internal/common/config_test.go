package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromFilesDefaultsValidate(t *testing.T) {
	config, err := LoadFromFiles()
	require.NoError(t, err)
	require.Equal(t, "development", config.Environment)
}

func TestLoadFromFilesLaterFileOverridesEarlier(t *testing.T) {
	dir := t.TempDir()

	first := filepath.Join(dir, "first.toml")
	require.NoError(t, os.WriteFile(first, []byte("[executor]\nconcurrency = 2\n"), 0644))

	second := filepath.Join(dir, "second.toml")
	require.NoError(t, os.WriteFile(second, []byte("[executor]\nconcurrency = 8\n"), 0644))

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	require.Equal(t, 8, config.Executor.Concurrency)
}

func TestLoadFromFilesRejectsInvalidConcurrency(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[executor]\nconcurrency = 0\n"), 0644))

	_, err := LoadFromFiles(path)
	require.Error(t, err)
}
