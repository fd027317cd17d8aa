package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPaths(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cachePath, err := GetDistanceCachePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ride-dispatcher", "cache", "distances.json"), cachePath)

	dbPath, err := GetDefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ride-dispatcher", "data.db"), dbPath)
	assert.DirExists(t, filepath.Join(home, ".ride-dispatcher"))
}
