package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatherManifestFiles(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))
	for _, name := range []string{"a.yaml", "b.yml", "ignore.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x: 1\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(sub, "c.yaml"), []byte("x: 1\n"), 0o644))

	files, err := gatherManifestFiles([]string{dir}, false)
	require.NoError(t, err)
	assert.Len(t, files, 2, "top-level only without recursive")

	files, err = gatherManifestFiles([]string{dir}, true)
	require.NoError(t, err)
	assert.Len(t, files, 3, "recursive picks up nested files")

	files, err = gatherManifestFiles([]string{filepath.Join(dir, "ignore.txt")}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "ignore.txt")}, files, "explicit files pass through")
}

func TestGatherManifestFilesMissingPath(t *testing.T) {
	_, err := gatherManifestFiles([]string{"/does/not/exist"}, false)
	require.Error(t, err)
}

func TestHasYAMLExtension(t *testing.T) {
	assert.True(t, hasYAMLExtension("stack.yaml"))
	assert.True(t, hasYAMLExtension("STACK.YML"))
	assert.False(t, hasYAMLExtension("stack.json"))
}
