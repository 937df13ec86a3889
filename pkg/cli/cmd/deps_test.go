package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBuildSpecs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Dockerfile"),
		[]byte("FROM node:20-alpine\nEXPOSE 3000\n"), 0o644))

	contexts, err := parseBuildSpecs([]string{"myapp/frontend=" + dir})
	require.NoError(t, err)
	require.Len(t, contexts, 1)

	bc, ok := contexts["myapp/frontend"]
	require.True(t, ok)
	assert.Equal(t, dir, bc.Dir)
	assert.Equal(t, []int{3000}, bc.Dockerfile.ExposedPorts())
}

func TestParseBuildSpecsRejectsMalformed(t *testing.T) {
	_, err := parseBuildSpecs([]string{"no-equals-sign"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected image=dir")
}

func TestParseBuildSpecsEmpty(t *testing.T) {
	contexts, err := parseBuildSpecs(nil)
	require.NoError(t, err)
	assert.Nil(t, contexts)
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "Unknown", formatAge(time.Time{}))
	assert.Equal(t, "Just now", formatAge(time.Now().Add(-10*time.Second)))
	assert.Equal(t, "5m", formatAge(time.Now().Add(-5*time.Minute)))
	assert.Equal(t, "3h", formatAge(time.Now().Add(-3*time.Hour)))
	assert.Equal(t, "2d", formatAge(time.Now().Add(-48*time.Hour)))
}
