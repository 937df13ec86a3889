package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo(t *testing.T) {
	origVersion := Version
	origBuildTime := BuildTime
	origCommit := Commit
	defer func() {
		Version = origVersion
		BuildTime = origBuildTime
		Commit = origCommit
	}()

	Version = "1.2.3"
	BuildTime = "2024-06-01"
	Commit = "abcdef0123456789"

	info := Info()
	assert.Contains(t, info, "1.2.3")
	assert.Contains(t, info, "abcdef01")
	assert.NotContains(t, info, "abcdef0123456789", "commit should be shortened")
	assert.Contains(t, info, "2024-06-01")
	assert.Contains(t, info, runtime.GOOS)
}

func TestMap(t *testing.T) {
	m := Map()
	assert.Equal(t, Version, m["version"])
	assert.Equal(t, runtime.Version(), m["goVersion"])
	assert.Equal(t, runtime.GOARCH, m["arch"])
}
