package build

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryhq/gantry/pkg/log"
)

func testBuilder() *Builder {
	return NewBuilder(nil, log.NewLogger(log.WithLevel(log.ErrorLevel)))
}

func TestConsumeBuildOutputSuccess(t *testing.T) {
	stream := `{"stream":"Step 1/4 : FROM alpine\n"}
{"stream":" ---> abc123\n"}
{"stream":"Successfully built abc123\n"}
`
	err := testBuilder().consumeBuildOutput(strings.NewReader(stream))
	assert.NoError(t, err)
}

func TestConsumeBuildOutputError(t *testing.T) {
	stream := `{"stream":"Step 3/4 : RUN npm run build\n"}
{"errorDetail":{"message":"npm ERR! missing script: build"},"error":"npm ERR! missing script: build"}
`
	err := testBuilder().consumeBuildOutput(strings.NewReader(stream))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing script: build")
}

func TestConsumeBuildOutputMalformed(t *testing.T) {
	err := testBuilder().consumeBuildOutput(strings.NewReader("not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read build output")
}

func TestBuildRequiresContextDir(t *testing.T) {
	err := testBuilder().Build(context.Background(), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context directory is required")
}
