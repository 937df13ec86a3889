package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(level Level, formatter Formatter) (*BaseLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := NewLogger(
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewWriterOutput(&buf)),
	)
	return logger, &buf
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newBufferLogger(WarnLevel, &TextFormatter{DisableColors: true})

	logger.Debug("not visible")
	logger.Info("not visible either")
	logger.Warn("visible")
	logger.Error("also visible")

	out := buf.String()
	assert.NotContains(t, out, "not visible")
	assert.Contains(t, out, "visible")
	assert.Contains(t, out, "also visible")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestWithFieldsAreInherited(t *testing.T) {
	logger, buf := newBufferLogger(InfoLevel, &TextFormatter{DisableColors: true})

	child := logger.WithComponent("deployer").With(Str("workload", "falcon"))
	child.Info("starting instance", Int("replica", 0))

	out := buf.String()
	assert.Contains(t, out, "component=deployer")
	assert.Contains(t, out, "workload=falcon")
	assert.Contains(t, out, "replica=0")

	// Parent must not have picked up the child's fields.
	buf.Reset()
	logger.Info("parent message")
	assert.NotContains(t, buf.String(), "workload=falcon")
}

func TestJSONFormatter(t *testing.T) {
	logger, buf := newBufferLogger(InfoLevel, &JSONFormatter{})

	logger.Info("applied", Str("kind", "ConfigMap"), Int("count", 2))

	line := strings.TrimSpace(buf.String())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "applied", entry["message"])
	assert.Equal(t, "ConfigMap", entry["kind"])
	assert.Equal(t, float64(2), entry["count"])
}

func TestErrField(t *testing.T) {
	assert.Nil(t, Err(nil).Value)
	assert.Equal(t, "error", Err(assert.AnError).Key)
	assert.Equal(t, assert.AnError.Error(), Err(assert.AnError).Value)
}
