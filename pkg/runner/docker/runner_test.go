package docker

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame builds a Docker multiplexed log frame.
func frame(stream byte, payload string) []byte {
	header := make([]byte, 8)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	return append(header, payload...)
}

func TestLogReaderDemultiplexes(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(frame(1, "stdout line\n"))
	raw.Write(frame(2, "stderr line\n"))
	raw.Write(frame(1, "more\n"))

	reader := newLogReader(io.NopCloser(&raw))
	out, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "stdout line\nstderr line\nmore\n", string(out))
}

func TestLogReaderSmallBuffers(t *testing.T) {
	var raw bytes.Buffer
	raw.Write(frame(1, "abcdefgh"))

	reader := newLogReader(io.NopCloser(&raw))
	buf := make([]byte, 3)
	var out []byte
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	assert.Equal(t, "abcdefgh", string(out))
}

func TestFormatEnvVars(t *testing.T) {
	env := formatEnvVars(map[string]string{"REDIS_HOST": "redis", "REDIS_PORT": "6399"})
	sort.Strings(env)
	assert.Equal(t, []string{"REDIS_HOST=redis", "REDIS_PORT=6399"}, env)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "1.43", cfg.FallbackAPIVersion)
	assert.Equal(t, "gantry", cfg.NetworkName)
	assert.Empty(t, cfg.APIVersion, "auto-negotiation by default")
}
