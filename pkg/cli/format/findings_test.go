package format

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryhq/gantry/pkg/lint"
	"github.com/gantryhq/gantry/pkg/manifest"
)

func sampleFindings() lint.Findings {
	return lint.Findings{
		{
			Rule:     "service-target-port",
			Severity: lint.SeverityError,
			Resource: manifest.ObjectRef{Kind: "Service", Namespace: "default", Name: "ariane"},
			Message:  "targetPort 80 matches no container port",
		},
		{
			Rule:     "pvc-storage-class",
			Severity: lint.SeverityWarning,
			Resource: manifest.ObjectRef{Kind: "PersistentVolumeClaim", Namespace: "default", Name: "redis-data"},
			Message:  "no storageClassName set",
		},
	}
}

func TestPrintFindings(t *testing.T) {
	EnableColor(false)
	var buf bytes.Buffer
	PrintFindings(&buf, sampleFindings())

	out := buf.String()
	assert.Contains(t, out, "error service-target-port Service/default/ariane: targetPort 80")
	assert.Contains(t, out, "warning pvc-storage-class")
}

func TestFindingsJSON(t *testing.T) {
	out, err := FindingsJSON(sampleFindings())
	require.NoError(t, err)

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "service-target-port", decoded[0]["rule"])
}

func TestFindingsJSONEmpty(t *testing.T) {
	out, err := FindingsJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestPrintLintSummary(t *testing.T) {
	EnableColor(false)
	var buf bytes.Buffer
	PrintLintSummary(&buf, 7, 1, 2, 42*time.Millisecond)
	assert.Contains(t, buf.String(), "7 object(s) checked")
	assert.Contains(t, buf.String(), "1 error(s)")
	assert.Contains(t, buf.String(), "2 warning(s)")
}
