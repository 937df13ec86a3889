package lint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryhq/gantry/pkg/dockerfile"
	"github.com/gantryhq/gantry/pkg/manifest"
)

// stackYAML mirrors the three-tier stack: falcon backend, ariane frontend
// (with its documented 3000-vs-80 service mismatch), redis cache on 6399
// with a durable volume.
const stackYAML = `apiVersion: v1
kind: ConfigMap
metadata:
  name: falcon-config
data:
  REDIS_HOST: redis
  REDIS_PORT: "6399"
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: ariane-config
data:
  API_URL: http://falcon:4000
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: falcon
spec:
  replicas: 1
  selector:
    matchLabels:
      app: falcon
  template:
    metadata:
      labels:
        app: falcon
    spec:
      containers:
        - name: falcon
          image: falcon:latest
          ports:
            - containerPort: 4000
          env:
            - name: REDIS_HOST
              valueFrom:
                configMapKeyRef:
                  name: falcon-config
                  key: REDIS_HOST
            - name: REDIS_PORT
              valueFrom:
                configMapKeyRef:
                  name: falcon-config
                  key: REDIS_PORT
---
apiVersion: v1
kind: Service
metadata:
  name: falcon
spec:
  selector:
    app: falcon
  ports:
    - port: 4000
      targetPort: 4000
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: ariane
spec:
  replicas: 1
  selector:
    matchLabels:
      app: ariane
  template:
    metadata:
      labels:
        app: ariane
    spec:
      containers:
        - name: ariane
          image: ariane:latest
          ports:
            - containerPort: 3000
          envFrom:
            - configMapRef:
                name: ariane-config
---
apiVersion: v1
kind: Service
metadata:
  name: ariane
spec:
  selector:
    app: ariane
  ports:
    - port: 80
      targetPort: 80
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: redis
spec:
  replicas: 1
  selector:
    matchLabels:
      app: redis
  template:
    metadata:
      labels:
        app: redis
    spec:
      containers:
        - name: redis
          image: redis:7
          command: ["redis-server", "--port", "6399"]
          ports:
            - containerPort: 6399
          volumeMounts:
            - name: data
              mountPath: /data
      volumes:
        - name: data
          persistentVolumeClaim:
            claimName: redis-data
---
apiVersion: v1
kind: Service
metadata:
  name: redis
spec:
  selector:
    app: redis
  ports:
    - port: 6399
      targetPort: 6399
---
apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: redis-data
spec:
  storageClassName: standard
  accessModes:
    - ReadWriteOnce
  resources:
    requests:
      storage: 1Gi
`

func loadStack(t *testing.T) *manifest.Set {
	t.Helper()
	set, err := manifest.ParseBytes([]byte(stackYAML), "stack.yaml")
	require.NoError(t, err)
	return set
}

func findingsFor(findings Findings, rule string) Findings {
	var out Findings
	for _, f := range findings {
		if f.Rule == rule {
			out = append(out, f)
		}
	}
	return out
}

func TestStackOnlyDefectIsArianeTargetPort(t *testing.T) {
	findings := Run(&Context{Set: loadStack(t)})

	errors := findings.Errors()
	require.Len(t, errors, 1, "expected exactly one error, got: %v", errors)
	assert.Equal(t, "service-target-port", errors[0].Rule)
	assert.Equal(t, "ariane", errors[0].Resource.Name)
	assert.Contains(t, errors[0].Message, "targetPort 80")
}

func TestEnvConfigMapCoverage(t *testing.T) {
	yaml := strings.Replace(stackYAML, "  REDIS_PORT: \"6399\"\n", "", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	findings := Run(&Context{Set: set})
	coverage := findingsFor(findings, "env-configmap-coverage")
	require.Len(t, coverage, 1)
	assert.Equal(t, SeverityError, coverage[0].Severity)
	assert.Equal(t, "falcon", coverage[0].Resource.Name)
	assert.Contains(t, coverage[0].Message, `key "REDIS_PORT"`)
}

func TestEnvFromMissingConfigMap(t *testing.T) {
	yaml := strings.Replace(stackYAML, "name: ariane-config\ndata:", "name: ariane-settings\ndata:", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	coverage := findingsFor(Run(&Context{Set: set}), "env-configmap-coverage")
	require.Len(t, coverage, 1)
	assert.Contains(t, coverage[0].Message, `missing configmap "ariane-config"`)
}

func TestServiceSelectorMatch(t *testing.T) {
	yaml := strings.Replace(stackYAML, "    app: falcon\n  ports:\n    - port: 4000", "    app: backend\n  ports:\n    - port: 4000", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	selector := findingsFor(Run(&Context{Set: set}), "service-selector-match")
	require.Len(t, selector, 1)
	assert.Equal(t, SeverityError, selector[0].Severity)
	assert.Equal(t, "falcon", selector[0].Resource.Name)
}

func TestCachePortAgreement(t *testing.T) {
	yaml := strings.Replace(stackYAML, `command: ["redis-server", "--port", "6399"]`, `command: ["redis-server", "--port", "6380"]`, 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	agreement := findingsFor(Run(&Context{Set: set}), "cache-port-agreement")
	require.NotEmpty(t, agreement)

	var sawContainerPort, sawServicePort bool
	for _, f := range agreement {
		if f.Resource.Kind == manifest.KindDeployment {
			sawContainerPort = true
		}
		if f.Resource.Kind == manifest.KindService {
			sawServicePort = true
		}
	}
	assert.True(t, sawContainerPort, "containerPort disagreement not reported: %v", agreement)
	assert.True(t, sawServicePort, "service port disagreement not reported: %v", agreement)
}

func TestCachePortAgreementNamedTargetPort(t *testing.T) {
	yaml := strings.Replace(stackYAML, "            - containerPort: 6399", "            - name: redis-port\n              containerPort: 6399", 1)
	yaml = strings.Replace(yaml, "    - port: 6399\n      targetPort: 6399", "    - port: 6399\n      targetPort: redis-port", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	agreement := findingsFor(Run(&Context{Set: set}), "cache-port-agreement")
	assert.Empty(t, agreement, "named targetPort resolving to 6399 should agree")
}

func TestClaimReferences(t *testing.T) {
	yaml := strings.Replace(stackYAML, "claimName: redis-data", "claimName: redis-cache", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	claims := findingsFor(Run(&Context{Set: set}), "pvc-storage-class")
	require.Len(t, claims, 1)
	assert.Contains(t, claims[0].Message, `missing persistent volume claim "redis-cache"`)
}

func TestClaimWithoutStorageClassWarns(t *testing.T) {
	yaml := strings.Replace(stackYAML, "  storageClassName: standard\n", "", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	claims := findingsFor(Run(&Context{Set: set}), "pvc-storage-class")
	require.Len(t, claims, 1)
	assert.Equal(t, SeverityWarning, claims[0].Severity)
}

func TestClaimSingleWriter(t *testing.T) {
	yaml := strings.Replace(stackYAML, "  name: redis\nspec:\n  replicas: 1", "  name: redis\nspec:\n  replicas: 3", 1)
	set, err := manifest.ParseBytes([]byte(yaml), "stack.yaml")
	require.NoError(t, err)

	writer := findingsFor(Run(&Context{Set: set}), "pvc-single-writer")
	require.Len(t, writer, 1)
	assert.Equal(t, SeverityError, writer[0].Severity)
	assert.Equal(t, "redis", writer[0].Resource.Name)
	assert.Contains(t, writer[0].Message, "3 replicas")
}

func writeBuildContext(t *testing.T, dockerfileContent, packageJSON string) BuildContext {
	t.Helper()
	dir := t.TempDir()
	if packageJSON != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(packageJSON), 0o644))
	}
	df, err := dockerfile.Parse(strings.NewReader(dockerfileContent))
	require.NoError(t, err)
	return BuildContext{Dir: dir, Dockerfile: df}
}

func TestBuildScriptPresent(t *testing.T) {
	const arianeDockerfile = "FROM node:20\nWORKDIR /app\nCOPY package.json .\nRUN npm install\nCOPY . .\nRUN npm run build\nEXPOSE 3000\nCMD [\"npm\", \"start\"]\n"

	tests := []struct {
		name        string
		packageJSON string
		wantError   bool
	}{
		{
			name:        "build script present",
			packageJSON: `{"scripts": {"start": "node server.js", "build": "true"}}`,
			wantError:   false,
		},
		{
			name:        "build script missing",
			packageJSON: `{"scripts": {"start": "node server.js"}}`,
			wantError:   true,
		},
		{
			name:        "package.json missing",
			packageJSON: "",
			wantError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &Context{
				Set: loadStack(t),
				BuildContexts: map[string]BuildContext{
					"ariane:latest": writeBuildContext(t, arianeDockerfile, tt.packageJSON),
				},
			}
			script := findingsFor(Run(ctx), "build-script-present")
			if tt.wantError {
				require.Len(t, script, 1)
				assert.Equal(t, SeverityError, script[0].Severity)
				assert.Equal(t, "ariane", script[0].Resource.Name)
			} else {
				assert.Empty(t, script)
			}
		})
	}
}

func TestExposePortAgreement(t *testing.T) {
	// Dockerfile exposes 8080, deployment declares 4000.
	bc := writeBuildContext(t, "FROM alpine\nEXPOSE 8080\nCMD [\"falcon\"]\n", "")
	ctx := &Context{
		Set:           loadStack(t),
		BuildContexts: map[string]BuildContext{"falcon:latest": bc},
	}

	expose := findingsFor(Run(ctx), "expose-port-agreement")
	require.Len(t, expose, 1)
	assert.Equal(t, SeverityWarning, expose[0].Severity)
	assert.Contains(t, expose[0].Message, "port 4000")
}

func TestFindingsSortAndErrors(t *testing.T) {
	findings := Findings{
		{Rule: "b", Severity: SeverityWarning, Resource: manifest.ObjectRef{Kind: "Service", Namespace: "default", Name: "z"}},
		{Rule: "a", Severity: SeverityError, Resource: manifest.ObjectRef{Kind: "Deployment", Namespace: "default", Name: "a"}},
	}
	findings.Sort()
	assert.Equal(t, "a", findings[0].Rule)
	assert.True(t, findings.HasErrors())
	assert.Len(t, findings.Errors(), 1)
}
