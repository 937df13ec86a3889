package deployer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"

	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/manifest"
	"github.com/gantryhq/gantry/pkg/runner"
	"github.com/gantryhq/gantry/pkg/store"
)

const stackYAML = `apiVersion: v1
kind: ConfigMap
metadata:
  name: falcon-config
data:
  REDIS_HOST: redis
  REDIS_PORT: "6399"
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
          image: redis:7.2
          command: ["redis-server"]
          args: ["--port", "6399"]
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
  accessModes: ["ReadWriteOnce"]
  storageClassName: standard
  resources:
    requests:
      storage: 1Gi
---
apiVersion: apps/v1
kind: Deployment
metadata:
  name: falcon
spec:
  replicas: 2
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
          image: gantry/falcon:latest
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
`

// fakeRunner is an in-memory Runner and Provisioner.
type fakeRunner struct {
	mu        sync.Mutex
	instances map[string]*runner.Instance
	statuses  map[string]runner.InstanceStatus
	volumes   map[string]map[string]string
	networks  int
	stops     []string
	removals  []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		instances: make(map[string]*runner.Instance),
		statuses:  make(map[string]runner.InstanceStatus),
		volumes:   make(map[string]map[string]string),
	}
}

func (f *fakeRunner) Create(ctx context.Context, instance *runner.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.instances[instance.Name]; exists {
		return fmt.Errorf("instance %s already exists", instance.Name)
	}
	instance.ContainerID = "ctr-" + instance.Name
	copied := *instance
	f.instances[instance.Name] = &copied
	f.statuses[instance.Name] = runner.InstanceStatusPending
	return nil
}

func (f *fakeRunner) Start(ctx context.Context, instance *runner.Instance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instances[instance.Name]; !ok {
		return fmt.Errorf("instance %s not found", instance.Name)
	}
	f.statuses[instance.Name] = runner.InstanceStatusRunning
	return nil
}

func (f *fakeRunner) Stop(ctx context.Context, instance *runner.Instance, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, instance.Name)
	if _, ok := f.instances[instance.Name]; !ok {
		return fmt.Errorf("instance %s not found", instance.Name)
	}
	f.statuses[instance.Name] = runner.InstanceStatusStopped
	return nil
}

func (f *fakeRunner) Remove(ctx context.Context, instance *runner.Instance, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, instance.Name)
	delete(f.instances, instance.Name)
	delete(f.statuses, instance.Name)
	return nil
}

func (f *fakeRunner) Status(ctx context.Context, instance *runner.Instance) (runner.InstanceStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[instance.Name]
	if !ok {
		return "", fmt.Errorf("instance %s not found", instance.Name)
	}
	return status, nil
}

func (f *fakeRunner) List(ctx context.Context, namespace string) ([]*runner.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*runner.Instance
	for _, instance := range f.instances {
		if namespace == "" || instance.Namespace == namespace {
			out = append(out, instance)
		}
	}
	return out, nil
}

func (f *fakeRunner) GetLogs(ctx context.Context, instance *runner.Instance, options runner.LogOptions) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeRunner) EnsureVolume(ctx context.Context, name string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[name]; !ok {
		f.volumes[name] = labels
	}
	return nil
}

func (f *fakeRunner) EnsureNetwork(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networks++
	return nil
}

func testDeployer(t *testing.T) (*Deployer, *fakeRunner, *store.MemoryStore) {
	t.Helper()
	fake := newFakeRunner()
	st := store.NewMemoryStore()
	d := New(fake, fake, st, log.NewLogger(log.WithLevel(log.ErrorLevel)))
	return d, fake, st
}

func parseStack(t *testing.T, data string) *manifest.Set {
	t.Helper()
	set, err := manifest.ParseBytes([]byte(data), "stack.yaml")
	require.NoError(t, err)
	return set
}

func TestPlanResolvesStack(t *testing.T) {
	d, _, _ := testDeployer(t)
	set := parseStack(t, stackYAML)

	plan, err := d.Plan(set, Options{})
	require.NoError(t, err)
	assert.False(t, plan.Findings.HasErrors(), "test stack should be clean: %v", plan.Findings)

	require.Len(t, plan.Volumes, 1)
	assert.Equal(t, "default-redis-data", plan.Volumes[0].Volume)
	assert.Equal(t, "redis-data", plan.Volumes[0].Labels["gantry.claim"])

	require.Len(t, plan.Workloads, 2)
	falcon, redis := plan.Workloads[0], plan.Workloads[1]
	require.Equal(t, "falcon", falcon.Ref.Name)
	require.Equal(t, "redis", redis.Ref.Name)

	require.Len(t, falcon.Instances, 2)
	assert.Equal(t, "falcon-0", falcon.Instances[0].Name)
	assert.Equal(t, "falcon-1", falcon.Instances[1].Name)
	assert.Equal(t, map[string]string{"REDIS_HOST": "redis", "REDIS_PORT": "6399"}, falcon.Instances[0].Env)
	assert.Equal(t, []string{"falcon"}, falcon.Instances[0].Aliases)

	require.Len(t, redis.Instances, 1)
	assert.Equal(t, []string{"redis-server"}, redis.Instances[0].Entrypoint)
	assert.Equal(t, []string{"--port", "6399"}, redis.Instances[0].Args)
	assert.Equal(t, []string{"redis"}, redis.Instances[0].Aliases)
	require.Len(t, redis.Instances[0].Mounts, 1)
	assert.Equal(t, "default-redis-data", redis.Instances[0].Mounts[0].Volume)
	assert.Equal(t, "/data", redis.Instances[0].Mounts[0].MountPath)
	require.Len(t, redis.Instances[0].Ports, 1)
	assert.Equal(t, int32(6399), redis.Instances[0].Ports[0].ContainerPort)
}

func TestApplyCreatesAndRecords(t *testing.T) {
	d, fake, st := testDeployer(t)
	set := parseStack(t, stackYAML)

	_, err := d.Apply(context.Background(), set, Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, fake.networks)
	assert.Contains(t, fake.volumes, "default-redis-data")
	assert.Len(t, fake.instances, 3)
	assert.Equal(t, runner.InstanceStatusRunning, fake.statuses["falcon-0"])

	var instances []*runner.Instance
	require.NoError(t, st.List(context.Background(), store.ResourceTypeInstance, "default", &instances))
	assert.Len(t, instances, 3)
	for _, instance := range instances {
		assert.NotEmpty(t, instance.ID)
		assert.NotEmpty(t, instance.ContainerID)
		assert.Equal(t, runner.InstanceStatusRunning, instance.Status)
	}

	var cm corev1.ConfigMap
	require.NoError(t, st.Get(context.Background(), store.ResourceTypeConfigMap, "default", "falcon-config", &cm))
	assert.Equal(t, "redis", cm.Data["REDIS_HOST"])
}

func TestApplyLintGate(t *testing.T) {
	d, fake, _ := testDeployer(t)
	broken := strings.Replace(stackYAML, "targetPort: 4000", "targetPort: 9999", 1)
	set := parseStack(t, broken)

	plan, err := d.Apply(context.Background(), set, Options{})
	require.ErrorIs(t, err, ErrLintGate)
	require.NotNil(t, plan)
	assert.True(t, plan.Findings.HasErrors())
	assert.Empty(t, fake.instances, "nothing should run when the gate trips")

	_, err = d.Apply(context.Background(), set, Options{Force: true})
	require.NoError(t, err)
	assert.Len(t, fake.instances, 3)
}

func TestApplyIsIdempotent(t *testing.T) {
	d, fake, st := testDeployer(t)
	set := parseStack(t, stackYAML)

	_, err := d.Apply(context.Background(), set, Options{})
	require.NoError(t, err)
	first := fake.instances["falcon-0"].ContainerID

	_, err = d.Apply(context.Background(), set, Options{})
	require.NoError(t, err)

	assert.Len(t, fake.instances, 3)
	assert.Contains(t, fake.removals, "falcon-0")
	assert.Equal(t, first, fake.instances["falcon-0"].ContainerID)

	var instances []*runner.Instance
	require.NoError(t, st.List(context.Background(), store.ResourceTypeInstance, "default", &instances))
	assert.Len(t, instances, 3)
}

func TestApplyScalesDown(t *testing.T) {
	d, fake, st := testDeployer(t)

	_, err := d.Apply(context.Background(), parseStack(t, stackYAML), Options{})
	require.NoError(t, err)
	require.Len(t, fake.instances, 3)

	scaled := strings.Replace(stackYAML, "replicas: 2", "replicas: 1", 1)
	_, err = d.Apply(context.Background(), parseStack(t, scaled), Options{})
	require.NoError(t, err)

	assert.Len(t, fake.instances, 2)
	assert.NotContains(t, fake.instances, "falcon-1")

	var instances []*runner.Instance
	require.NoError(t, st.List(context.Background(), store.ResourceTypeInstance, "default", &instances))
	assert.Len(t, instances, 2)
}

func TestDownRemovesInstancesKeepsVolumes(t *testing.T) {
	d, fake, st := testDeployer(t)
	set := parseStack(t, stackYAML)

	_, err := d.Apply(context.Background(), set, Options{})
	require.NoError(t, err)

	require.NoError(t, d.Down(context.Background(), "default", Options{}))

	assert.Empty(t, fake.instances)
	assert.Contains(t, fake.volumes, "default-redis-data", "down must not remove volumes")

	var instances []*runner.Instance
	require.NoError(t, st.List(context.Background(), store.ResourceTypeInstance, "default", &instances))
	assert.Empty(t, instances)

	var cm corev1.ConfigMap
	err = st.Get(context.Background(), store.ResourceTypeConfigMap, "default", "falcon-config", &cm)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStatusMergesObserved(t *testing.T) {
	d, fake, _ := testDeployer(t)
	set := parseStack(t, stackYAML)

	_, err := d.Apply(context.Background(), set, Options{})
	require.NoError(t, err)

	fake.mu.Lock()
	fake.statuses["redis-0"] = runner.InstanceStatusStopped
	fake.mu.Unlock()

	states, err := d.Status(context.Background(), "default")
	require.NoError(t, err)
	require.Len(t, states, 3)

	byName := map[string]runner.InstanceStatus{}
	for _, state := range states {
		byName[state.Record.Name] = state.Observed
	}
	assert.Equal(t, runner.InstanceStatusRunning, byName["falcon-0"])
	assert.Equal(t, runner.InstanceStatusStopped, byName["redis-0"])
}

func TestResolveEnvEnvFrom(t *testing.T) {
	set := parseStack(t, stackYAML)
	container := corev1.Container{
		Name: "app",
		EnvFrom: []corev1.EnvFromSource{{
			Prefix: "APP_",
			ConfigMapRef: &corev1.ConfigMapEnvSource{
				LocalObjectReference: corev1.LocalObjectReference{Name: "falcon-config"},
			},
		}},
	}
	env, err := resolveEnv(set, "default", container)
	require.NoError(t, err)
	assert.Equal(t, "redis", env["APP_REDIS_HOST"])
	assert.Equal(t, "6399", env["APP_REDIS_PORT"])
}

func TestResolveEnvMissingKey(t *testing.T) {
	set := parseStack(t, stackYAML)
	container := corev1.Container{
		Name: "app",
		Env: []corev1.EnvVar{{
			Name: "MISSING",
			ValueFrom: &corev1.EnvVarSource{
				ConfigMapKeyRef: &corev1.ConfigMapKeySelector{
					LocalObjectReference: corev1.LocalObjectReference{Name: "falcon-config"},
					Key:                  "NOPE",
				},
			},
		}},
	}
	_, err := resolveEnv(set, "default", container)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing key "NOPE"`)
}

func TestPlanSkipsNonClaimVolumes(t *testing.T) {
	yaml := strings.Replace(stackYAML,
		`          volumeMounts:
            - name: data
              mountPath: /data
      volumes:
        - name: data
          persistentVolumeClaim:
            claimName: redis-data`,
		`          volumeMounts:
            - name: data
              mountPath: /data
            - name: scratch
              mountPath: /tmp/work
      volumes:
        - name: data
          persistentVolumeClaim:
            claimName: redis-data
        - name: scratch
          emptyDir: {}`,
		1)
	d, _, _ := testDeployer(t)

	plan, err := d.Plan(parseStack(t, yaml), Options{})
	require.NoError(t, err, "an emptyDir mount should not block planning")

	redis := plan.Workloads[1]
	require.Equal(t, "redis", redis.Ref.Name)
	require.Len(t, redis.Instances[0].Mounts, 1, "only the claim-backed mount is mapped")
	assert.Equal(t, "default-redis-data", redis.Instances[0].Mounts[0].Volume)
}

func TestResolveMountsUnknownVolume(t *testing.T) {
	container := corev1.Container{
		Name:         "redis",
		VolumeMounts: []corev1.VolumeMount{{Name: "ghost", MountPath: "/data"}},
	}
	_, err := resolveMounts("default", container, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "names no pod volume")
}

func TestVolumeName(t *testing.T) {
	assert.Equal(t, "default-redis-data", VolumeName("", "redis-data"))
	assert.Equal(t, "prod-redis-data", VolumeName("prod", "redis-data"))
}
