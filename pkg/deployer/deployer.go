// Package deployer turns a manifest set into running instances: configmaps
// become resolved environment variables, claims become named volumes,
// services become network aliases, and deployments become containers.
package deployer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	"github.com/gantryhq/gantry/pkg/lint"
	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/manifest"
	"github.com/gantryhq/gantry/pkg/runner"
	"github.com/gantryhq/gantry/pkg/store"
)

// DefaultStopTimeout is how long instances get to exit before being killed.
const DefaultStopTimeout = 10 * time.Second

// ErrLintGate is returned when Apply refuses a set with lint errors.
var ErrLintGate = errors.New("manifests have lint errors")

// Options controls planning and apply behavior.
type Options struct {
	// Force applies even when lint reports errors.
	Force bool

	// StopTimeout bounds graceful shutdown of replaced instances.
	StopTimeout time.Duration

	// BuildContexts feeds build-related lint rules; optional.
	BuildContexts map[string]lint.BuildContext
}

func (o Options) stopTimeout() time.Duration {
	if o.StopTimeout <= 0 {
		return DefaultStopTimeout
	}
	return o.StopTimeout
}

// VolumeStep is a named volume to provision for a claim.
type VolumeStep struct {
	// Volume is the volume name derived from the claim.
	Volume string

	// Claim is the claim the volume backs.
	Claim manifest.ObjectRef

	// Labels mark the volume as managed.
	Labels map[string]string
}

// WorkloadStep is the desired instances for one deployment.
type WorkloadStep struct {
	// Ref identifies the deployment.
	Ref manifest.ObjectRef

	// Replicas is the desired instance count.
	Replicas int32

	// Instances are the fully resolved instances to run, in order.
	Instances []*runner.Instance
}

// Plan is everything Apply will do, in order.
type Plan struct {
	ConfigMaps []manifest.ObjectRef
	Services   []manifest.ObjectRef
	Volumes    []VolumeStep
	Workloads  []WorkloadStep

	// Findings are the lint results for the set.
	Findings lint.Findings
}

// InstanceState pairs a stored instance record with its observed status.
type InstanceState struct {
	Record *runner.Instance

	// Observed is the runtime's view; failed when the runtime cannot
	// report on the instance.
	Observed runner.InstanceStatus
}

// Deployer reconciles manifest sets against a runner and records state.
type Deployer struct {
	runner      runner.Runner
	provisioner runner.Provisioner
	store       store.Store
	logger      log.Logger
}

// New creates a Deployer. The provisioner may be nil when the runner needs
// no network or volume setup.
func New(r runner.Runner, p runner.Provisioner, st store.Store, logger log.Logger) *Deployer {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("deployer")
	}
	return &Deployer{runner: r, provisioner: p, store: st, logger: logger}
}

// Plan resolves the set into the ordered steps Apply would execute and the
// lint findings for the set. It does not touch the runtime or the store.
func (d *Deployer) Plan(set *manifest.Set, opts Options) (*Plan, error) {
	plan := &Plan{
		Findings: lint.Run(&lint.Context{Set: set, BuildContexts: opts.BuildContexts}),
	}

	for _, cm := range set.ConfigMaps() {
		plan.ConfigMaps = append(plan.ConfigMaps, objectRef(manifest.KindConfigMap, cm.Namespace, cm.Name))
	}
	for _, svc := range set.Services() {
		plan.Services = append(plan.Services, objectRef(manifest.KindService, svc.Namespace, svc.Name))
	}
	for _, pvc := range set.Claims() {
		ref := objectRef(manifest.KindPersistentVolumeClaim, pvc.Namespace, pvc.Name)
		plan.Volumes = append(plan.Volumes, VolumeStep{
			Volume: VolumeName(ref.Namespace, pvc.Name),
			Claim:  ref,
			Labels: map[string]string{
				"gantry.managed":   "true",
				"gantry.namespace": ref.Namespace,
				"gantry.claim":     pvc.Name,
			},
		})
	}

	for _, dep := range set.Deployments() {
		step, err := d.planWorkload(set, dep)
		if err != nil {
			return nil, err
		}
		plan.Workloads = append(plan.Workloads, step)
	}

	return plan, nil
}

// Apply brings the runtime in line with the set. Unless forced, it refuses
// sets whose lint findings include errors. Instances are replaced by name,
// so repeated applies of the same set converge. Volumes are created but
// never removed.
func (d *Deployer) Apply(ctx context.Context, set *manifest.Set, opts Options) (*Plan, error) {
	plan, err := d.Plan(set, opts)
	if err != nil {
		return nil, err
	}

	if errs := plan.Findings.Errors(); len(errs) > 0 && !opts.Force {
		return plan, fmt.Errorf("%w: %d error(s), rerun with --force to apply anyway", ErrLintGate, len(errs))
	}

	if d.provisioner != nil {
		if err := d.provisioner.EnsureNetwork(ctx); err != nil {
			return plan, fmt.Errorf("failed to ensure network: %w", err)
		}
	}

	if err := d.recordResources(ctx, set); err != nil {
		return plan, err
	}

	for _, vol := range plan.Volumes {
		if d.provisioner == nil {
			break
		}
		d.logger.Info("Ensuring volume", log.Str("volume", vol.Volume), log.Str("claim", vol.Claim.String()))
		if err := d.provisioner.EnsureVolume(ctx, vol.Volume, vol.Labels); err != nil {
			return plan, fmt.Errorf("failed to ensure volume %s: %w", vol.Volume, err)
		}
	}

	for _, step := range plan.Workloads {
		if err := d.applyWorkload(ctx, step, opts); err != nil {
			return plan, err
		}
	}

	return plan, nil
}

// Down stops and removes all managed instances in the namespace and clears
// the stored records. Volumes are left in place so data survives.
func (d *Deployer) Down(ctx context.Context, namespace string, opts Options) error {
	namespace = normalizeNamespace(namespace)

	var instances []*runner.Instance
	if err := d.store.List(ctx, store.ResourceTypeInstance, namespace, &instances); err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	for _, instance := range instances {
		d.logger.Info("Removing instance", log.Str("instance", instance.Name), log.Str("namespace", namespace))
		if err := d.runner.Stop(ctx, instance, opts.stopTimeout()); err != nil {
			d.logger.Debug("Stop failed, removing anyway", log.Str("instance", instance.Name), log.Err(err))
		}
		if err := d.runner.Remove(ctx, instance, true); err != nil {
			d.logger.Warn("Failed to remove instance", log.Str("instance", instance.Name), log.Err(err))
		}
		if err := d.store.Delete(ctx, store.ResourceTypeInstance, namespace, instance.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete instance record %s: %w", instance.Name, err)
		}
	}

	return d.clearResourceRecords(ctx, namespace)
}

// Status returns the stored instances in the namespace with their observed
// runtime status.
func (d *Deployer) Status(ctx context.Context, namespace string) ([]*InstanceState, error) {
	namespace = normalizeNamespace(namespace)

	var instances []*runner.Instance
	if err := d.store.List(ctx, store.ResourceTypeInstance, namespace, &instances); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	sort.Slice(instances, func(i, j int) bool { return instances[i].Name < instances[j].Name })

	states := make([]*InstanceState, 0, len(instances))
	for _, instance := range instances {
		observed, err := d.runner.Status(ctx, instance)
		if err != nil {
			d.logger.Debug("Failed to observe instance", log.Str("instance", instance.Name), log.Err(err))
			observed = runner.InstanceStatusFailed
		}
		states = append(states, &InstanceState{Record: instance, Observed: observed})
	}
	return states, nil
}

// Instance returns the stored record for a named instance.
func (d *Deployer) Instance(ctx context.Context, namespace, name string) (*runner.Instance, error) {
	var instance runner.Instance
	if err := d.store.Get(ctx, store.ResourceTypeInstance, normalizeNamespace(namespace), name, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

func (d *Deployer) planWorkload(set *manifest.Set, dep *appsv1.Deployment) (WorkloadStep, error) {
	ref := objectRef(manifest.KindDeployment, dep.Namespace, dep.Name)
	replicas := int32(1)
	if dep.Spec.Replicas != nil {
		replicas = *dep.Spec.Replicas
	}

	step := WorkloadStep{Ref: ref, Replicas: replicas}
	aliases := d.aliasesFor(set, dep)

	for _, container := range dep.Spec.Template.Spec.Containers {
		env, err := resolveEnv(set, ref.Namespace, container)
		if err != nil {
			return step, fmt.Errorf("%s: container %s: %w", ref, container.Name, err)
		}

		mounts, err := resolveMounts(ref.Namespace, container, dep.Spec.Template.Spec.Volumes)
		if err != nil {
			return step, fmt.Errorf("%s: container %s: %w", ref, container.Name, err)
		}

		for i := int32(0); i < replicas; i++ {
			step.Instances = append(step.Instances, &runner.Instance{
				Name:       instanceName(dep, container, i),
				Namespace:  ref.Namespace,
				Workload:   dep.Name,
				Image:      container.Image,
				Entrypoint: container.Command,
				Args:       container.Args,
				Env:        env,
				Ports:      portBindings(container.Ports),
				Mounts:     mounts,
				Aliases:    aliases,
				Status:     runner.InstanceStatusPending,
			})
		}
	}

	return step, nil
}

func (d *Deployer) applyWorkload(ctx context.Context, step WorkloadStep, opts Options) error {
	namespace := step.Ref.Namespace

	var existing []*runner.Instance
	if err := d.store.List(ctx, store.ResourceTypeInstance, namespace, &existing); err != nil {
		return fmt.Errorf("failed to list instances: %w", err)
	}

	// Replace the workload's instances wholesale so repeated applies
	// converge and scale-downs remove the surplus.
	for _, old := range existing {
		if old.Workload != step.Ref.Name {
			continue
		}
		d.logger.Debug("Replacing instance", log.Str("instance", old.Name))
		if err := d.runner.Stop(ctx, old, opts.stopTimeout()); err != nil {
			d.logger.Debug("Stop failed, removing anyway", log.Str("instance", old.Name), log.Err(err))
		}
		if err := d.runner.Remove(ctx, old, true); err != nil {
			d.logger.Warn("Failed to remove instance", log.Str("instance", old.Name), log.Err(err))
		}
		if err := d.store.Delete(ctx, store.ResourceTypeInstance, namespace, old.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to delete instance record %s: %w", old.Name, err)
		}
	}

	for _, desired := range step.Instances {
		instance := *desired
		instance.ID = uuid.NewString()
		instance.CreatedAt = time.Now()

		d.logger.Info("Starting instance",
			log.Str("instance", instance.Name),
			log.Str("workload", instance.Workload),
			log.Str("image", instance.Image))

		if err := d.runner.Create(ctx, &instance); err != nil {
			return fmt.Errorf("failed to create instance %s: %w", instance.Name, err)
		}
		if err := d.runner.Start(ctx, &instance); err != nil {
			return fmt.Errorf("failed to start instance %s: %w", instance.Name, err)
		}
		instance.Status = runner.InstanceStatusRunning

		if err := d.store.Create(ctx, store.ResourceTypeInstance, namespace, instance.Name, &instance); err != nil {
			return fmt.Errorf("failed to record instance %s: %w", instance.Name, err)
		}
	}

	return nil
}

// recordResources upserts the applied objects so status and down can work
// without re-reading the manifests.
func (d *Deployer) recordResources(ctx context.Context, set *manifest.Set) error {
	for _, cm := range set.ConfigMaps() {
		if err := d.upsert(ctx, store.ResourceTypeConfigMap, cm.Namespace, cm.Name, cm); err != nil {
			return err
		}
	}
	for _, svc := range set.Services() {
		if err := d.upsert(ctx, store.ResourceTypeService, svc.Namespace, svc.Name, svc); err != nil {
			return err
		}
	}
	for _, pvc := range set.Claims() {
		if err := d.upsert(ctx, store.ResourceTypeClaim, pvc.Namespace, pvc.Name, pvc); err != nil {
			return err
		}
	}
	for _, dep := range set.Deployments() {
		if err := d.upsert(ctx, store.ResourceTypeWorkload, dep.Namespace, dep.Name, dep); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) upsert(ctx context.Context, resourceType, namespace, name string, resource interface{}) error {
	namespace = normalizeNamespace(namespace)
	err := d.store.Create(ctx, resourceType, namespace, name, resource)
	if errors.Is(err, store.ErrAlreadyExists) {
		err = d.store.Update(ctx, resourceType, namespace, name, resource)
	}
	if err != nil {
		return fmt.Errorf("failed to record %s %s/%s: %w", resourceType, namespace, name, err)
	}
	return nil
}

func (d *Deployer) clearResourceRecords(ctx context.Context, namespace string) error {
	var configMaps []corev1.ConfigMap
	if err := d.store.List(ctx, store.ResourceTypeConfigMap, namespace, &configMaps); err != nil {
		return err
	}
	for _, cm := range configMaps {
		if err := d.store.Delete(ctx, store.ResourceTypeConfigMap, namespace, cm.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	var services []corev1.Service
	if err := d.store.List(ctx, store.ResourceTypeService, namespace, &services); err != nil {
		return err
	}
	for _, svc := range services {
		if err := d.store.Delete(ctx, store.ResourceTypeService, namespace, svc.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	var claims []corev1.PersistentVolumeClaim
	if err := d.store.List(ctx, store.ResourceTypeClaim, namespace, &claims); err != nil {
		return err
	}
	for _, pvc := range claims {
		if err := d.store.Delete(ctx, store.ResourceTypeClaim, namespace, pvc.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	var workloads []appsv1.Deployment
	if err := d.store.List(ctx, store.ResourceTypeWorkload, namespace, &workloads); err != nil {
		return err
	}
	for _, dep := range workloads {
		if err := d.store.Delete(ctx, store.ResourceTypeWorkload, namespace, dep.Name); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	return nil
}

// aliasesFor returns the names of services selecting the deployment's pod
// template. Instances answer to these names on the shared network, which is
// how service DNS is approximated. Service port remapping is not performed:
// a service whose targetPort differs from the container port will not make
// traffic arrive anywhere.
func (d *Deployer) aliasesFor(set *manifest.Set, dep *appsv1.Deployment) []string {
	var aliases []string
	depNS := normalizeNamespace(dep.Namespace)
	for _, svc := range set.Services() {
		if normalizeNamespace(svc.Namespace) != depNS || len(svc.Spec.Selector) == 0 {
			continue
		}
		if selectorMatches(svc.Spec.Selector, dep.Spec.Template.Labels) {
			aliases = append(aliases, svc.Name)
		}
	}
	sort.Strings(aliases)
	return aliases
}

// VolumeName derives the volume name backing a claim.
func VolumeName(namespace, claim string) string {
	return fmt.Sprintf("%s-%s", normalizeNamespace(namespace), claim)
}

func instanceName(dep *appsv1.Deployment, container corev1.Container, ordinal int32) string {
	if len(dep.Spec.Template.Spec.Containers) == 1 {
		return fmt.Sprintf("%s-%d", dep.Name, ordinal)
	}
	return fmt.Sprintf("%s-%s-%d", dep.Name, container.Name, ordinal)
}

// resolveEnv flattens a container's env and envFrom entries into concrete
// values using the set's configmaps.
func resolveEnv(set *manifest.Set, namespace string, container corev1.Container) (map[string]string, error) {
	env := make(map[string]string)

	for _, src := range container.EnvFrom {
		if src.ConfigMapRef == nil {
			return nil, fmt.Errorf("envFrom: only configMapRef sources are supported")
		}
		cm, ok := set.ConfigMap(namespace, src.ConfigMapRef.Name)
		if !ok {
			if src.ConfigMapRef.Optional != nil && *src.ConfigMapRef.Optional {
				continue
			}
			return nil, fmt.Errorf("envFrom references missing configmap %q", src.ConfigMapRef.Name)
		}
		for k, v := range cm.Data {
			env[src.Prefix+k] = v
		}
	}

	for _, e := range container.Env {
		if e.ValueFrom == nil {
			env[e.Name] = e.Value
			continue
		}
		ref := e.ValueFrom.ConfigMapKeyRef
		if ref == nil {
			return nil, fmt.Errorf("env %s: only configMapKeyRef value sources are supported", e.Name)
		}
		optional := ref.Optional != nil && *ref.Optional
		cm, ok := set.ConfigMap(namespace, ref.Name)
		if !ok {
			if optional {
				continue
			}
			return nil, fmt.Errorf("env %s references missing configmap %q", e.Name, ref.Name)
		}
		value, ok := cm.Data[ref.Key]
		if !ok {
			if optional {
				continue
			}
			return nil, fmt.Errorf("env %s references missing key %q in configmap %q", e.Name, ref.Key, ref.Name)
		}
		env[e.Name] = value
	}

	return env, nil
}

// claimsByVolume maps pod volume names to their claim names, skipping
// non-claim volume sources.
func claimsByVolume(volumes []corev1.Volume) map[string]string {
	claims := make(map[string]string)
	for _, vol := range volumes {
		if vol.PersistentVolumeClaim != nil {
			claims[vol.Name] = vol.PersistentVolumeClaim.ClaimName
		}
	}
	return claims
}

// resolveMounts maps claim-backed volume mounts to named docker volumes.
// Mounts of other volume sources (emptyDir, configMap, ...) are skipped; a
// mount naming no pod volume at all is an error.
func resolveMounts(namespace string, container corev1.Container, volumes []corev1.Volume) ([]runner.VolumeMount, error) {
	claims := claimsByVolume(volumes)
	names := make(map[string]bool, len(volumes))
	for _, vol := range volumes {
		names[vol.Name] = true
	}

	var mounts []runner.VolumeMount
	for _, vm := range container.VolumeMounts {
		claim, ok := claims[vm.Name]
		if !ok {
			if names[vm.Name] {
				continue
			}
			return nil, fmt.Errorf("volumeMount %s names no pod volume", vm.Name)
		}
		mounts = append(mounts, runner.VolumeMount{
			Volume:    VolumeName(namespace, claim),
			MountPath: vm.MountPath,
		})
	}
	return mounts, nil
}

func portBindings(ports []corev1.ContainerPort) []runner.PortBinding {
	var bindings []runner.PortBinding
	for _, p := range ports {
		bindings = append(bindings, runner.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      strings.ToLower(string(p.Protocol)),
		})
	}
	return bindings
}

func selectorMatches(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func objectRef(kind, namespace, name string) manifest.ObjectRef {
	return manifest.ObjectRef{Kind: kind, Namespace: normalizeNamespace(namespace), Name: name}
}

func normalizeNamespace(namespace string) string {
	if namespace == "" {
		return manifest.DefaultNamespace
	}
	return namespace
}
