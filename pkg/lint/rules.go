package lint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/gantryhq/gantry/pkg/manifest"
)

func ref(kind, namespace, name string) manifest.ObjectRef {
	if namespace == "" {
		namespace = manifest.DefaultNamespace
	}
	return manifest.ObjectRef{Kind: kind, Namespace: namespace, Name: name}
}

func deploymentRef(dep *appsv1.Deployment) manifest.ObjectRef {
	return ref(manifest.KindDeployment, dep.Namespace, dep.Name)
}

func serviceRef(svc *corev1.Service) manifest.ObjectRef {
	return ref(manifest.KindService, svc.Namespace, svc.Name)
}

func claimRef(pvc *corev1.PersistentVolumeClaim) manifest.ObjectRef {
	return ref(manifest.KindPersistentVolumeClaim, pvc.Namespace, pvc.Name)
}

func replicasOf(dep *appsv1.Deployment) int32 {
	if dep.Spec.Replicas == nil {
		return 1
	}
	return *dep.Spec.Replicas
}

// envConfigMapCoverage checks that every environment variable a deployment
// sources from a configmap resolves to an existing configmap and key.
type envConfigMapCoverage struct{}

func (r *envConfigMapCoverage) Name() string { return "env-configmap-coverage" }

func (r *envConfigMapCoverage) Check(ctx *Context) Findings {
	var findings Findings

	for _, dep := range ctx.Set.Deployments() {
		depRef := deploymentRef(dep)

		for _, container := range dep.Spec.Template.Spec.Containers {
			for _, env := range container.Env {
				if env.ValueFrom == nil || env.ValueFrom.ConfigMapKeyRef == nil {
					continue
				}
				keyRef := env.ValueFrom.ConfigMapKeyRef
				cm, ok := ctx.Set.ConfigMap(dep.Namespace, keyRef.Name)
				if !ok {
					findings = append(findings, Finding{
						Rule:     r.Name(),
						Severity: SeverityError,
						Resource: depRef,
						Message: fmt.Sprintf("container %q env %s references missing configmap %q",
							container.Name, env.Name, keyRef.Name),
					})
					continue
				}
				if _, ok := cm.Data[keyRef.Key]; !ok {
					findings = append(findings, Finding{
						Rule:     r.Name(),
						Severity: SeverityError,
						Resource: depRef,
						Message: fmt.Sprintf("container %q env %s references key %q missing from configmap %q",
							container.Name, env.Name, keyRef.Key, keyRef.Name),
					})
				}
			}

			for _, envFrom := range container.EnvFrom {
				if envFrom.ConfigMapRef == nil {
					continue
				}
				if _, ok := ctx.Set.ConfigMap(dep.Namespace, envFrom.ConfigMapRef.Name); !ok {
					findings = append(findings, Finding{
						Rule:     r.Name(),
						Severity: SeverityError,
						Resource: depRef,
						Message: fmt.Sprintf("container %q envFrom references missing configmap %q",
							container.Name, envFrom.ConfigMapRef.Name),
					})
				}
			}
		}
	}
	return findings
}

// serviceSelectorMatch checks that every service selector selects at least
// one deployment's pod template.
type serviceSelectorMatch struct{}

func (r *serviceSelectorMatch) Name() string { return "service-selector-match" }

func (r *serviceSelectorMatch) Check(ctx *Context) Findings {
	var findings Findings

	for _, svc := range ctx.Set.Services() {
		if len(svc.Spec.Selector) == 0 {
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Resource: serviceRef(svc),
				Message:  "service has no selector and will route to nothing",
			})
			continue
		}
		if len(ctx.Set.SelectDeployments(namespaceOf(svc.Namespace), svc.Spec.Selector)) == 0 {
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityError,
				Resource: serviceRef(svc),
				Message:  fmt.Sprintf("selector %v matches no deployment pod template", svc.Spec.Selector),
			})
		}
	}
	return findings
}

// serviceTargetPort checks that every service targetPort corresponds to a
// containerPort of a selected deployment. This is the rule that catches a
// frontend listening on 3000 behind a service routing to 80.
type serviceTargetPort struct{}

func (r *serviceTargetPort) Name() string { return "service-target-port" }

func (r *serviceTargetPort) Check(ctx *Context) Findings {
	var findings Findings

	for _, svc := range ctx.Set.Services() {
		selected := ctx.Set.SelectDeployments(namespaceOf(svc.Namespace), svc.Spec.Selector)
		if len(selected) == 0 {
			// Covered by service-selector-match.
			continue
		}

		for _, port := range svc.Spec.Ports {
			if matchesAnyContainerPort(selected, port.TargetPort, port.Port) {
				continue
			}
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityError,
				Resource: serviceRef(svc),
				Message: fmt.Sprintf("targetPort %s matches no containerPort of the selected deployments",
					describeTargetPort(port.TargetPort, port.Port)),
			})
		}
	}
	return findings
}

// cachePortAgreement checks that a redis-server container's --port flag,
// containerPort and routing service ports all agree.
type cachePortAgreement struct{}

func (r *cachePortAgreement) Name() string { return "cache-port-agreement" }

func (r *cachePortAgreement) Check(ctx *Context) Findings {
	var findings Findings

	for _, dep := range ctx.Set.Deployments() {
		for _, container := range dep.Spec.Template.Spec.Containers {
			port, ok := redisPortOverride(container)
			if !ok {
				continue
			}
			depRef := deploymentRef(dep)

			if !containerHasPort(container, port) {
				findings = append(findings, Finding{
					Rule:     r.Name(),
					Severity: SeverityError,
					Resource: depRef,
					Message: fmt.Sprintf("redis-server runs with --port %d but container %q declares no matching containerPort",
						port, container.Name),
				})
			}

			for _, svc := range ctx.Set.Services() {
				if namespaceOf(svc.Namespace) != namespaceOf(dep.Namespace) {
					continue
				}
				if len(svc.Spec.Selector) == 0 || !selects(svc.Spec.Selector, dep.Spec.Template.Labels) {
					continue
				}
				for _, svcPort := range svc.Spec.Ports {
					if svcPort.Port != port || resolveTargetPortFor(dep, svcPort.TargetPort, svcPort.Port) != port {
						findings = append(findings, Finding{
							Rule:     r.Name(),
							Severity: SeverityError,
							Resource: serviceRef(svc),
							Message: fmt.Sprintf("cache listens on %d but service routes port %d to targetPort %s",
								port, svcPort.Port, describeTargetPort(svcPort.TargetPort, svcPort.Port)),
						})
					}
				}
			}
		}
	}
	return findings
}

// claimReferences checks that every claim a deployment mounts exists in the
// set, and that claims request a storage class and a positive capacity.
type claimReferences struct{}

func (r *claimReferences) Name() string { return "pvc-storage-class" }

func (r *claimReferences) Check(ctx *Context) Findings {
	var findings Findings

	for _, dep := range ctx.Set.Deployments() {
		for _, vol := range dep.Spec.Template.Spec.Volumes {
			if vol.PersistentVolumeClaim == nil {
				continue
			}
			if _, ok := ctx.Set.Claim(dep.Namespace, vol.PersistentVolumeClaim.ClaimName); !ok {
				findings = append(findings, Finding{
					Rule:     r.Name(),
					Severity: SeverityError,
					Resource: deploymentRef(dep),
					Message: fmt.Sprintf("volume %q references missing persistent volume claim %q",
						vol.Name, vol.PersistentVolumeClaim.ClaimName),
				})
			}
		}
	}

	for _, pvc := range ctx.Set.Claims() {
		if pvc.Spec.StorageClassName == nil || *pvc.Spec.StorageClassName == "" {
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityWarning,
				Resource: claimRef(pvc),
				Message:  "claim does not name a storage class; the class must exist in the target cluster before apply",
			})
		}
		storage, ok := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
		if !ok || storage.Sign() <= 0 {
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityError,
				Resource: claimRef(pvc),
				Message:  "claim must request a positive storage capacity",
			})
		}
	}
	return findings
}

// claimSingleWriter checks that a ReadWriteOnce claim is not mounted by a
// deployment scaled past one replica.
type claimSingleWriter struct{}

func (r *claimSingleWriter) Name() string { return "pvc-single-writer" }

func (r *claimSingleWriter) Check(ctx *Context) Findings {
	var findings Findings

	for _, dep := range ctx.Set.Deployments() {
		if replicasOf(dep) <= 1 {
			continue
		}
		for _, vol := range dep.Spec.Template.Spec.Volumes {
			if vol.PersistentVolumeClaim == nil {
				continue
			}
			pvc, ok := ctx.Set.Claim(dep.Namespace, vol.PersistentVolumeClaim.ClaimName)
			if !ok {
				continue
			}
			for _, mode := range pvc.Spec.AccessModes {
				if mode == corev1.ReadWriteOnce {
					findings = append(findings, Finding{
						Rule:     r.Name(),
						Severity: SeverityError,
						Resource: deploymentRef(dep),
						Message: fmt.Sprintf("%d replicas share single-writer claim %q",
							replicasOf(dep), pvc.Name),
					})
				}
			}
		}
	}
	return findings
}

// buildScriptPresent checks that an image whose Dockerfile runs `npm run
// build` has a build script in its context's package.json. A missing script
// fails the image build outright; the usual fix is a no-op script.
type buildScriptPresent struct{}

func (r *buildScriptPresent) Name() string { return "build-script-present" }

func (r *buildScriptPresent) Check(ctx *Context) Findings {
	var findings Findings

	for image, bc := range ctx.BuildContexts {
		if bc.Dockerfile == nil || !runsNpmBuild(bc.Dockerfile.RunCommands()) {
			continue
		}

		resource := imageResource(ctx, image)
		scripts, err := readPackageScripts(bc.Dir)
		if err != nil {
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityError,
				Resource: resource,
				Message:  fmt.Sprintf("image %q runs `npm run build` but %v", image, err),
			})
			continue
		}
		if _, ok := scripts["build"]; !ok {
			findings = append(findings, Finding{
				Rule:     r.Name(),
				Severity: SeverityError,
				Resource: resource,
				Message: fmt.Sprintf("image %q runs `npm run build` but package.json has no build script; add one (a no-op is enough)",
					image),
			})
		}
	}
	return findings
}

// exposePortAgreement warns when a deployment declares a containerPort its
// image's Dockerfile does not EXPOSE.
type exposePortAgreement struct{}

func (r *exposePortAgreement) Name() string { return "expose-port-agreement" }

func (r *exposePortAgreement) Check(ctx *Context) Findings {
	var findings Findings

	for _, dep := range ctx.Set.Deployments() {
		for _, container := range dep.Spec.Template.Spec.Containers {
			bc, ok := ctx.BuildContexts[container.Image]
			if !ok || bc.Dockerfile == nil {
				continue
			}
			exposed := bc.Dockerfile.ExposedPorts()
			for _, port := range container.Ports {
				if !containsPort(exposed, int(port.ContainerPort)) {
					findings = append(findings, Finding{
						Rule:     r.Name(),
						Severity: SeverityWarning,
						Resource: deploymentRef(dep),
						Message: fmt.Sprintf("container %q declares port %d but the Dockerfile for %q does not EXPOSE it",
							container.Name, port.ContainerPort, container.Image),
					})
				}
			}
		}
	}
	return findings
}

// Helpers

func namespaceOf(ns string) string {
	if ns == "" {
		return manifest.DefaultNamespace
	}
	return ns
}

func selects(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return len(selector) > 0
}

func matchesAnyContainerPort(deps []*appsv1.Deployment, target intstr.IntOrString, servicePort int32) bool {
	for _, dep := range deps {
		for _, container := range dep.Spec.Template.Spec.Containers {
			for _, port := range container.Ports {
				switch target.Type {
				case intstr.String:
					if port.Name == target.StrVal {
						return true
					}
				default:
					if port.ContainerPort == resolveTargetPort(target, servicePort) {
						return true
					}
				}
			}
		}
	}
	return false
}

// resolveTargetPort returns the numeric target port, falling back to the
// service port when the target is unset. Named ports resolve to -1.
func resolveTargetPort(target intstr.IntOrString, servicePort int32) int32 {
	if target.Type == intstr.String {
		return -1
	}
	if target.IntVal == 0 {
		return servicePort
	}
	return target.IntVal
}

// resolveTargetPortFor additionally resolves named target ports against the
// deployment's container port names; an unmatched name resolves to -1.
func resolveTargetPortFor(dep *appsv1.Deployment, target intstr.IntOrString, servicePort int32) int32 {
	if target.Type == intstr.String {
		for _, container := range dep.Spec.Template.Spec.Containers {
			for _, p := range container.Ports {
				if p.Name == target.StrVal {
					return p.ContainerPort
				}
			}
		}
		return -1
	}
	return resolveTargetPort(target, servicePort)
}

func describeTargetPort(target intstr.IntOrString, servicePort int32) string {
	if target.Type == intstr.String {
		return target.StrVal
	}
	return strconv.Itoa(int(resolveTargetPort(target, servicePort)))
}

func containerHasPort(container corev1.Container, port int32) bool {
	for _, p := range container.Ports {
		if p.ContainerPort == port {
			return true
		}
	}
	return false
}

// redisPortOverride extracts the --port flag from a redis-server command
// line, if the container runs one.
func redisPortOverride(container corev1.Container) (int32, bool) {
	args := append(append([]string{}, container.Command...), container.Args...)
	cmdline := strings.Join(args, " ")
	if !strings.Contains(cmdline, "redis-server") {
		return 0, false
	}
	for i, arg := range args {
		if arg != "--port" || i+1 >= len(args) {
			continue
		}
		port, err := strconv.Atoi(args[i+1])
		if err != nil {
			return 0, false
		}
		return int32(port), true
	}
	return 0, false
}

func containsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func runsNpmBuild(cmds []string) bool {
	for _, cmd := range cmds {
		if strings.Contains(cmd, "npm run build") {
			return true
		}
	}
	return false
}

// imageResource finds the deployment using an image so a build finding can
// point at it; falls back to a bare image ref when nothing in the set does.
func imageResource(ctx *Context, image string) manifest.ObjectRef {
	for _, dep := range ctx.Set.Deployments() {
		for _, container := range dep.Spec.Template.Spec.Containers {
			if container.Image == image {
				return deploymentRef(dep)
			}
		}
	}
	return manifest.ObjectRef{Kind: "Image", Namespace: manifest.DefaultNamespace, Name: image}
}

func readPackageScripts(dir string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("build context has no readable package.json: %w", err)
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("package.json is not valid JSON: %w", err)
	}
	return pkg.Scripts, nil
}
