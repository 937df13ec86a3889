// Package docker provides the Docker-based implementation of the runner
// interface.
package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	imageTypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/gantryhq/gantry/pkg/log"
	"github.com/gantryhq/gantry/pkg/runner"
	"github.com/gantryhq/gantry/pkg/runner/docker/registryauth"
)

// Container labels used to recognize managed resources.
const (
	labelManaged   = "gantry.managed"
	labelNamespace = "gantry.namespace"
	labelInstance  = "gantry.instance.id"
	labelWorkload  = "gantry.workload"
)

// Config holds Docker runner configuration options.
type Config struct {
	// APIVersion pins the Docker API version; empty uses auto-negotiation.
	APIVersion string

	// FallbackAPIVersion is used when negotiation yields an incompatible
	// version. Default "1.43", which is widely compatible.
	FallbackAPIVersion string

	// NegotiationTimeoutSeconds bounds API version negotiation.
	NegotiationTimeoutSeconds int

	// NetworkName is the bridge network instances attach to.
	NetworkName string

	// AuthProviders resolve registry credentials for image pulls.
	AuthProviders []registryauth.Provider
}

// DefaultConfig returns the default Docker runner configuration.
func DefaultConfig() *Config {
	return &Config{
		FallbackAPIVersion:        "1.43",
		NegotiationTimeoutSeconds: 3,
		NetworkName:               "gantry",
	}
}

// Validate that Runner implements the runner interfaces.
var (
	_ runner.Runner      = (*Runner)(nil)
	_ runner.Provisioner = (*Runner)(nil)
)

// Runner implements runner.Runner against a local Docker engine.
type Runner struct {
	client *client.Client
	logger log.Logger
	config *Config
}

// NewRunner creates a Runner with default configuration.
func NewRunner(logger log.Logger) (*Runner, error) {
	return NewRunnerWithConfig(logger, DefaultConfig())
}

// NewRunnerWithConfig creates a Runner with specific configuration.
func NewRunnerWithConfig(logger log.Logger, config *Config) (*Runner, error) {
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("docker-runner")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.NetworkName == "" {
		config.NetworkName = "gantry"
	}

	cli, err := newClient(logger, config)
	if err != nil {
		return nil, err
	}

	return &Runner{client: cli, logger: logger, config: config}, nil
}

// newClient creates a Docker client, negotiating the API version and falling
// back to a compatible one when the daemon rejects the negotiated version.
func newClient(logger log.Logger, config *Config) (*client.Client, error) {
	if config.APIVersion != "" {
		logger.Debug("Using pinned Docker API version", log.Str("api_version", config.APIVersion))
		return client.NewClientWithOpts(client.FromEnv, client.WithVersion(config.APIVersion))
	}

	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(config.NegotiationTimeoutSeconds)*time.Second)
	defer cancel()
	cli.NegotiateAPIVersion(ctx)
	logger.Debug("Negotiated Docker API version", log.Str("api_version", cli.ClientVersion()))

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()
	if _, err := cli.Ping(pingCtx); err != nil &&
		strings.Contains(err.Error(), "client version") && strings.Contains(err.Error(), "too new") {
		logger.Warn("Docker API version mismatch, using fallback version",
			log.Str("negotiated", cli.ClientVersion()),
			log.Str("fallback", config.FallbackAPIVersion))
		return client.NewClientWithOpts(client.FromEnv, client.WithVersion(config.FallbackAPIVersion))
	}

	return cli, nil
}

// Client exposes the underlying Docker client for the image builder.
func (r *Runner) Client() *client.Client {
	return r.client
}

// EnsureNetwork creates the instance bridge network if missing.
func (r *Runner) EnsureNetwork(ctx context.Context) error {
	args := filters.NewArgs(filters.Arg("name", r.config.NetworkName))
	networks, err := r.client.NetworkList(ctx, network.ListOptions{Filters: args})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == r.config.NetworkName {
			return nil
		}
	}

	_, err = r.client.NetworkCreate(ctx, r.config.NetworkName, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{labelManaged: "true"},
	})
	if err != nil {
		return fmt.Errorf("failed to create network %s: %w", r.config.NetworkName, err)
	}

	r.logger.Info("Created instance network", log.Str("network", r.config.NetworkName))
	return nil
}

// EnsureVolume creates a named volume if missing. Volumes are deliberately
// never removed by the runner; durable data outlives instances.
func (r *Runner) EnsureVolume(ctx context.Context, name string, labels map[string]string) error {
	args := filters.NewArgs(filters.Arg("name", name))
	existing, err := r.client.VolumeList(ctx, volume.ListOptions{Filters: args})
	if err != nil {
		return fmt.Errorf("failed to list volumes: %w", err)
	}
	for _, v := range existing.Volumes {
		if v.Name == name {
			return nil
		}
	}

	allLabels := map[string]string{labelManaged: "true"}
	for k, v := range labels {
		allLabels[k] = v
	}
	if _, err := r.client.VolumeCreate(ctx, volume.CreateOptions{Name: name, Labels: allLabels}); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", name, err)
	}

	r.logger.Info("Created volume", log.Str("volume", name))
	return nil
}

// Create creates a container for the instance but does not start it.
func (r *Runner) Create(ctx context.Context, instance *runner.Instance) error {
	if instance == nil {
		return fmt.Errorf("invalid instance: nil pointer")
	}
	if instance.Image == "" {
		return fmt.Errorf("no image specified for instance %s", instance.Name)
	}

	if err := r.pullImage(ctx, instance.Image); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", instance.Image, err)
	}

	containerConfig, hostConfig, netConfig, err := r.instanceToContainerConfig(instance)
	if err != nil {
		return fmt.Errorf("failed to build container configuration: %w", err)
	}

	resp, err := r.client.ContainerCreate(ctx, containerConfig, hostConfig, netConfig, nil, instance.Name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	instance.ContainerID = resp.ID
	instance.Status = runner.InstanceStatusPending

	r.logger.Info("Created container",
		log.Str("container_id", resp.ID),
		log.Str("instance", instance.Name))
	return nil
}

// Start starts the instance's container.
func (r *Runner) Start(ctx context.Context, instance *runner.Instance) error {
	containerID, err := r.containerID(ctx, instance)
	if err != nil {
		return err
	}

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	instance.Status = runner.InstanceStatusRunning

	r.logger.Info("Started container",
		log.Str("container_id", containerID),
		log.Str("instance", instance.Name),
		log.Str("workload", instance.Workload))
	return nil
}

// Stop stops the instance's container.
func (r *Runner) Stop(ctx context.Context, instance *runner.Instance, timeout time.Duration) error {
	containerID, err := r.containerID(ctx, instance)
	if err != nil {
		return err
	}

	timeoutSeconds := int(timeout.Seconds())
	if err := r.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	instance.Status = runner.InstanceStatusStopped

	r.logger.Info("Stopped container",
		log.Str("container_id", containerID),
		log.Str("instance", instance.Name))
	return nil
}

// Remove removes the instance's container.
func (r *Runner) Remove(ctx context.Context, instance *runner.Instance, force bool) error {
	containerID, err := r.containerID(ctx, instance)
	if err != nil {
		return err
	}

	if err := r.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}

	r.logger.Info("Removed container",
		log.Str("container_id", containerID),
		log.Str("instance", instance.Name))
	return nil
}

// Status returns the instance's current state.
func (r *Runner) Status(ctx context.Context, instance *runner.Instance) (runner.InstanceStatus, error) {
	containerID, err := r.containerID(ctx, instance)
	if err != nil {
		return "", err
	}

	inspect, err := r.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	switch {
	case inspect.State.Running:
		return runner.InstanceStatusRunning, nil
	case inspect.State.ExitCode != 0:
		return runner.InstanceStatusFailed, nil
	default:
		return runner.InstanceStatusStopped, nil
	}
}

// List lists all managed instances in a namespace (all when empty).
func (r *Runner) List(ctx context.Context, namespace string) ([]*runner.Instance, error) {
	args := filters.NewArgs(filters.Arg("label", labelManaged+"=true"))
	if namespace != "" {
		args.Add("label", labelNamespace+"="+namespace)
	}

	containers, err := r.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	instances := make([]*runner.Instance, 0, len(containers))
	for _, c := range containers {
		instanceID := c.Labels[labelInstance]
		if instanceID == "" {
			r.logger.Warn("Found managed container without an instance id",
				log.Str("container_id", c.ID))
			continue
		}

		instance := &runner.Instance{
			ID:          instanceID,
			ContainerID: c.ID,
			Name:        strings.TrimPrefix(c.Names[0], "/"),
			Namespace:   c.Labels[labelNamespace],
			Workload:    c.Labels[labelWorkload],
			Image:       c.Image,
		}

		switch c.State {
		case "running":
			instance.Status = runner.InstanceStatusRunning
		case "created":
			instance.Status = runner.InstanceStatusPending
		case "exited":
			instance.Status = runner.InstanceStatusStopped
			if inspect, err := r.client.ContainerInspect(ctx, c.ID); err == nil && inspect.State.ExitCode != 0 {
				instance.Status = runner.InstanceStatusFailed
			}
		}

		instances = append(instances, instance)
	}
	return instances, nil
}

// GetLogs returns the instance's demultiplexed log stream.
func (r *Runner) GetLogs(ctx context.Context, instance *runner.Instance, options runner.LogOptions) (io.ReadCloser, error) {
	containerID, err := r.containerID(ctx, instance)
	if err != nil {
		return nil, err
	}

	tail := "all"
	if options.Tail > 0 {
		tail = strconv.Itoa(options.Tail)
	}
	since := ""
	if !options.Since.IsZero() {
		since = options.Since.Format(time.RFC3339Nano)
	}

	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     options.Follow,
		Timestamps: options.Timestamps,
		Since:      since,
		Tail:       tail,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get container logs: %w", err)
	}

	// Docker multiplexes stdout and stderr with frame headers.
	return newLogReader(logs), nil
}

// containerID resolves the container for an instance, preferring the label
// index over the cached id so restarts survive daemon-side renames.
func (r *Runner) containerID(ctx context.Context, instance *runner.Instance) (string, error) {
	args := filters.NewArgs(
		filters.Arg("label", labelManaged+"=true"),
		filters.Arg("label", labelInstance+"="+instance.ID),
	)
	if instance.Namespace != "" {
		args.Add("label", labelNamespace+"="+instance.Namespace)
	}

	containers, err := r.client.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return "", fmt.Errorf("failed to list containers: %w", err)
	}
	if len(containers) == 0 {
		if instance.ContainerID != "" {
			return instance.ContainerID, nil
		}
		return "", fmt.Errorf("no container found for instance %s", instance.Name)
	}
	if len(containers) > 1 {
		r.logger.Warn("Multiple containers found for instance",
			log.Str("instance", instance.Name),
			log.Int("count", len(containers)))
	}
	return containers[0].ID, nil
}

// pullImage pulls an image unless it is already present locally.
func (r *Runner) pullImage(ctx context.Context, image string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}

	r.logger.Info("Pulling image", log.Str("image", image))

	opts := imageTypes.PullOptions{}
	if auth := r.resolveAuth(ctx, image); auth != "" {
		opts.RegistryAuth = auth
	}

	reader, err := r.client.ImagePull(ctx, image, opts)
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// resolveAuth asks configured providers for credentials for the image's
// registry host; empty means anonymous.
func (r *Runner) resolveAuth(ctx context.Context, image string) string {
	host := registryauth.HostOf(image)
	for _, provider := range r.config.AuthProviders {
		if !provider.Match(host) {
			continue
		}
		auth, err := provider.Resolve(ctx, host, image)
		if err != nil {
			r.logger.Warn("Registry auth resolution failed, pulling anonymously",
				log.Str("host", host), log.Err(err))
			return ""
		}
		return auth
	}
	return ""
}

// instanceToContainerConfig converts an instance into Docker create configs.
func (r *Runner) instanceToContainerConfig(instance *runner.Instance) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, pb := range instance.Ports {
		proto := pb.Protocol
		if proto == "" {
			proto = "tcp"
		}
		port, err := nat.NewPort(proto, strconv.Itoa(int(pb.ContainerPort)))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid port %d/%s: %w", pb.ContainerPort, proto, err)
		}
		exposed[port] = struct{}{}
		if pb.HostPort > 0 {
			bindings[port] = []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: strconv.Itoa(int(pb.HostPort))}}
		}
	}

	containerConfig := &container.Config{
		Image:        instance.Image,
		Entrypoint:   instance.Entrypoint,
		Cmd:          instance.Args,
		Env:          formatEnvVars(instance.Env),
		ExposedPorts: exposed,
		Labels: map[string]string{
			labelManaged:   "true",
			labelNamespace: instance.Namespace,
			labelInstance:  instance.ID,
			labelWorkload:  instance.Workload,
		},
	}

	hostConfig := &container.HostConfig{PortBindings: bindings}
	for _, vm := range instance.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: vm.Volume,
			Target: vm.MountPath,
		})
	}

	netConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			r.config.NetworkName: {Aliases: instance.Aliases},
		},
	}

	return containerConfig, hostConfig, netConfig, nil
}

// formatEnvVars formats an environment map into "key=value" strings.
func formatEnvVars(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
