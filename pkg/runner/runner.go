// Package runner defines the interface for running workload instances and
// managing the volumes and networks they attach to.
package runner

import (
	"context"
	"io"
	"time"
)

// InstanceStatus is the lifecycle state of an instance.
type InstanceStatus string

// Instance statuses.
const (
	InstanceStatusPending InstanceStatus = "pending"
	InstanceStatusRunning InstanceStatus = "running"
	InstanceStatusStopped InstanceStatus = "stopped"
	InstanceStatusFailed  InstanceStatus = "failed"
)

// PortBinding maps a container port to an optional host port.
type PortBinding struct {
	// ContainerPort is the port the process listens on.
	ContainerPort int32 `json:"containerPort"`

	// HostPort publishes the port on the host when non-zero.
	HostPort int32 `json:"hostPort,omitempty"`

	// Protocol is tcp or udp; empty means tcp.
	Protocol string `json:"protocol,omitempty"`
}

// VolumeMount attaches a named volume at a path inside the instance.
type VolumeMount struct {
	// Volume is the named volume backing the mount.
	Volume string `json:"volume"`

	// MountPath is the path inside the container.
	MountPath string `json:"mountPath"`
}

// Instance is a single running copy of a workload.
type Instance struct {
	// ID uniquely identifies the instance.
	ID string `json:"id"`

	// Name is the instance name (also used as the container name).
	Name string `json:"name"`

	// Namespace the instance belongs to.
	Namespace string `json:"namespace"`

	// Workload is the deployment the instance belongs to.
	Workload string `json:"workload"`

	// ContainerID is the runtime's identifier, set by Create.
	ContainerID string `json:"containerID,omitempty"`

	// Image is the container image to run.
	Image string `json:"image"`

	// Entrypoint overrides the image entrypoint when set.
	Entrypoint []string `json:"entrypoint,omitempty"`

	// Args are passed to the entrypoint.
	Args []string `json:"args,omitempty"`

	// Env is the resolved environment for the process.
	Env map[string]string `json:"env,omitempty"`

	// Ports are the instance's port bindings.
	Ports []PortBinding `json:"ports,omitempty"`

	// Mounts are named-volume mounts.
	Mounts []VolumeMount `json:"mounts,omitempty"`

	// Aliases are additional network names the instance answers to.
	Aliases []string `json:"aliases,omitempty"`

	// Status is the last observed lifecycle state.
	Status InstanceStatus `json:"status,omitempty"`

	// CreatedAt is when the instance record was created.
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// LogOptions controls log retrieval.
type LogOptions struct {
	// Follow streams new output as it arrives.
	Follow bool

	// Tail limits output to the last N lines (0 for all).
	Tail int

	// Timestamps prefixes lines with timestamps.
	Timestamps bool

	// Since shows logs after this time when non-zero.
	Since time.Time
}

// Runner manages the lifecycle of workload instances.
type Runner interface {
	// Create creates an instance but does not start it.
	Create(ctx context.Context, instance *Instance) error

	// Start starts a created instance.
	Start(ctx context.Context, instance *Instance) error

	// Stop stops a running instance, killing it after the timeout.
	Stop(ctx context.Context, instance *Instance, timeout time.Duration) error

	// Remove removes an instance.
	Remove(ctx context.Context, instance *Instance, force bool) error

	// Status returns the instance's current lifecycle state.
	Status(ctx context.Context, instance *Instance) (InstanceStatus, error)

	// List returns all managed instances in a namespace (all when empty).
	List(ctx context.Context, namespace string) ([]*Instance, error)

	// GetLogs returns the instance's log stream.
	GetLogs(ctx context.Context, instance *Instance, options LogOptions) (io.ReadCloser, error)
}

// Provisioner manages the durable resources instances attach to.
type Provisioner interface {
	// EnsureVolume creates the named volume if it does not exist.
	EnsureVolume(ctx context.Context, name string, labels map[string]string) error

	// EnsureNetwork creates the instance network if it does not exist.
	EnsureNetwork(ctx context.Context) error
}
