// Package docker wraps the Docker SDK behind the small runtime surface the
// deployment pipeline needs: liveness, exact-name lookup, container and image
// lifecycle, build, and logs.
package docker

import (
	"io"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the container the run step creates.
type ContainerSpec struct {
	Name          string
	Image         string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortBinding
	RestartPolicy RestartPolicy
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	CreatedAt time.Time
	Ports     []PortBinding
	Labels    map[string]string
}

// Running reports whether the container's process is up.
func (c ContainerInfo) Running() bool {
	return c.Status == ContainerStatusRunning
}

// ImageInfo identifies a local image by its repo:tag references.
type ImageInfo struct {
	ID   string
	Tags []string
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"name": "oosflow-api"}
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Tail       string // "all" or number
	Timestamps bool
}

// BuildOptions defines options for building an image.
type BuildOptions struct {
	// ContextDir is the build context root; the whole tree is sent to the
	// daemon minus dotgit and local state directories.
	ContextDir string

	// Dockerfile is the build definition path relative to ContextDir.
	Dockerfile string

	// Tag is applied to the resulting image.
	Tag string

	// Output receives the daemon's build progress stream. Nil discards it.
	Output io.Writer
}

// =============================================================================
// Client Interface
// =============================================================================

// Client is the container runtime surface the deployment pipeline consumes.
// The pipeline is tested against a fake implementation of this interface.
type Client interface {
	// Container operations
	CreateContainer(spec ContainerSpec) (containerID string, err error)
	StartContainer(containerID string) error
	StopContainer(containerID string, timeout *time.Duration) error
	RemoveContainer(containerID string, opts RemoveOptions) error
	ListContainers(opts ListOptions) ([]ContainerInfo, error)
	ContainerLogs(containerID string, opts LogOptions) (io.ReadCloser, error)

	// Image operations
	BuildImage(opts BuildOptions) error
	ImageExists(image string) (bool, error)
	RemoveImage(image string, force bool) error

	// Health operations
	Ping() error
	Close() error
}

// =============================================================================
// Label Constants
// =============================================================================

const (
	LabelManaged   = "com.oosflow.managed"
	LabelDeployTag = "com.oosflow.deploy"
)
