// Package deploy holds the pure pieces of the deployment pipeline: target
// validation, env file path resolution, and exact-match name comparison. The
// pipeline itself, which talks to the container runtime, lives in
// internal/shell/deploy.
package deploy

import (
	"fmt"
	"path/filepath"
	"strings"
)

// =============================================================================
// Deployment Target
// =============================================================================

// Target describes the single container the pipeline converges on.
type Target struct {
	// ContainerName is the exact name of the container to (re)create.
	ContainerName string

	// ImageRef is the tag the freshly built image receives. A bare
	// repository name implies the "latest" tag.
	ImageRef string

	// HostPort is published on the host and mapped to ContainerPort.
	HostPort int

	// ContainerPort is the fixed port the application binds inside the
	// container.
	ContainerPort int

	// WorkDir contains the Dockerfile and the .env file.
	WorkDir string

	// EnvFileName is the .env file's name relative to WorkDir.
	EnvFileName string
}

// Validate rejects targets the pipeline cannot act on.
func (t Target) Validate() error {
	if strings.TrimSpace(t.ContainerName) == "" {
		return fmt.Errorf("container name is required")
	}
	if strings.TrimSpace(t.ImageRef) == "" {
		return fmt.Errorf("image reference is required")
	}
	if t.HostPort < 1 || t.HostPort > 65535 {
		return fmt.Errorf("host port %d out of range", t.HostPort)
	}
	if t.ContainerPort < 1 || t.ContainerPort > 65535 {
		return fmt.Errorf("container port %d out of range", t.ContainerPort)
	}
	if strings.TrimSpace(t.EnvFileName) == "" {
		return fmt.Errorf("env file name is required")
	}
	return nil
}

// PortMapping renders the published port pair for the run step and the
// success summary.
func (t Target) PortMapping() string {
	return fmt.Sprintf("%d:%d", t.HostPort, t.ContainerPort)
}

// ResolveEnvPath returns the absolute path of the env file: the absolute
// path of its containing directory joined with its base name.
func (t Target) ResolveEnvPath() (string, error) {
	dir, err := filepath.Abs(t.WorkDir)
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return filepath.Join(dir, filepath.Base(t.EnvFileName)), nil
}

// =============================================================================
// Exact-Match Name Comparison
// =============================================================================

// MatchContainerName reports whether a candidate container name equals the
// target exactly. The runtime reports names with a leading slash; a
// superstring or substring of the target never matches.
func MatchContainerName(target, candidate string) bool {
	return strings.TrimPrefix(candidate, "/") == strings.TrimPrefix(target, "/")
}

// NormalizeImageRef appends the implicit "latest" tag to a bare repository
// reference so comparisons are stable.
func NormalizeImageRef(ref string) string {
	slash := strings.LastIndex(ref, "/")
	if !strings.Contains(ref[slash+1:], ":") {
		return ref + ":latest"
	}
	return ref
}

// MatchImageRef reports whether a candidate image reference equals the
// target exactly, after normalizing implicit tags on both sides.
func MatchImageRef(target, candidate string) bool {
	return NormalizeImageRef(candidate) == NormalizeImageRef(target)
}
