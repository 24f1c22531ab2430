// Package deploy drives the container runtime through the rebuild-and-restart
// sequence: precondition checks, best-effort cleanup of the previous
// container and image, build, run, and a polled running-state verification.
package deploy

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/joho/godotenv"

	coredeploy "github.com/trueclassic/oosflow/internal/core/deploy"
	"github.com/trueclassic/oosflow/internal/shell/docker"
)

// =============================================================================
// Pipeline
// =============================================================================

const (
	// runtimeBinary must be resolvable on PATH before anything else runs.
	runtimeBinary = "docker"

	defaultStopTimeout  = 10 * time.Second
	defaultPollInterval = time.Second
	defaultPollAttempts = 10

	// logTailLines bounds the log dump after a failed verification.
	logTailLines = "50"
)

// Pipeline executes the deployment sequence against an injected runtime.
type Pipeline struct {
	runtime docker.Client
	target  coredeploy.Target
	out     io.Writer
	logger  *slog.Logger

	// lookPath resolves the runtime executable; swapped in tests.
	lookPath func(file string) (string, error)
	// statFile checks the env file; swapped in tests.
	statFile func(name string) (os.FileInfo, error)

	pollInterval time.Duration
	pollAttempts int
}

// Option tweaks pipeline behavior.
type Option func(*Pipeline)

// WithLookPath overrides executable resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(p *Pipeline) { p.lookPath = fn }
}

// WithStatFile overrides env file stat.
func WithStatFile(fn func(string) (os.FileInfo, error)) Option {
	return func(p *Pipeline) { p.statFile = fn }
}

// WithPolling overrides the verify loop's interval and attempt budget.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(p *Pipeline) {
		p.pollInterval = interval
		p.pollAttempts = attempts
	}
}

// NewPipeline creates a pipeline for the given target. Progress lines go to
// out; structured diagnostics go to logger.
func NewPipeline(runtime docker.Client, target coredeploy.Target, out io.Writer, logger *slog.Logger, opts ...Option) *Pipeline {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		runtime:      runtime,
		target:       target,
		out:          out,
		logger:       logger,
		lookPath:     exec.LookPath,
		statFile:     os.Stat,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Pipeline) fatalf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	p.printf("ERROR: %v", err)
	return err
}

// =============================================================================
// Run
// =============================================================================

// Run executes the full sequence. A nil return means the container was
// observed running after the restart; any error is fatal and the caller
// should exit non-zero.
func (p *Pipeline) Run() error {
	if err := p.target.Validate(); err != nil {
		return p.fatalf("invalid deployment target: %w", err)
	}

	// Step 1: runtime available. Fails before any container or image query.
	if _, err := p.lookPath(runtimeBinary); err != nil {
		return p.fatalf("%s is not installed", runtimeBinary)
	}
	if err := p.runtime.Ping(); err != nil {
		return p.fatalf("%s daemon is not running", runtimeBinary)
	}
	p.printf("Runtime check passed.")

	// Step 2: env file present. Fails before the build step.
	envPath, err := p.target.ResolveEnvPath()
	if err != nil {
		return p.fatalf("resolving env file: %w", err)
	}
	if _, err := p.statFile(envPath); err != nil {
		return p.fatalf("required config missing: %s", envPath)
	}
	p.printf("Using env file %s.", envPath)

	// Steps 3-4: best-effort cleanup. Failures are logged and swallowed;
	// the desired end state is absence either way.
	p.cleanupContainer()
	p.cleanupImage()

	// Step 5: build.
	imageRef := coredeploy.NormalizeImageRef(p.target.ImageRef)
	p.printf("Building image %s...", imageRef)
	if err := p.runtime.BuildImage(docker.BuildOptions{
		ContextDir: p.target.WorkDir,
		Dockerfile: "Dockerfile",
		Tag:        imageRef,
		Output:     p.out,
	}); err != nil {
		return p.fatalf("building image %s: %w", imageRef, err)
	}
	p.printf("Image %s built.", imageRef)

	// Step 6: run.
	containerID, err := p.startContainer(imageRef, envPath)
	if err != nil {
		return p.fatalf("starting container %s: %w", p.target.ContainerName, err)
	}
	p.printf("Container %s started.", p.target.ContainerName)

	// Step 7: verify. Container start is asynchronous, so poll the running
	// state up to the attempt budget instead of trusting the start call.
	if !p.verifyRunning() {
		p.dumpLogs(containerID)
		return p.fatalf("container %s is not running after start", p.target.ContainerName)
	}

	p.printSummary(imageRef)
	return nil
}

// =============================================================================
// Steps
// =============================================================================

// findContainer returns the container whose name equals the target exactly.
// The runtime's name filter matches substrings, so candidates are re-checked
// with anchored equality.
func (p *Pipeline) findContainer(runningOnly bool) (*docker.ContainerInfo, error) {
	infos, err := p.runtime.ListContainers(docker.ListOptions{
		All:     !runningOnly,
		Filters: map[string]string{"name": p.target.ContainerName},
	})
	if err != nil {
		return nil, err
	}
	for i := range infos {
		if coredeploy.MatchContainerName(p.target.ContainerName, infos[i].Name) {
			return &infos[i], nil
		}
	}
	return nil, nil
}

func (p *Pipeline) cleanupContainer() {
	existing, err := p.findContainer(false)
	if err != nil {
		p.logger.Warn("container lookup failed during cleanup", "error", err)
		return
	}
	if existing == nil {
		p.printf("No existing container named %s.", p.target.ContainerName)
		return
	}

	p.printf("Stopping existing container %s...", p.target.ContainerName)
	stopTimeout := defaultStopTimeout
	if err := p.runtime.StopContainer(existing.ID, &stopTimeout); err != nil {
		p.logger.Warn("stop failed, continuing", "container", existing.ID, "error", err)
	}
	p.printf("Removing existing container %s...", p.target.ContainerName)
	if err := p.runtime.RemoveContainer(existing.ID, docker.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("remove failed, continuing", "container", existing.ID, "error", err)
	}
}

func (p *Pipeline) cleanupImage() {
	imageRef := coredeploy.NormalizeImageRef(p.target.ImageRef)
	exists, err := p.runtime.ImageExists(imageRef)
	if err != nil {
		p.logger.Warn("image lookup failed during cleanup", "error", err)
		return
	}
	if !exists {
		p.printf("No existing image %s.", imageRef)
		return
	}
	p.printf("Removing existing image %s...", imageRef)
	if err := p.runtime.RemoveImage(imageRef, true); err != nil {
		p.logger.Warn("image remove failed, continuing", "image", imageRef, "error", err)
	}
}

func (p *Pipeline) startContainer(imageRef, envPath string) (string, error) {
	// Key/value pairs pass through to the container uninterpreted.
	env, err := godotenv.Read(envPath)
	if err != nil {
		return "", fmt.Errorf("reading env file: %w", err)
	}

	id, err := p.runtime.CreateContainer(docker.ContainerSpec{
		Name:  p.target.ContainerName,
		Image: imageRef,
		Env:   env,
		Labels: map[string]string{
			docker.LabelManaged:   "true",
			docker.LabelDeployTag: p.target.ContainerName,
		},
		Ports: []docker.PortBinding{
			{
				ContainerPort: p.target.ContainerPort,
				HostPort:      p.target.HostPort,
				Protocol:      "tcp",
			},
		},
		RestartPolicy: docker.RestartPolicy{Name: "unless-stopped"},
	})
	if err != nil {
		return "", err
	}
	if err := p.runtime.StartContainer(id); err != nil {
		return id, err
	}
	return id, nil
}

func (p *Pipeline) verifyRunning() bool {
	for attempt := 1; attempt <= p.pollAttempts; attempt++ {
		info, err := p.findContainer(true)
		if err == nil && info != nil && info.Running() {
			return true
		}
		if attempt < p.pollAttempts {
			time.Sleep(p.pollInterval)
		}
	}
	return false
}

func (p *Pipeline) dumpLogs(containerID string) {
	p.printf("Container logs (last %s lines):", logTailLines)
	rc, err := p.runtime.ContainerLogs(containerID, docker.LogOptions{Tail: logTailLines})
	if err != nil {
		p.logger.Warn("log retrieval failed", "container", containerID, "error", err)
		return
	}
	defer rc.Close()
	io.Copy(p.out, rc)
}

func (p *Pipeline) printSummary(imageRef string) {
	p.printf("")
	p.printf("Deployment complete.")
	p.printf("  Container: %s", p.target.ContainerName)
	p.printf("  Image:     %s", imageRef)
	p.printf("  Ports:     %s", p.target.PortMapping())
	p.printf("")
	p.printf("View logs:  docker logs -f %s", p.target.ContainerName)
	p.printf("Stop:       docker stop %s", p.target.ContainerName)
}
