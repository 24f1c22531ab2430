package deploy

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredeploy "github.com/trueclassic/oosflow/internal/core/deploy"
	"github.com/trueclassic/oosflow/internal/shell/docker"
)

// =============================================================================
// Fake Runtime
// =============================================================================

type fakeRuntime struct {
	pingErr error

	containers []docker.ContainerInfo
	images     map[string]bool

	stopErr        error
	removeErr      error
	removeImageErr error
	buildErr       error
	createErr      error
	startErr       error

	// startExits makes the started container land in the exited state, as a
	// crashing entry process would.
	startExits bool

	// runningAfterPolls delays the running state until the Nth
	// running-containers query after start.
	runningAfterPolls int
	runningPolls      int

	logs string

	calls []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{images: map[string]bool{}}
}

func (f *fakeRuntime) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeRuntime) queryCalls() []string {
	var out []string
	for _, c := range f.calls {
		if c != "ping" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRuntime) Ping() error {
	f.record("ping")
	return f.pingErr
}

func (f *fakeRuntime) Close() error { return nil }

func (f *fakeRuntime) ListContainers(opts docker.ListOptions) ([]docker.ContainerInfo, error) {
	f.record("list-containers")
	// The daemon's name filter is a substring match; exactness is the
	// pipeline's job.
	needle := opts.Filters["name"]
	var out []docker.ContainerInfo
	for _, c := range f.containers {
		if needle != "" && !strings.Contains(c.Name, needle) {
			continue
		}
		if !opts.All && c.Status != docker.ContainerStatusRunning {
			continue
		}
		if !opts.All && f.runningPolls < f.runningAfterPolls {
			f.runningPolls++
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeRuntime) StopContainer(id string, timeout *time.Duration) error {
	f.record("stop:" + id)
	if f.stopErr != nil {
		return f.stopErr
	}
	for i := range f.containers {
		if f.containers[i].ID == id {
			f.containers[i].Status = docker.ContainerStatusExited
		}
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(id string, opts docker.RemoveOptions) error {
	f.record("remove:" + id)
	if f.removeErr != nil {
		return f.removeErr
	}
	kept := f.containers[:0]
	for _, c := range f.containers {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	f.containers = kept
	return nil
}

func (f *fakeRuntime) CreateContainer(spec docker.ContainerSpec) (string, error) {
	f.record("create:" + spec.Name)
	if f.createErr != nil {
		return "", f.createErr
	}
	f.containers = append(f.containers, docker.ContainerInfo{
		ID:     "new-" + spec.Name,
		Name:   spec.Name,
		Image:  spec.Image,
		Status: docker.ContainerStatusCreated,
	})
	return "new-" + spec.Name, nil
}

func (f *fakeRuntime) StartContainer(id string) error {
	f.record("start:" + id)
	if f.startErr != nil {
		return f.startErr
	}
	status := docker.ContainerStatusRunning
	if f.startExits {
		status = docker.ContainerStatusExited
	}
	for i := range f.containers {
		if f.containers[i].ID == id {
			f.containers[i].Status = status
		}
	}
	return nil
}

func (f *fakeRuntime) ContainerLogs(id string, opts docker.LogOptions) (io.ReadCloser, error) {
	f.record("logs:" + id)
	return io.NopCloser(strings.NewReader(f.logs)), nil
}

func (f *fakeRuntime) BuildImage(opts docker.BuildOptions) error {
	f.record("build:" + opts.Tag)
	if f.buildErr != nil {
		return f.buildErr
	}
	f.images[opts.Tag] = true
	return nil
}

func (f *fakeRuntime) ImageExists(image string) (bool, error) {
	f.record("image-exists:" + image)
	return f.images[image], nil
}

func (f *fakeRuntime) RemoveImage(image string, force bool) error {
	f.record("remove-image:" + image)
	if f.removeImageErr != nil {
		return f.removeImageErr
	}
	delete(f.images, image)
	return nil
}

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTarget(t *testing.T) coredeploy.Target {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=8000\n"), 0o644))
	return coredeploy.Target{
		ContainerName: "oosflow-api",
		ImageRef:      "oosflow-api",
		HostPort:      8000,
		ContainerPort: 8000,
		WorkDir:       dir,
		EnvFileName:   ".env",
	}
}

func newTestPipeline(rt docker.Client, target coredeploy.Target, out io.Writer, opts ...Option) *Pipeline {
	base := []Option{
		WithLookPath(func(string) (string, error) { return "/usr/bin/docker", nil }),
		WithPolling(0, 3),
	}
	return NewPipeline(rt, target, out, testLogger(), append(base, opts...)...)
}

// =============================================================================
// Precondition Tests
// =============================================================================

func TestRunFailsWhenBinaryMissing(t *testing.T) {
	rt := newFakeRuntime()
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out,
		WithLookPath(func(string) (string, error) { return "", errors.New("not found") }))

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: docker is not installed")
	// No runtime interaction of any kind before the check.
	assert.Empty(t, rt.calls)
}

func TestRunFailsWhenDaemonDown(t *testing.T) {
	rt := newFakeRuntime()
	rt.pingErr = errors.New("cannot connect")
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: docker daemon is not running")
	// The liveness ping ran, but no container or image query did.
	assert.Empty(t, rt.queryCalls())
}

func TestRunFailsWhenEnvFileMissing(t *testing.T) {
	rt := newFakeRuntime()
	target := testTarget(t)
	require.NoError(t, os.Remove(filepath.Join(target.WorkDir, ".env")))
	var out bytes.Buffer
	p := newTestPipeline(rt, target, &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: required config missing")
	// Failure happens before the build step.
	for _, c := range rt.calls {
		assert.NotContains(t, c, "build")
	}
}

// =============================================================================
// Happy Path and Idempotence
// =============================================================================

func TestRunFirstDeployNothingToClean(t *testing.T) {
	rt := newFakeRuntime()
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.NoError(t, err)
	assert.Contains(t, out.String(), "No existing container named oosflow-api")
	assert.Contains(t, out.String(), "No existing image oosflow-api:latest")
	assert.Contains(t, out.String(), "Deployment complete.")
	assert.Contains(t, out.String(), "docker logs -f oosflow-api")
	assert.Contains(t, out.String(), "8000:8000")
}

func TestRunTwiceConvergesToSameState(t *testing.T) {
	rt := newFakeRuntime()
	target := testTarget(t)

	require.NoError(t, newTestPipeline(rt, target, io.Discard).Run())
	require.NoError(t, newTestPipeline(rt, target, io.Discard).Run())

	// One running container and one image, both runs.
	require.Len(t, rt.containers, 1)
	assert.Equal(t, "oosflow-api", rt.containers[0].Name)
	assert.True(t, rt.containers[0].Running())
	assert.True(t, rt.images["oosflow-api:latest"])

	// Second run cleaned up the first run's artifacts.
	assert.Contains(t, rt.calls, "stop:new-oosflow-api")
	assert.Contains(t, rt.calls, "remove:new-oosflow-api")
	assert.Contains(t, rt.calls, "remove-image:oosflow-api:latest")
}

func TestRunToleratesCleanupFailures(t *testing.T) {
	rt := newFakeRuntime()
	rt.containers = []docker.ContainerInfo{
		{ID: "old", Name: "oosflow-api", Status: docker.ContainerStatusExited},
	}
	rt.images["oosflow-api:latest"] = true
	rt.stopErr = errors.New("already stopped")
	rt.removeErr = errors.New("already removed")
	rt.removeImageErr = errors.New("in use")
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	// Cleanup failures never abort the rebuild.
	require.NoError(t, err)
	assert.Contains(t, rt.calls, "build:oosflow-api:latest")
}

// =============================================================================
// Fatal Step Tests
// =============================================================================

func TestRunFailsOnBuildError(t *testing.T) {
	rt := newFakeRuntime()
	rt.buildErr = errors.New("malformed Dockerfile")
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: building image")
	// Nothing was created after the failed build.
	for _, c := range rt.calls {
		assert.NotContains(t, c, "create")
	}
}

func TestRunFailsOnStartError(t *testing.T) {
	rt := newFakeRuntime()
	rt.startErr = errors.New("no such entrypoint")
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: starting container oosflow-api")
}

func TestRunDumpsLogsWhenContainerExitsImmediately(t *testing.T) {
	rt := newFakeRuntime()
	rt.startExits = true
	rt.logs = "panic: missing WAREHOUSE_DATASET\n"
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "panic: missing WAREHOUSE_DATASET")
	assert.Contains(t, out.String(), "ERROR: container oosflow-api is not running after start")
	assert.Contains(t, rt.calls, "logs:new-oosflow-api")
}

// =============================================================================
// Exact-Match and Verify Polling
// =============================================================================

func TestRunIgnoresSimilarlyNamedContainers(t *testing.T) {
	rt := newFakeRuntime()
	rt.containers = []docker.ContainerInfo{
		{ID: "sup", Name: "oosflow-api-old", Status: docker.ContainerStatusRunning},
		{ID: "pre", Name: "my-oosflow-api", Status: docker.ContainerStatusRunning},
	}
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.NoError(t, err)
	// Neither the superstring nor the prefixed name was touched.
	assert.NotContains(t, rt.calls, "stop:sup")
	assert.NotContains(t, rt.calls, "stop:pre")
	assert.NotContains(t, rt.calls, "remove:sup")
	assert.NotContains(t, rt.calls, "remove:pre")
}

func TestVerifyRetriesUntilRunning(t *testing.T) {
	rt := newFakeRuntime()
	// Not observable as running until the second post-start poll.
	rt.runningAfterPolls = 1
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Deployment complete.")
}

func TestVerifyGivesUpAfterAttemptBudget(t *testing.T) {
	rt := newFakeRuntime()
	rt.runningAfterPolls = 100
	var out bytes.Buffer
	p := newTestPipeline(rt, testTarget(t), &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "is not running after start")
}

func TestRunRejectsInvalidTarget(t *testing.T) {
	rt := newFakeRuntime()
	target := testTarget(t)
	target.HostPort = 0
	var out bytes.Buffer
	p := newTestPipeline(rt, target, &out)

	err := p.Run()

	require.Error(t, err)
	assert.Contains(t, out.String(), "ERROR: invalid deployment target")
	assert.Empty(t, rt.calls)
}
