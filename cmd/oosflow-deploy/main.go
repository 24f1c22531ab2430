// Command oosflow-deploy rebuilds and restarts the API container on the
// current host. It is idempotent: run it after every code change and it
// converges the host to one running container built from the working
// directory.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	coredeploy "github.com/trueclassic/oosflow/internal/core/deploy"
	"github.com/trueclassic/oosflow/internal/shell/deploy"
	"github.com/trueclassic/oosflow/internal/shell/docker"
)

const (
	ExitSuccess = 0
	ExitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	container := flag.String("container", "oosflow-api", "Container name to manage")
	image := flag.String("image", "oosflow-api", "Image tag to build")
	hostPort := flag.Int("host-port", 8000, "Host port to publish")
	containerPort := flag.Int("container-port", 8000, "Container port to expose")
	workDir := flag.String("dir", ".", "Build context directory")
	envFile := flag.String("env-file", ".env", "Env file name inside the build directory")
	dockerHost := flag.String("docker-host", "", "Docker daemon address (defaults to environment)")
	quiet := flag.Bool("quiet", false, "Suppress structured logs, keep step output")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *quiet {
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	target := coredeploy.Target{
		ContainerName: *container,
		ImageRef:      *image,
		HostPort:      *hostPort,
		ContainerPort: *containerPort,
		WorkDir:       *workDir,
		EnvFileName:   *envFile,
	}

	runtime, err := docker.NewDockerClient(*dockerHost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: docker is not installed or not reachable: %v\n", err)
		return ExitFailure
	}
	defer runtime.Close()

	pipeline := deploy.NewPipeline(runtime, target, os.Stdout, logger)
	if err := pipeline.Run(); err != nil {
		return ExitFailure
	}
	return ExitSuccess
}
