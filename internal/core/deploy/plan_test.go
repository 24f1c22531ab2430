package deploy

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTarget() Target {
	return Target{
		ContainerName: "oosflow-api",
		ImageRef:      "oosflow-api",
		HostPort:      8000,
		ContainerPort: 8000,
		WorkDir:       ".",
		EnvFileName:   ".env",
	}
}

func TestTargetValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Target)
		wantErr string
	}{
		{"valid", func(*Target) {}, ""},
		{"missing container name", func(tg *Target) { tg.ContainerName = " " }, "container name"},
		{"missing image", func(tg *Target) { tg.ImageRef = "" }, "image reference"},
		{"host port zero", func(tg *Target) { tg.HostPort = 0 }, "host port"},
		{"host port too big", func(tg *Target) { tg.HostPort = 70000 }, "host port"},
		{"container port zero", func(tg *Target) { tg.ContainerPort = 0 }, "container port"},
		{"missing env file", func(tg *Target) { tg.EnvFileName = "" }, "env file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := validTarget()
			tt.mutate(&tg)
			err := tg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestResolveEnvPath(t *testing.T) {
	dir := t.TempDir()
	tg := validTarget()
	tg.WorkDir = dir
	tg.EnvFileName = ".env"

	got, err := tg.ResolveEnvPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".env"), got)
}

func TestResolveEnvPathUsesBaseName(t *testing.T) {
	dir := t.TempDir()
	tg := validTarget()
	tg.WorkDir = dir
	// A path-qualified name resolves against the working directory, not the
	// embedded directory component.
	tg.EnvFileName = "config/.env"

	got, err := tg.ResolveEnvPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ".env"), got)
}

func TestPortMapping(t *testing.T) {
	tg := validTarget()
	tg.HostPort = 8080

	assert.Equal(t, "8080:8000", tg.PortMapping())
}

func TestMatchContainerName(t *testing.T) {
	tests := []struct {
		target    string
		candidate string
		want      bool
	}{
		{"oosflow-api", "oosflow-api", true},
		{"oosflow-api", "/oosflow-api", true},
		{"/oosflow-api", "oosflow-api", true},
		{"oosflow-api", "oosflow-api-old", false},
		{"oosflow-api", "oosflow", false},
		{"oosflow-api", "my-oosflow-api", false},
		{"oosflow-api", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchContainerName(tt.target, tt.candidate))
		})
	}
}

func TestMatchImageRef(t *testing.T) {
	tests := []struct {
		target    string
		candidate string
		want      bool
	}{
		{"oosflow-api", "oosflow-api:latest", true},
		{"oosflow-api:latest", "oosflow-api", true},
		{"oosflow-api:v2", "oosflow-api:v2", true},
		{"oosflow-api", "oosflow-api:v2", false},
		{"oosflow-api", "oosflow-api-old", false},
		{"registry.local:5000/oosflow-api", "registry.local:5000/oosflow-api:latest", true},
	}
	for _, tt := range tests {
		t.Run(tt.candidate, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchImageRef(tt.target, tt.candidate))
		})
	}
}
