package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "auto", cfg.Models.Device)
	assert.Equal(t, "/tmp", cfg.Output.Root)
	assert.InDelta(t, 0.3, cfg.Models.Grounding.BoxThreshold, 1e-6)
	assert.InDelta(t, 0.25, cfg.Models.Grounding.TextThreshold, 1e-6)
	assert.False(t, cfg.Output.CleanupOnFailure)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
models:
  weights_dir: /opt/weights
  device: cpu
  grounding:
    box_threshold: 0.35
output:
  root: /var/predictions
  cleanup_on_failure: true
janitor:
  enabled: true
  max_age: 2h
weights:
  files:
    - name: sam
      url: https://example.com/sam.onnx
      path: sam.onnx
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/weights", cfg.Models.WeightsDir)
	assert.Equal(t, "cpu", cfg.Models.Device)
	assert.InDelta(t, 0.35, cfg.Models.Grounding.BoxThreshold, 1e-6)
	// Untouched nested fields keep their defaults.
	assert.InDelta(t, 0.25, cfg.Models.Grounding.TextThreshold, 1e-6)
	assert.Equal(t, "groundingdino_swint_ogc.onnx", cfg.Models.Grounding.Checkpoint)
	assert.Equal(t, "/var/predictions", cfg.Output.Root)
	assert.True(t, cfg.Output.CleanupOnFailure)
	assert.Equal(t, 2*time.Hour, cfg.Janitor.MaxAge)
	require.Len(t, cfg.Weights.Files, 1)
	assert.Equal(t, "sam.onnx", cfg.Weights.Files[0].Path)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("OUTPUT_ROOT", "/scratch")
	t.Setenv("DEVICE", "cpu")
	t.Setenv("CLEANUP_ON_FAILURE", "true")
	t.Setenv("LISTEN_ADDR", ":8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/scratch", cfg.Output.Root)
	assert.Equal(t, "cpu", cfg.Models.Device)
	assert.True(t, cfg.Output.CleanupOnFailure)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed yaml", "models: [unterminated"},
		{"bad device", "models:\n  device: tpu\n"},
		{"threshold out of range", "models:\n  grounding:\n    box_threshold: 1.5\n"},
		{"janitor without age", "janitor:\n  enabled: true\n  max_age: 0s\n"},
		{"weight without url", "weights:\n  files:\n    - name: x\n      path: x.onnx\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestModelsPath(t *testing.T) {
	m := Models{WeightsDir: "/w"}
	assert.Equal(t, "/w/a.onnx", m.Path("a.onnx"))
	assert.Equal(t, "/abs/a.onnx", m.Path("/abs/a.onnx"))
	assert.Equal(t, "", m.Path(""))
}
