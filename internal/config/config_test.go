package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.ServerAddress())
	assert.Equal(t, 10*time.Second, cfg.ImageFetchTimeout)
	assert.Equal(t, 0.7, cfg.NSFWThreshold)
	assert.True(t, cfg.NSFWLoadModel)
	assert.False(t, cfg.AzureEnabled())
	assert.Equal(t, int64(40_000_000), cfg.MaxImagePixels)
	assert.Empty(t, cfg.AllowedImageHosts)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("NSFW_THRESHOLD", "0.55")
	t.Setenv("NSFW_LOAD_MODEL", "false")
	t.Setenv("IMAGE_FETCH_TIMEOUT", "3s")
	t.Setenv("MAX_CONCURRENT_ANALYSES", "2")
	t.Setenv("MAX_IMAGE_PIXELS", "1000000")
	t.Setenv("ALLOWED_IMAGE_HOSTS", " cdn.example.com, ,*.images.test ")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 0.55, cfg.NSFWThreshold)
	assert.False(t, cfg.NSFWLoadModel)
	assert.Equal(t, 3*time.Second, cfg.ImageFetchTimeout)
	assert.Equal(t, 2, cfg.MaxConcurrent)
	assert.Equal(t, int64(1_000_000), cfg.MaxImagePixels)
	assert.Equal(t, []string{"cdn.example.com", "*.images.test"}, cfg.AllowedImageHosts)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric port", "PORT", "http"},
		{"port out of range", "PORT", "70000"},
		{"threshold above one", "NSFW_THRESHOLD", "1.5"},
		{"negative threshold", "NSFW_THRESHOLD", "-0.1"},
		{"NaN threshold", "NSFW_THRESHOLD", "NaN"},
		{"lowercase nan threshold", "NSFW_THRESHOLD", "nan"},
		{"zero pixel cap", "MAX_IMAGE_PIXELS", "0"},
		{"zero body size", "MAX_REQUEST_BODY_SIZE", "0"},
		{"zero concurrency", "MAX_CONCURRENT_ANALYSES", "0"},
		{"azure account without key", "AZURE_STORAGE_ACCOUNT", "profiles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestValidate_NaNThreshold(t *testing.T) {
	cfg := Default()
	cfg.NSFWThreshold = math.NaN()
	assert.ErrorContains(t, cfg.Validate(), "NSFW_THRESHOLD")
}

func TestLoadFromEnv_YAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
port: "7000"
image_fetch_timeout: 4s
max_image_pixels: 2000000
allowed_image_hosts:
  - cdn.example.com
nsfw:
  threshold: 0.6
  load_model: false
  model_path: /models/open_nsfw.onnx
azure:
  account_name: profiles
  account_key: c2VjcmV0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	// env wins over the file
	t.Setenv("PORT", "7001")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "7001", cfg.Port)
	assert.Equal(t, 4*time.Second, cfg.ImageFetchTimeout)
	assert.Equal(t, 0.6, cfg.NSFWThreshold)
	assert.False(t, cfg.NSFWLoadModel)
	assert.Equal(t, "/models/open_nsfw.onnx", cfg.NSFWModelPath)
	assert.True(t, cfg.AzureEnabled())
	assert.Equal(t, int64(2_000_000), cfg.MaxImagePixels)
	assert.Equal(t, []string{"cdn.example.com"}, cfg.AllowedImageHosts)
}

func TestLoadFromEnv_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("request_timeout: soon\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnv_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadFromEnv()
	assert.Error(t, err)
}
