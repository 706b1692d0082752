package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "admission.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadAndUnmarshal(t *testing.T) {
	path := writeConfigFile(t, `
admission:
  enabled: true
  store_type: redis
  fail_mode: open
`)

	l := NewLoader(path, "APP")
	require.NoError(t, l.Load())

	var cfg struct {
		Enabled   bool   `mapstructure:"enabled"`
		StoreType string `mapstructure:"store_type"`
		FailMode  string `mapstructure:"fail_mode"`
	}
	require.NoError(t, l.Unmarshal("admission", &cfg))

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "redis", cfg.StoreType)
	assert.Equal(t, "open", cfg.FailMode)
}

func TestLoader_MissingFileIsNotAnError(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "does-not-exist.yaml"), "")
	assert.NoError(t, l.Load())
}

func TestLoader_MissingSection(t *testing.T) {
	path := writeConfigFile(t, `admission: {enabled: true}`)

	l := NewLoader(path, "")
	require.NoError(t, l.Load())

	var out struct{}
	assert.Error(t, l.Unmarshal("nope", &out))
}

func TestLoader_SetOverride(t *testing.T) {
	l := NewLoader("", "")
	require.NoError(t, l.Load())

	l.Set("admission.enabled", true)
	assert.True(t, l.IsSet("admission.enabled"))
	assert.Equal(t, "true", l.GetString("admission.enabled"))
}
