package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleCfg struct {
	Name   string `mapstructure:"name"`
	Export struct {
		Mode      string `mapstructure:"mode"`
		BatchSize int    `mapstructure:"batch_size"`
	} `mapstructure:"export"`
}

func writeSample(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "sample.yaml"), []byte(body), 0644))
}

func TestConfig_Load(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "name: collector\nexport:\n  mode: batch\n  batch_size: 80\n")
	t.Chdir(dir)

	cfg, v, err := Load[sampleCfg]("sample")
	require.NoError(t, err)
	assert.Equal(t, "collector", cfg.Name)
	assert.Equal(t, "batch", cfg.Export.Mode)
	assert.Equal(t, 80, cfg.Export.BatchSize)
	assert.Contains(t, v.ConfigFileUsed(), "sample.yaml")
}

func TestConfig_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeSample(t, dir, "name: collector\nexport:\n  mode: batch\n  batch_size: 80\n")
	t.Chdir(dir)
	t.Setenv("SAMPLE_EXPORT_MODE", "historical")

	cfg, _, err := Load[sampleCfg]("sample")
	require.NoError(t, err)
	assert.Equal(t, "historical", cfg.Export.Mode)
}

func TestConfig_Missing(t *testing.T) {
	t.Chdir(t.TempDir())
	_, _, err := Load[sampleCfg]("nope")
	assert.Error(t, err)
}
