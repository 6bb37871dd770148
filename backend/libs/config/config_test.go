package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Label string `yaml:"label"`
	Inner struct {
		Port    int      `yaml:"port"`
		Enabled bool     `yaml:"enabled"`
		Tags    []string `yaml:"tags"`
	} `yaml:"inner"`
	Custom  float64  `yaml:"custom" env:"SAMPLE_CUSTOM"`
	Skipped []string `yaml:"skipped" env:"-"`
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigFileWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "label: edge\ninner:\n  port: 80\nskipped: [a]\n")
	t.Setenv("INNER_PORT", "8080")
	t.Setenv("INNER_TAGS", "a, b,,c")
	t.Setenv("SAMPLE_CUSTOM", "1.5")
	t.Setenv("SKIPPED", "x,y")

	var cfg sample
	require.NoError(t, LoadConfigFile(path, &cfg))

	assert.Equal(t, "edge", cfg.Label)
	assert.Equal(t, 8080, cfg.Inner.Port)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Inner.Tags)
	assert.Equal(t, 1.5, cfg.Custom)
	assert.Equal(t, []string{"a"}, cfg.Skipped)
}

func TestLoadConfigFileRejectsUnknownKeys(t *testing.T) {
	var cfg sample
	err := LoadConfigFile(writeFile(t, "lable: typo\n"), &cfg)
	assert.ErrorContains(t, err, "decode yaml")
}

func TestLoadConfigFileEmpty(t *testing.T) {
	var cfg sample
	assert.NoError(t, LoadConfigFile(writeFile(t, ""), &cfg))
}

func TestLoadConfigErrors(t *testing.T) {
	assert.Error(t, LoadConfigFile("", nil))

	var notStruct int
	assert.Error(t, LoadConfigFile("", &notStruct))

	var cfg sample
	t.Setenv("INNER_PORT", "eighty")
	assert.ErrorContains(t, LoadConfigFile("", &cfg), "INNER_PORT")

	assert.Error(t, LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg))
}
