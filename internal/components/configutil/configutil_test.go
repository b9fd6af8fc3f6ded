package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name   string   `json:"name" yaml:"name"`
	Delay  string   `json:"delay" yaml:"delay"`
	Phases []string `json:"phases" yaml:"phases"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	err := os.WriteFile(path, []byte(contents), 0600)
	if err != nil {
		t.Fatal(err)
	}
}

func TestReadConfigLocalOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.json5"), `{
		// comments are allowed
		name: "base",
		delay: "1s",
	}`)
	writeFile(t, filepath.Join(dir, "config.local.json5"), `{ delay: "3s" }`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, "base", cfg.Name)
	require.Equal(t, "3s", cfg.Delay)
}

func TestReadConfigYaml(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.yaml"), "name: yaml\nphases: [fetch, render]\n")

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	require.Equal(t, "yaml", cfg.Name)
	require.Equal(t, []string{"fetch", "render"}, cfg.Phases)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadConfigUnsupportedExt(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "config.toml"), "name = 1")

	_, err := ReadConfig[testConfig](filepath.Join(dir, "config.toml"))
	require.Error(t, err)
}
