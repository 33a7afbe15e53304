package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig points every config source at temp directories.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("HOME", dir)
	return dir
}

func TestConfigShow_YAML(t *testing.T) {
	isolateConfig(t)

	cmd := newConfigShowCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "storage:")
	assert.Contains(t, out, "search:")
	assert.Contains(t, out, "lexical_backend: sqlite")
	assert.NotContains(t, out, "openai_key")
}

func TestConfigShow_JSON(t *testing.T) {
	isolateConfig(t)

	cmd := newConfigShowCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--json"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), `"vector_weight": 0.7`)
}

func TestConfigShow_ProjectOverride(t *testing.T) {
	dir := isolateConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".synthesis.yaml"),
		[]byte("search:\n  mode: hybrid\n"), 0o644))

	cmd := newConfigShowCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "mode: hybrid")
}

func TestConfigInit_WritesProjectConfig(t *testing.T) {
	dir := isolateConfig(t)

	cmd := newConfigInitCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.FileExists(t, filepath.Join(dir, ".synthesis.yaml"))

	// A second init must refuse to overwrite.
	again := newConfigInitCmd()
	again.SetOut(&bytes.Buffer{})
	again.SetArgs([]string{})
	assert.Error(t, again.Execute())

	// --force replaces the file.
	forced := newConfigInitCmd()
	forced.SetOut(&bytes.Buffer{})
	forced.SetArgs([]string{"--force"})
	assert.NoError(t, forced.Execute())
}

func TestConfigInit_ForceBacksUpUserConfig(t *testing.T) {
	dir := isolateConfig(t)

	first := newConfigInitCmd()
	first.SetOut(&bytes.Buffer{})
	first.SetArgs([]string{"--user"})
	require.NoError(t, first.Execute())

	buf := &bytes.Buffer{}
	forced := newConfigInitCmd()
	forced.SetOut(buf)
	forced.SetArgs([]string{"--user", "--force"})
	require.NoError(t, forced.Execute())
	assert.Contains(t, buf.String(), "backed up existing config")

	backups, err := filepath.Glob(filepath.Join(dir, "xdg", "synthesis", "config.yaml.bak.*"))
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestConfigPath(t *testing.T) {
	dir := isolateConfig(t)

	cmd := newConfigPathCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), filepath.Join(dir, "xdg", "synthesis", "config.yaml"))
}
