package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FDU-CS-Course/FDU-SOFT130006H-Static-Code-Analysis/internal/output"
)

// testEnv sets up an isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	viper.Reset()
	viper.SetDefault("project_root", ".")
	viper.SetDefault("db_path", filepath.Join(dir, "reviewhelper.db"))
	viper.SetDefault("models_config", "models.yaml")
	viper.SetDefault("prompts_dir", "prompts")
	viper.SetDefault("model", "")
	viper.SetDefault("prompt_template", "default")
	viper.SetDefault("context.strategy", "fixed_lines")
	viper.SetDefault("context.lines_before", 5)
	viper.SetDefault("context.lines_after", 5)
	viper.SetDefault("context.max_file_lines", 1000)

	ui = output.New()
	ui.Out = new(bytes.Buffer)
	ui.ErrOut = new(bytes.Buffer)

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reviewhelper configuration")
	assert.Contains(t, string(data), "context")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	err := configInitRun()
	assert.Error(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data), "existing file should be untouched")
}

func TestConfigInit_ForceOverwrites(t *testing.T) {
	dir := testEnv(t)

	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	t.Cleanup(func() { configForce = false })

	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reviewhelper configuration")
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	err := configInitRun()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.yaml"))
	assert.True(t, os.IsNotExist(err), "dry run should not write the file")
}

func TestConfigShow_ListsAllKeys(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	require.NoError(t, err)

	out := ui.Out.(*bytes.Buffer).String()
	for _, k := range configKeys {
		assert.Contains(t, out, k.Key)
	}
}

func TestDetectSource(t *testing.T) {
	testEnv(t)

	t.Run("default", func(t *testing.T) {
		assert.Equal(t, "(default)", detectSource("db_path", "REVIEWHELPER_DB_PATH", map[string]bool{}))
	})

	t.Run("file", func(t *testing.T) {
		assert.Equal(t, "(file)", detectSource("db_path", "REVIEWHELPER_DB_PATH", map[string]bool{"db_path": true}))
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("REVIEWHELPER_DB_PATH", "/tmp/x.db")
		assert.Equal(t, "(env: REVIEWHELPER_DB_PATH)", detectSource("db_path", "REVIEWHELPER_DB_PATH", map[string]bool{"db_path": true}))
	})
}
