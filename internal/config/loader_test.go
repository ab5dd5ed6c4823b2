package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// Helper function to create a temporary config file
func createTempConfigFile(t *testing.T, dir string, filename string, content SightConfig) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	tempFilePath := filepath.Join(dir, filename)
	data, err := yaml.Marshal(&content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(tempFilePath, data, 0644))
	return tempFilePath
}

// mockConfigPaths points both layers into tempDir and restores them afterwards.
func mockConfigPaths(t *testing.T, tempDir string) {
	t.Helper()
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	originalOsUserHomeDir := osUserHomeDir
	originalOsGetwd := osGetwd
	t.Cleanup(func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
		osUserHomeDir = originalOsUserHomeDir
		osGetwd = originalOsGetwd
	})

	osUserHomeDir = func() (string, error) { return filepath.Join(tempDir, "home"), nil }
	osGetwd = func() (string, error) { return filepath.Join(tempDir, "project"), nil }
	getUserConfigPath = func() (string, error) {
		return filepath.Join(tempDir, "home", userConfigDir, configFileName), nil
	}
	getProjectConfigPath = func() (string, error) {
		return filepath.Join(tempDir, "project", projectConfigDir, configFileName), nil
	}
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	mockConfigPaths(t, t.TempDir())

	loadedConfig, err := LoadConfig()
	require.NoError(t, err)

	def := GetDefaultConfig()
	assert.Equal(t, def.GlobalSettings, loadedConfig.GlobalSettings)
	assert.Equal(t, def.Workers, loadedConfig.Workers)
	assert.Equal(t, DefaultWorkerName, loadedConfig.GlobalSettings.DefaultWorker)
}

func TestLoadConfig_UserOverride(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t, tempDir)

	createTempConfigFile(t, filepath.Join(tempDir, "home", userConfigDir), configFileName, SightConfig{
		GlobalSettings: GlobalSettings{LogLevel: "debug", MetricsAddress: ":9100"},
		Workers: []WorkerDefinition{
			{Name: "compute", Kind: WorkerKindPool, Size: 4},
		},
	})

	loadedConfig, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", loadedConfig.GlobalSettings.LogLevel)
	assert.Equal(t, ":9100", loadedConfig.GlobalSettings.MetricsAddress)
	assert.Equal(t, defaultLogFormat, loadedConfig.GlobalSettings.LogFormat)
	require.Len(t, loadedConfig.Workers, 2)
	assert.Equal(t, DefaultWorkerName, loadedConfig.Workers[0].Name)
	assert.Equal(t, "compute", loadedConfig.Workers[1].Name)
}

func TestLoadConfig_ProjectOverridesUser(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t, tempDir)

	createTempConfigFile(t, filepath.Join(tempDir, "home", userConfigDir), configFileName, SightConfig{
		GlobalSettings: GlobalSettings{LogLevel: "debug"},
		Workers:        []WorkerDefinition{{Name: "compute", Kind: WorkerKindPool, Size: 4}},
	})
	createTempConfigFile(t, filepath.Join(tempDir, "project", projectConfigDir), configFileName, SightConfig{
		GlobalSettings: GlobalSettings{LogLevel: "warn", LogFormat: "json"},
		Workers:        []WorkerDefinition{{Name: "compute", Kind: WorkerKindPool, Size: 8}},
	})

	loadedConfig, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "warn", loadedConfig.GlobalSettings.LogLevel)
	assert.Equal(t, "json", loadedConfig.GlobalSettings.LogFormat)
	require.Len(t, loadedConfig.Workers, 2)
	assert.Equal(t, 8, loadedConfig.Workers[1].Size)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t, tempDir)

	dir := filepath.Join(tempDir, "project", projectConfigDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFileName), []byte("globalSettings: [unclosed"), 0644))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "error loading project config")
}

func TestLoadConfig_UnknownHomeIsTolerated(t *testing.T) {
	tempDir := t.TempDir()
	mockConfigPaths(t, tempDir)
	getUserConfigPath = func() (string, error) { return "", errors.New("no home") }

	_, err := LoadConfig()
	assert.NoError(t, err)
}

func TestMergeWorkers(t *testing.T) {
	merged := MergeWorkers(
		[]WorkerDefinition{{Name: "a"}, {Name: "b", Size: 1}},
		[]WorkerDefinition{{Name: "c"}, {Name: "b", Size: 2}},
	)
	assert.Equal(t, []WorkerDefinition{{Name: "a"}, {Name: "b", Size: 2}, {Name: "c"}}, merged)
}

func TestGetUserConfigDir(t *testing.T) {
	mockConfigPaths(t, "/tmp/x")
	dir, err := GetUserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/x", "home", userConfigDir), dir)
}
