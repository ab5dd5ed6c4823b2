package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sight/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/sight"
	projectConfigDir = ".sight"
	configFileName   = "config.yaml"
)

// LoadConfig loads the sight configuration by layering default, user, and project settings.
func LoadConfig() (SightConfig, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		// User config is optional
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
		userConfig, err := loadConfigFromFile(userConfigPath)
		if err != nil {
			return SightConfig{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
		}
		config = mergeConfigs(config, userConfig)
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		// Project config is optional
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
		projectConfig, err := loadConfigFromFile(projectConfigPath)
		if err != nil {
			return SightConfig{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
		}
		config = mergeConfigs(config, projectConfig)
	}

	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a SightConfig from a YAML file.
func loadConfigFromFile(filePath string) (SightConfig, error) {
	var config SightConfig
	data, err := os.ReadFile(filePath)
	if err != nil {
		return SightConfig{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return SightConfig{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config.
func mergeConfigs(base, overlay SightConfig) SightConfig {
	merged := base

	if overlay.GlobalSettings.LogLevel != "" {
		merged.GlobalSettings.LogLevel = overlay.GlobalSettings.LogLevel
	}
	if overlay.GlobalSettings.LogFormat != "" {
		merged.GlobalSettings.LogFormat = overlay.GlobalSettings.LogFormat
	}
	if overlay.GlobalSettings.MetricsAddress != "" {
		merged.GlobalSettings.MetricsAddress = overlay.GlobalSettings.MetricsAddress
	}
	if overlay.GlobalSettings.DefaultWorker != "" {
		merged.GlobalSettings.DefaultWorker = overlay.GlobalSettings.DefaultWorker
	}

	merged.Workers = MergeWorkers(base.Workers, overlay.Workers)
	return merged
}

// MergeWorkers overlays worker definitions by name. Base order is kept;
// new names are appended in overlay order.
func MergeWorkers(base, overlay []WorkerDefinition) []WorkerDefinition {
	merged := make([]WorkerDefinition, 0, len(base)+len(overlay))
	index := make(map[string]int, len(base))
	for _, w := range base {
		index[w.Name] = len(merged)
		merged = append(merged, w)
	}
	for _, w := range overlay {
		if i, ok := index[w.Name]; ok {
			merged[i] = w // Replace if name exists, otherwise add
			continue
		}
		index[w.Name] = len(merged)
		merged = append(merged, w)
	}
	return merged
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
