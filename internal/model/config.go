package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options.
type Config struct {
	ModelDir string `json:"model_dir"` //nolint:tagliatelle // snake_case for config file
	Author   string `json:"author,omitempty"`
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// Config errors.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigFileRead     = errors.New("cannot read config file")
	ErrConfigInvalid      = errors.New("invalid config file")
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ModelDir: "model",
	}
}

// ConfigFileName is the project config file name.
const ConfigFileName = ".archstage.json"

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/archstage/config.json if set, otherwise
// ~/.config/archstage/config.json. Empty if home cannot be determined.
func getGlobalConfigPath(env map[string]string) string {
	if xdg, ok := env["XDG_CONFIG_HOME"]; ok && xdg != "" {
		return filepath.Join(xdg, "archstage", "config.json")
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "archstage", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "archstage", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config ($XDG_CONFIG_HOME/archstage/config.json)
//  3. Project config file (.archstage.json, if exists)
//  4. Explicit config file via configPath (if non-empty)
//  5. CLI overrides.
func LoadConfig(
	workDir, configPath string, cliOverrides Config, hasModelDirOverride bool, env map[string]string,
) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	globalPath := getGlobalConfigPath(env)
	if globalPath != "" {
		globalCfg, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}

		if loaded {
			sources.Global = globalPath
			cfg = mergeConfig(cfg, globalCfg)
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)
	mustExist := false

	if configPath != "" {
		projectPath = configPath
		if !filepath.IsAbs(projectPath) {
			projectPath = filepath.Join(workDir, projectPath)
		}

		mustExist = true // explicit config must exist
	}

	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return Config{}, ConfigSources{}, err
	}

	if loaded {
		sources.Project = projectPath
		cfg = mergeConfig(cfg, projectCfg)
	}

	if hasModelDirOverride {
		cfg.ModelDir = cliOverrides.ModelDir
	}

	if strings.TrimSpace(cfg.ModelDir) == "" {
		return Config{}, ConfigSources{}, ErrModelDirEmpty
	}

	return cfg, sources, nil
}

// loadConfigFile reads a hujson config file. Returns (cfg, loaded, err).
// A missing file is an error only when mustExist is true.
func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	content, readErr := os.ReadFile(path) //nolint:gosec // path is a config location
	if readErr != nil {
		if os.IsNotExist(readErr) {
			if mustExist {
				return Config{}, false, fmt.Errorf("%w: %s", ErrConfigFileNotFound, path)
			}

			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigFileRead, path, readErr)
	}

	standardized, huErr := hujson.Standardize(content)
	if huErr != nil {
		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, path, huErr)
	}

	var cfg Config

	jsonErr := json.Unmarshal(standardized, &cfg)
	if jsonErr != nil {
		return Config{}, false, fmt.Errorf("%w: %s: %w", ErrConfigInvalid, path, jsonErr)
	}

	return cfg, true, nil
}

// mergeConfig overlays non-empty fields of overlay onto base.
func mergeConfig(base, overlay Config) Config {
	if overlay.ModelDir != "" {
		base.ModelDir = overlay.ModelDir
	}

	if overlay.Author != "" {
		base.Author = overlay.Author
	}

	return base
}

// FormatConfig renders a config as indented JSON.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}

	return string(data), nil
}
