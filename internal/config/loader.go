package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*EngineConfig, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.mlpilot/config.json
// Project: .mlpilot/config.json (relative to cwd)
func LoadDefault() (*EngineConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".mlpilot", "config.json")
	projectPath := filepath.Join(".mlpilot", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and overlays any non-zero fields
// onto the base config. Missing files are silently skipped.
func mergeConfigFile(base *EngineConfig, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded EngineConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	overlay(base, &loaded)
	return nil
}

// overlay copies non-zero fields from src onto dst. Zero values in src keep
// the lower-precedence setting, so a file only has to name what it changes.
func overlay(dst, src *EngineConfig) {
	if src.Budgets.Clarifications != 0 {
		dst.Budgets.Clarifications = src.Budgets.Clarifications
	}
	if src.Budgets.PlanAttempts != 0 {
		dst.Budgets.PlanAttempts = src.Budgets.PlanAttempts
	}
	if src.Budgets.RoleRetries != 0 {
		dst.Budgets.RoleRetries = src.Budgets.RoleRetries
	}
	if src.Timeouts.AgentTaskMS != 0 {
		dst.Timeouts.AgentTaskMS = src.Timeouts.AgentTaskMS
	}
	if src.Timeouts.RunMS != 0 {
		dst.Timeouts.RunMS = src.Timeouts.RunMS
	}
	if src.Pool.Workers != 0 {
		dst.Pool.Workers = src.Pool.Workers
	}
	if src.Planner.MaxCandidates != 0 {
		dst.Planner.MaxCandidates = src.Planner.MaxCandidates
	}
	if src.Planner.InferThreshold != 0 {
		dst.Planner.InferThreshold = src.Planner.InferThreshold
	}
}
